package domain

import (
	"fmt"
	"time"
)

// Conversation is a direct (2-party) or group (3+) chat.
// DirectKey is set only for direct conversations and is unique per pair.
type Conversation struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	IsGroup      bool      `gorm:"column:is_group;default:false;index" json:"is_group"`
	Name         *string   `gorm:"column:name;type:varchar(100)" json:"name,omitempty"`
	DirectKey    *string   `gorm:"column:direct_key;type:varchar(64);uniqueIndex" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	Participants []User    `gorm:"many2many:conversation_participants;joinForeignKey:ConversationID;joinReferences:UserID" json:"-"`
}

func (Conversation) TableName() string { return "conversations" }

// DirectKeyFor returns the order-independent key of a user pair
func DirectKeyFor(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// HasParticipant reports whether userID belongs to the conversation
func (c *Conversation) HasParticipant(userID uint64) bool {
	for i := range c.Participants {
		if c.Participants[i].ID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the ids of all participants
func (c *Conversation) ParticipantIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Participants))
	for i := range c.Participants {
		ids = append(ids, c.Participants[i].ID)
	}
	return ids
}

// CreateDirectRequest POST /conversations/direct
type CreateDirectRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
}

// CreateGroupRequest POST /conversations/group
type CreateGroupRequest struct {
	ParticipantIDs []uint64 `json:"participant_ids" validate:"required,dive,gt=0"`
	Name           string   `json:"name" validate:"max=100"`
}

// ConversationResponse conversation with its participants
type ConversationResponse struct {
	ID           uint64          `json:"id"`
	IsGroup      bool            `json:"is_group"`
	Name         string          `json:"name,omitempty"`
	Participants []*UserResponse `json:"participants"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LastMessagePreview preview shown in the conversation list
type LastMessagePreview struct {
	ID              uint64    `json:"id"`
	Content         string    `json:"content"`
	SenderID        uint64    `json:"sender_id"`
	SenderFirstName string    `json:"sender_first_name"`
	IsMine          bool      `json:"is_mine"`
	IsDeleted       bool      `json:"is_deleted"`
	CreatedAt       time.Time `json:"created_at"`
}

// ConversationSummary one row of the caller's conversation list
type ConversationSummary struct {
	ID          uint64              `json:"id"`
	IsGroup     bool                `json:"is_group"`
	GroupName   string              `json:"group_name,omitempty"`
	OtherUser   *UserResponse       `json:"other_user,omitempty"`
	LastMessage *LastMessagePreview `json:"last_message,omitempty"`
	UnreadCount int64               `json:"unread_count"`
	SortKey     time.Time           `json:"sort_key"`
}

// ConversationParticipant join row of the participant set
type ConversationParticipant struct {
	ConversationID uint64    `gorm:"column:conversation_id;primaryKey"`
	UserID         uint64    `gorm:"column:user_id;primaryKey;index"`
	JoinedAt       time.Time `gorm:"column:joined_at"`
}

func (ConversationParticipant) TableName() string { return "conversation_participants" }
