package domain

import "time"

// Message belongs to one conversation. Deleted messages stay as tombstones:
// content and reactions cleared, IsDeleted set.
type Message struct {
	ID             uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ConversationID uint64     `gorm:"column:conversation_id;index;not null" json:"conversation_id"`
	SenderID       uint64     `gorm:"column:sender_id;index;not null" json:"sender_id"`
	Content        string     `gorm:"column:content;type:text" json:"content"`
	IsDeleted      bool       `gorm:"column:is_deleted;default:false" json:"is_deleted"`
	CreatedAt      time.Time  `gorm:"column:created_at;index" json:"created_at"`
	Sender         *User      `gorm:"foreignKey:SenderID" json:"-"`
	Reactions      []Reaction `gorm:"foreignKey:MessageID" json:"-"`
}

func (Message) TableName() string { return "messages" }

// Reaction is one (user, emoji) pair on a message
type Reaction struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	MessageID uint64    `gorm:"column:message_id;uniqueIndex:idx_reaction_unique;not null" json:"-"`
	UserID    uint64    `gorm:"column:user_id;uniqueIndex:idx_reaction_unique;not null" json:"user_id"`
	Emoji     string    `gorm:"column:emoji;type:varchar(32);uniqueIndex:idx_reaction_unique;not null" json:"emoji"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
}

func (Reaction) TableName() string { return "message_reactions" }

// SendMessageRequest POST /conversations/:id/messages
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ReactionRequest POST /messages/:id/reactions
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,max=32"`
}

// ReactionResponse a single reaction
type ReactionResponse struct {
	Emoji  string `json:"emoji"`
	UserID uint64 `json:"user_id"`
}

// MessageResponse message joined with its sender
type MessageResponse struct {
	ID             uint64             `json:"id"`
	ConversationID uint64             `json:"conversation_id"`
	SenderID       uint64             `json:"sender_id"`
	Sender         *UserResponse      `json:"sender,omitempty"`
	Content        string             `json:"content"`
	IsDeleted      bool               `json:"is_deleted"`
	Reactions      []ReactionResponse `json:"reactions"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ToResponse converts Message to MessageResponse; sender may be nil
func (m *Message) ToResponse(sender *UserResponse) *MessageResponse {
	resp := &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Sender:         sender,
		Content:        m.Content,
		IsDeleted:      m.IsDeleted,
		Reactions:      make([]ReactionResponse, 0, len(m.Reactions)),
		CreatedAt:      m.CreatedAt,
	}
	for _, r := range m.Reactions {
		resp.Reactions = append(resp.Reactions, ReactionResponse{Emoji: r.Emoji, UserID: r.UserID})
	}
	return resp
}
