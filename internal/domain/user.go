package domain

import (
	"strings"
	"time"
)

// Sentinel identity for AI-authored messages
const (
	AISubject = "system_ai"
	AIName    = "AI Agent"
	AIEmail   = "ai@system.local"
)

// User is a directory record keyed by the identity provider subject.
// Users are never hard-deleted.
type User struct {
	ID        uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Subject   string     `gorm:"column:subject;type:varchar(191);uniqueIndex;not null" json:"-"`
	Email     string     `gorm:"column:email;type:varchar(255)" json:"email"`
	Name      *string    `gorm:"column:name;type:varchar(100)" json:"name,omitempty"`
	ImageURL  *string    `gorm:"column:image_url;type:text" json:"image_url,omitempty"`
	IsOnline  bool       `gorm:"column:is_online;default:false" json:"is_online"`
	LastSeen  *time.Time `gorm:"column:last_seen" json:"last_seen,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string { return "chat_users" }

// Identity is what the identity provider asserts about the caller
type Identity struct {
	Subject  string
	Email    string
	Name     string
	ImageURL string
}

// UserResponse public profile
type UserResponse struct {
	ID       uint64     `json:"id"`
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	ImageURL string     `json:"image_url,omitempty"`
	IsOnline bool       `json:"is_online"`
	IsAI     bool       `json:"is_ai,omitempty"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// DisplayName returns the name or a placeholder
func (u *User) DisplayName() string {
	if u == nil || u.Name == nil || strings.TrimSpace(*u.Name) == "" {
		return "Unknown User"
	}
	return *u.Name
}

// FirstName returns the first word of the display name
func (u *User) FirstName() string {
	if u == nil || u.Name == nil {
		return "Unknown"
	}
	if fields := strings.Fields(*u.Name); len(fields) > 0 {
		return fields[0]
	}
	return "Unknown"
}

// IsAI reports whether u is the sentinel AI identity
func (u *User) IsAI() bool {
	return u != nil && u.Subject == AISubject
}

// OnlineAt reports presence: the flag is set and the last heartbeat is recent
func (u *User) OnlineAt(now time.Time, timeout time.Duration) bool {
	if !u.IsOnline || u.LastSeen == nil {
		return false
	}
	return now.Sub(*u.LastSeen) <= timeout
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse(now time.Time, presenceTimeout time.Duration) *UserResponse {
	resp := &UserResponse{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.DisplayName(),
		IsOnline: u.OnlineAt(now, presenceTimeout),
		IsAI:     u.IsAI(),
		LastSeen: u.LastSeen,
	}
	if u.ImageURL != nil {
		resp.ImageURL = *u.ImageURL
	}
	return resp
}
