package domain

import "time"

// ReadReceipt last-read time per (user, conversation)
type ReadReceipt struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	UserID         uint64    `gorm:"column:user_id;uniqueIndex:idx_receipt_user_conv;not null" json:"user_id"`
	ConversationID uint64    `gorm:"column:conversation_id;uniqueIndex:idx_receipt_user_conv;not null" json:"conversation_id"`
	LastReadAt     time.Time `gorm:"column:last_read_at" json:"last_read_at"`
}

func (ReadReceipt) TableName() string { return "read_receipts" }

// TypingIndicator expires on its own; readers filter by ExpiresAt
type TypingIndicator struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ConversationID uint64    `gorm:"column:conversation_id;uniqueIndex:idx_typing_conv_user;not null" json:"conversation_id"`
	UserID         uint64    `gorm:"column:user_id;uniqueIndex:idx_typing_conv_user;not null" json:"user_id"`
	ExpiresAt      time.Time `gorm:"column:expires_at;index" json:"expires_at"`
	User           *User     `gorm:"foreignKey:UserID" json:"-"`
}

func (TypingIndicator) TableName() string { return "typing_indicators" }

// TypingRequest PUT /conversations/:id/typing
type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}
