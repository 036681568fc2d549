package repository

import (
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
)

// MessageRepository message store data access interface
type MessageRepository interface {
	Create(msg *domain.Message) error
	FindByID(id uint64) (*domain.Message, error)
	ListByConversation(conversationID uint64) ([]*domain.Message, error)
	Recent(conversationID uint64, limit int) ([]*domain.Message, error)
	LatestByConversations(conversationIDs []uint64) (map[uint64]*domain.Message, error)
	CountUnread(conversationID, userID uint64, since *time.Time) (int64, error)
	SoftDelete(id uint64) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(msg *domain.Message) error {
	return r.db.Omit("Sender", "Reactions").Create(msg).Error
}

// FindByID returns gorm.ErrRecordNotFound when absent
func (r *messageRepository) FindByID(id uint64) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.Preload("Reactions", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).First(&msg, id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByConversation returns all messages oldest first
func (r *messageRepository) ListByConversation(conversationID uint64) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := r.db.Preload("Sender").
		Preload("Reactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

// Recent returns the last limit messages, oldest first
func (r *messageRepository) Recent(conversationID uint64, limit int) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := r.db.Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	// 최신순으로 가져온 뒤 시간순으로 뒤집는다
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LatestByConversations returns the newest message of each conversation
func (r *messageRepository) LatestByConversations(conversationIDs []uint64) (map[uint64]*domain.Message, error) {
	result := make(map[uint64]*domain.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}

	var msgs []*domain.Message
	latest := r.db.Model(&domain.Message{}).
		Select("MAX(id)").
		Where("conversation_id IN ?", conversationIDs).
		Group("conversation_id")
	if err := r.db.Preload("Sender").Where("id IN (?)", latest).Find(&msgs).Error; err != nil {
		return nil, err
	}

	for _, m := range msgs {
		result[m.ConversationID] = m
	}
	return result, nil
}

// CountUnread counts messages from others after since (nil = never read)
func (r *messageRepository) CountUnread(conversationID, userID uint64, since *time.Time) (int64, error) {
	var count int64
	query := r.db.Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationID, userID)
	if since != nil {
		query = query.Where("created_at > ?", *since)
	}
	err := query.Count(&count).Error
	return count, err
}

// SoftDelete clears content and reactions, keeping the row as a tombstone
func (r *messageRepository) SoftDelete(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Message{}).Where("id = ?", id).Updates(map[string]interface{}{
			"is_deleted": true,
			"content":    "",
		}).Error; err != nil {
			return err
		}
		return tx.Where("message_id = ?", id).Delete(&domain.Reaction{}).Error
	})
}
