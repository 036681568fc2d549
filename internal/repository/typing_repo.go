package repository

import (
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TypingRepository typing indicator data access interface
type TypingRepository interface {
	Upsert(conversationID, userID uint64, expiresAt time.Time) error
	Delete(conversationID, userID uint64) error
	ListActive(conversationID, excludeUserID uint64, now time.Time) ([]*domain.TypingIndicator, error)
	DeleteExpired(before time.Time) (int64, error)
}

type typingRepository struct {
	db *gorm.DB
}

// NewTypingRepository creates a new TypingRepository
func NewTypingRepository(db *gorm.DB) TypingRepository {
	return &typingRepository{db: db}
}

func (r *typingRepository) Upsert(conversationID, userID uint64, expiresAt time.Time) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
	}).Create(&domain.TypingIndicator{
		ConversationID: conversationID,
		UserID:         userID,
		ExpiresAt:      expiresAt,
	}).Error
}

func (r *typingRepository) Delete(conversationID, userID uint64) error {
	return r.db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&domain.TypingIndicator{}).Error
}

// ListActive filters by expiry instead of relying on a sweep
func (r *typingRepository) ListActive(conversationID, excludeUserID uint64, now time.Time) ([]*domain.TypingIndicator, error) {
	var rows []*domain.TypingIndicator
	err := r.db.Preload("User").
		Where("conversation_id = ? AND user_id <> ? AND expires_at > ?", conversationID, excludeUserID, now).
		Order("user_id ASC").
		Find(&rows).Error
	return rows, err
}

// DeleteExpired 만료된 입력중 행 정리 (읽기 경로는 만료 시각으로 거르므로 선택 작업)
func (r *typingRepository) DeleteExpired(before time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", before).Delete(&domain.TypingIndicator{})
	return res.RowsAffected, res.Error
}
