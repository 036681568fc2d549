package repository

import (
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadReceiptRepository read receipt data access interface
type ReadReceiptRepository interface {
	Upsert(userID, conversationID uint64, at time.Time) error
	FindForUser(userID uint64, conversationIDs []uint64) (map[uint64]time.Time, error)
}

type readReceiptRepository struct {
	db *gorm.DB
}

// NewReadReceiptRepository creates a new ReadReceiptRepository
func NewReadReceiptRepository(db *gorm.DB) ReadReceiptRepository {
	return &readReceiptRepository{db: db}
}

func (r *readReceiptRepository) Upsert(userID, conversationID uint64, at time.Time) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_at"}),
	}).Create(&domain.ReadReceipt{
		UserID:         userID,
		ConversationID: conversationID,
		LastReadAt:     at,
	}).Error
}

// FindForUser returns conversation id -> last read time
func (r *readReceiptRepository) FindForUser(userID uint64, conversationIDs []uint64) (map[uint64]time.Time, error) {
	result := make(map[uint64]time.Time, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}

	var receipts []domain.ReadReceipt
	if err := r.db.Where("user_id = ? AND conversation_id IN ?", userID, conversationIDs).
		Find(&receipts).Error; err != nil {
		return nil, err
	}
	for _, rc := range receipts {
		result[rc.ConversationID] = rc.LastReadAt
	}
	return result, nil
}
