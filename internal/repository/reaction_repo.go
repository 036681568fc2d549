package repository

import (
	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReactionRepository message reaction data access interface
type ReactionRepository interface {
	Toggle(messageID, userID uint64, emoji string) (added bool, err error)
	ListByMessage(messageID uint64) ([]domain.Reaction, error)
}

type reactionRepository struct {
	db *gorm.DB
}

// NewReactionRepository creates a new ReactionRepository
func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db}
}

// Toggle removes the (user, emoji) pair if present, otherwise adds it
func (r *reactionRepository) Toggle(messageID, userID uint64, emoji string) (bool, error) {
	added := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
			Delete(&domain.Reaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		added = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.Reaction{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
		}).Error
	})
	return added, err
}

func (r *reactionRepository) ListByMessage(messageID uint64) ([]domain.Reaction, error) {
	var reactions []domain.Reaction
	err := r.db.Where("message_id = ?", messageID).Order("id ASC").Find(&reactions).Error
	return reactions, err
}
