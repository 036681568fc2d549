package repository

import (
	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
)

const participantTable = "conversation_participants"

// ConversationRepository conversation registry data access interface
type ConversationRepository interface {
	Create(conv *domain.Conversation, participantIDs []uint64) error
	FindByID(id uint64) (*domain.Conversation, error)
	FindByDirectKey(key string) (*domain.Conversation, error)
	ListForUser(userID uint64) ([]*domain.Conversation, error)
	IsParticipant(conversationID, userID uint64) (bool, error)
	ParticipantIDs(conversationID uint64) ([]uint64, error)
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Create inserts the conversation and its participant rows in one transaction
func (r *conversationRepository) Create(conv *domain.Conversation, participantIDs []uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(conv).Error; err != nil {
			return err
		}

		rows := make([]map[string]interface{}, 0, len(participantIDs))
		for _, uid := range participantIDs {
			rows = append(rows, map[string]interface{}{
				"conversation_id": conv.ID,
				"user_id":         uid,
				"joined_at":       conv.CreatedAt,
			})
		}
		if err := tx.Table(participantTable).Create(rows).Error; err != nil {
			return err
		}

		return tx.Where("id IN ?", participantIDs).Order("id ASC").Find(&conv.Participants).Error
	})
}

// FindByID returns gorm.ErrRecordNotFound when absent
func (r *conversationRepository) FindByID(id uint64) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.Preload("Participants").First(&conv, id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByDirectKey returns gorm.ErrRecordNotFound when absent
func (r *conversationRepository) FindByDirectKey(key string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.Preload("Participants").
		Where("is_group = ? AND direct_key = ?", false, key).
		First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) ListForUser(userID uint64) ([]*domain.Conversation, error) {
	var convs []*domain.Conversation
	sub := r.db.Table(participantTable).Select("conversation_id").Where("user_id = ?", userID)
	err := r.db.Preload("Participants").
		Where("id IN (?)", sub).
		Order("id ASC").
		Find(&convs).Error
	return convs, err
}

func (r *conversationRepository) IsParticipant(conversationID, userID uint64) (bool, error) {
	var count int64
	err := r.db.Table(participantTable).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *conversationRepository) ParticipantIDs(conversationID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.Table(participantTable).
		Where("conversation_id = ?", conversationID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
