package repository

import (
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository user directory data access interface
type UserRepository interface {
	FindByID(id uint64) (*domain.User, error)
	FindByIDs(ids []uint64) ([]*domain.User, error)
	FindBySubject(subject string) (*domain.User, error)
	CreateIfAbsent(user *domain.User) error
	UpdateProfile(id uint64, updates map[string]interface{}) error
	UpdatePresence(id uint64, online bool, lastSeen time.Time) error
	Search(term string, excludeID uint64, excludeSubject string, limit int) ([]*domain.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// FindByID returns gorm.ErrRecordNotFound when absent
func (r *userRepository) FindByID(id uint64) (*domain.User, error) {
	var user domain.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByIDs(ids []uint64) ([]*domain.User, error) {
	var users []*domain.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.Where("id IN ?", ids).Order("id ASC").Find(&users).Error
	return users, err
}

// FindBySubject returns gorm.ErrRecordNotFound when absent
func (r *userRepository) FindBySubject(subject string) (*domain.User, error) {
	var user domain.User
	if err := r.db.Where("subject = ?", subject).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateIfAbsent inserts the user unless the subject already exists.
// 동시 첫 동기화는 unique index에서 수렴한다
func (r *userRepository) CreateIfAbsent(user *domain.User) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject"}},
		DoNothing: true,
	}).Create(user).Error
}

func (r *userRepository) UpdateProfile(id uint64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.Model(&domain.User{}).Where("id = ?", id).Updates(updates).Error
}

func (r *userRepository) UpdatePresence(id uint64, online bool, lastSeen time.Time) error {
	return r.db.Model(&domain.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_online": online,
		"last_seen": lastSeen,
	}).Error
}

// Search matches name or email, case-insensitive; empty term lists everyone
func (r *userRepository) Search(term string, excludeID uint64, excludeSubject string, limit int) ([]*domain.User, error) {
	var users []*domain.User
	query := r.db.Where("id <> ? AND subject <> ?", excludeID, excludeSubject)

	if term = strings.TrimSpace(term); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(COALESCE(name, '')) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Order("name ASC").Order("id ASC").Find(&users).Error
	return users, err
}
