package migration

import (
	"errors"
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"gorm.io/gorm"
)

// Run creates the chat tables and seeds the AI sentinel user if missing.
func Run(db *gorm.DB) error {
	// 1. join table 먼저 등록해야 AutoMigrate가 컬럼을 맞춘다
	if err := db.SetupJoinTable(&domain.Conversation{}, "Participants", &domain.ConversationParticipant{}); err != nil {
		return err
	}

	// 2. AutoMigrate - 테이블 없으면 생성, 있으면 컬럼/인덱스만 보강
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Conversation{},
		&domain.ConversationParticipant{},
		&domain.Message{},
		&domain.Reaction{},
		&domain.ReadReceipt{},
		&domain.TypingIndicator{},
	); err != nil {
		return err
	}

	// 3. Seed - AI 사용자가 없을 때만 생성
	return seedAIUser(db)
}

func seedAIUser(db *gorm.DB) error {
	var existing domain.User
	err := db.Where("subject = ?", domain.AISubject).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	name := domain.AIName
	now := time.Now().UTC()
	return db.Create(&domain.User{
		Subject:  domain.AISubject,
		Email:    domain.AIEmail,
		Name:     &name,
		IsOnline: true,
		LastSeen: &now,
	}).Error
}

// TableCount 테이블별 행 수
type TableCount struct {
	Table string
	Rows  int64
}

// Counts returns row counts for every chat table (verify 용)
func Counts(db *gorm.DB) ([]TableCount, error) {
	models := []interface{}{
		&domain.User{},
		&domain.Conversation{},
		&domain.ConversationParticipant{},
		&domain.Message{},
		&domain.Reaction{},
		&domain.ReadReceipt{},
		&domain.TypingIndicator{},
	}
	out := make([]TableCount, 0, len(models))
	for _, m := range models {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, err
		}
		var n int64
		if err := db.Model(m).Count(&n).Error; err != nil {
			return nil, err
		}
		out = append(out, TableCount{Table: stmt.Schema.Table, Rows: n})
	}
	return out, nil
}
