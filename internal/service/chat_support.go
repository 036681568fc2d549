package service

import (
	"context"
	"errors"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/events"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/pkg/logger"
	"gorm.io/gorm"
)

// Clock returns the current time; services store timestamps in UTC
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// loadConversation returns ErrConversationNotFound when absent
func loadConversation(repo repository.ConversationRepository, id uint64) (*domain.Conversation, error) {
	conv, err := repo.FindByID(id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, common.ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// requireParticipant loads the conversation and checks membership
func requireParticipant(repo repository.ConversationRepository, conversationID, userID uint64) (*domain.Conversation, error) {
	conv, err := loadConversation(repo, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, common.Forbiddenf("not a participant of conversation %d", conversationID)
	}
	return conv, nil
}

// checkMembership membership만 확인 (대화 로드 없이); 비참여자면 대화 존재 여부로 404/403 구분
func checkMembership(repo repository.ConversationRepository, conversationID, userID uint64) error {
	ok, err := repo.IsParticipant(conversationID, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := loadConversation(repo, conversationID); err != nil {
		return err
	}
	return common.Forbiddenf("not a participant of conversation %d", conversationID)
}

// notify publishes evt; delivery failures never fail the write
func notify(ctx context.Context, pub events.Publisher, recipients []uint64, evt *events.Event) {
	if pub == nil || len(recipients) == 0 {
		return
	}
	if err := pub.Publish(ctx, recipients, evt); err != nil {
		logger.GetLogger().Warn().Err(err).
			Str("type", evt.Type).
			Uint64("conversation_id", evt.ConversationID).
			Msg("event publish failed")
	}
}
