package service

import (
	"context"

	"github.com/damoang/angple-chat/internal/events"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/pkg/logger"
)

// ReadReceiptService read receipt tracker
type ReadReceiptService interface {
	MarkRead(ctx context.Context, callerID, conversationID uint64)
}

type readReceiptService struct {
	repo      repository.ReadReceiptRepository
	convRepo  repository.ConversationRepository
	publisher events.Publisher
	now       Clock
}

// NewReadReceiptService creates a new ReadReceiptService
func NewReadReceiptService(repo repository.ReadReceiptRepository, convRepo repository.ConversationRepository, publisher events.Publisher) ReadReceiptService {
	return &readReceiptService{
		repo:      repo,
		convRepo:  convRepo,
		publisher: publisher,
		now:       systemClock,
	}
}

// MarkRead records "read up to now" for the caller. It never fails towards
// the client: anonymous callers, non-members and storage errors are dropped.
func (s *readReceiptService) MarkRead(ctx context.Context, callerID, conversationID uint64) {
	if callerID == 0 {
		return
	}

	conv, err := requireParticipant(s.convRepo, conversationID, callerID)
	if err != nil {
		logger.GetLogger().Debug().Err(err).
			Uint64("user_id", callerID).
			Uint64("conversation_id", conversationID).
			Msg("markRead ignored")
		return
	}

	if err := s.repo.Upsert(callerID, conversationID, s.now()); err != nil {
		logger.GetLogger().Error().Err(err).
			Uint64("user_id", callerID).
			Uint64("conversation_id", conversationID).
			Msg("read receipt upsert failed")
		return
	}

	notify(ctx, s.publisher, conv.ParticipantIDs(), &events.Event{
		Type:           events.TypeRead,
		ConversationID: conversationID,
		Payload:        map[string]uint64{"user_id": callerID},
	})
}
