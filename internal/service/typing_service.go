package service

import (
	"context"
	"time"

	"github.com/damoang/angple-chat/internal/events"
	"github.com/damoang/angple-chat/internal/repository"
)

// TypingService typing indicator store
type TypingService interface {
	SetTyping(ctx context.Context, callerID, conversationID uint64, isTyping bool) error
	GetActiveTypists(ctx context.Context, callerID, conversationID uint64) ([]string, error)
}

type typingService struct {
	repo      repository.TypingRepository
	convRepo  repository.ConversationRepository
	publisher events.Publisher
	window    time.Duration
	now       Clock
}

// NewTypingService creates a new TypingService; window is the indicator lifetime
func NewTypingService(repo repository.TypingRepository, convRepo repository.ConversationRepository, publisher events.Publisher, window time.Duration) TypingService {
	if window <= 0 {
		window = 3 * time.Second
	}
	return &typingService{
		repo:      repo,
		convRepo:  convRepo,
		publisher: publisher,
		window:    window,
		now:       systemClock,
	}
}

// SetTyping upserts the caller's indicator (expiry = now + window) or removes it.
// Anonymous calls are ignored.
func (s *typingService) SetTyping(ctx context.Context, callerID, conversationID uint64, isTyping bool) error {
	if callerID == 0 {
		return nil
	}

	conv, err := requireParticipant(s.convRepo, conversationID, callerID)
	if err != nil {
		return err
	}

	if isTyping {
		err = s.repo.Upsert(conversationID, callerID, s.now().Add(s.window))
	} else {
		err = s.repo.Delete(conversationID, callerID)
	}
	if err != nil {
		return err
	}

	notify(ctx, s.publisher, conv.ParticipantIDs(), &events.Event{
		Type:           events.TypeTyping,
		ConversationID: conversationID,
		Payload: map[string]interface{}{
			"user_id":   callerID,
			"is_typing": isTyping,
		},
	})
	return nil
}

// GetActiveTypists returns display names of unexpired indicators other than the caller's
func (s *typingService) GetActiveTypists(_ context.Context, callerID, conversationID uint64) ([]string, error) {
	if callerID == 0 {
		return []string{}, nil
	}
	if err := checkMembership(s.convRepo, conversationID, callerID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListActive(conversationID, callerID, s.now())
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		name := "Someone"
		if row.User != nil && row.User.Name != nil && *row.User.Name != "" {
			name = *row.User.Name
		}
		names = append(names, name)
	}
	return names, nil
}
