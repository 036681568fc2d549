package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/events"
	"github.com/damoang/angple-chat/internal/repository"
)

// AIScheduler runs the AI responder for a triggering message without blocking
type AIScheduler interface {
	Schedule(conversationID uint64, command string)
}

// MaxMessageLength 메시지 최대 길이 (trim 후 문자 수)
const MaxMessageLength = 1000

// MessageOptions message store settings
type MessageOptions struct {
	TriggerToken    string
	PresenceTimeout time.Duration
}

// MessageService message store business logic
type MessageService interface {
	Send(ctx context.Context, callerID, conversationID uint64, content string) (*domain.MessageResponse, error)
	List(ctx context.Context, callerID, conversationID uint64) ([]*domain.MessageResponse, error)
	SoftDelete(ctx context.Context, callerID, messageID uint64) (*domain.MessageResponse, error)
	ToggleReaction(ctx context.Context, callerID, messageID uint64, emoji string) (*domain.MessageResponse, error)
}

type messageService struct {
	repo         repository.MessageRepository
	convRepo     repository.ConversationRepository
	reactionRepo repository.ReactionRepository
	publisher    events.Publisher
	ai           AIScheduler
	opts         MessageOptions
	now          Clock
}

// NewMessageService creates a new MessageService; ai may be nil when the responder is disabled
func NewMessageService(
	repo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	reactionRepo repository.ReactionRepository,
	publisher events.Publisher,
	ai AIScheduler,
	opts MessageOptions,
) MessageService {
	return &messageService{
		repo:         repo,
		convRepo:     convRepo,
		reactionRepo: reactionRepo,
		publisher:    publisher,
		ai:           ai,
		opts:         opts,
		now:          systemClock,
	}
}

// Send persists a message. Content is trimmed and must be 1..MaxMessageLength characters.
func (s *messageService) Send(ctx context.Context, callerID, conversationID uint64, content string) (*domain.MessageResponse, error) {
	if callerID == 0 {
		return nil, common.ErrUnauthorized
	}

	content = strings.TrimSpace(content)
	length := utf8.RuneCountInString(content)
	if length == 0 {
		return nil, common.Validationf("message content is empty")
	}
	if length > MaxMessageLength {
		return nil, common.Validationf("message content exceeds %d characters", MaxMessageLength)
	}

	conv, err := requireParticipant(s.convRepo, conversationID, callerID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       callerID,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if err := s.repo.Create(msg); err != nil {
		return nil, err
	}
	chatMessagesSent.Inc()

	notify(ctx, s.publisher, conv.ParticipantIDs(), &events.Event{
		Type:           events.TypeMessageCreated,
		ConversationID: conversationID,
		Payload:        map[string]uint64{"message_id": msg.ID},
	})

	// AI 응답은 비동기, 전송 응답을 막지 않는다
	if s.ai != nil && s.opts.TriggerToken != "" && strings.Contains(content, s.opts.TriggerToken) {
		s.ai.Schedule(conversationID, content)
	}

	return msg.ToResponse(s.senderOf(conv, callerID)), nil
}

// List returns every message of the conversation, oldest first
func (s *messageService) List(_ context.Context, callerID, conversationID uint64) ([]*domain.MessageResponse, error) {
	if callerID == 0 {
		return nil, common.ErrUnauthorized
	}
	if _, err := requireParticipant(s.convRepo, conversationID, callerID); err != nil {
		return nil, err
	}

	msgs, err := s.repo.ListByConversation(conversationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]*domain.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		var sender *domain.UserResponse
		if m.Sender != nil {
			sender = m.Sender.ToResponse(now, s.opts.PresenceTimeout)
		}
		result = append(result, m.ToResponse(sender))
	}
	return result, nil
}

// SoftDelete turns the caller's own message into a tombstone
func (s *messageService) SoftDelete(ctx context.Context, callerID, messageID uint64) (*domain.MessageResponse, error) {
	if callerID == 0 {
		return nil, common.ErrUnauthorized
	}

	msg, err := s.findMessage(messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != callerID {
		return nil, common.Forbiddenf("only the sender can delete message %d", messageID)
	}

	if !msg.IsDeleted {
		if err := s.repo.SoftDelete(messageID); err != nil {
			return nil, err
		}
		s.publishToConversation(ctx, msg.ConversationID, &events.Event{
			Type:           events.TypeMessageDeleted,
			ConversationID: msg.ConversationID,
			Payload:        map[string]uint64{"message_id": messageID},
		})
	}

	if msg, err = s.findMessage(messageID); err != nil {
		return nil, err
	}
	return msg.ToResponse(nil), nil
}

// ToggleReaction adds the (caller, emoji) pair or removes it when already present
func (s *messageService) ToggleReaction(ctx context.Context, callerID, messageID uint64, emoji string) (*domain.MessageResponse, error) {
	if callerID == 0 {
		return nil, common.ErrUnauthorized
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, common.Validationf("emoji is required")
	}

	msg, err := s.findMessage(messageID)
	if err != nil {
		return nil, err
	}
	conv, err := requireParticipant(s.convRepo, msg.ConversationID, callerID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, common.Validationf("message %d is deleted", messageID)
	}

	added, err := s.reactionRepo.Toggle(messageID, callerID, emoji)
	if err != nil {
		return nil, err
	}
	if msg.Reactions, err = s.reactionRepo.ListByMessage(messageID); err != nil {
		return nil, err
	}

	notify(ctx, s.publisher, conv.ParticipantIDs(), &events.Event{
		Type:           events.TypeMessageReaction,
		ConversationID: msg.ConversationID,
		Payload: map[string]interface{}{
			"message_id": messageID,
			"user_id":    callerID,
			"emoji":      emoji,
			"added":      added,
		},
	})
	return msg.ToResponse(nil), nil
}

func (s *messageService) findMessage(id uint64) (*domain.Message, error) {
	msg, err := s.repo.FindByID(id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, common.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (s *messageService) publishToConversation(ctx context.Context, conversationID uint64, evt *events.Event) {
	ids, err := s.convRepo.ParticipantIDs(conversationID)
	if err != nil {
		return
	}
	notify(ctx, s.publisher, ids, evt)
}

func (s *messageService) senderOf(conv *domain.Conversation, userID uint64) *domain.UserResponse {
	for i := range conv.Participants {
		if conv.Participants[i].ID == userID {
			return conv.Participants[i].ToResponse(s.now(), s.opts.PresenceTimeout)
		}
	}
	return nil
}
