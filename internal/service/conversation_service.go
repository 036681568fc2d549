package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/events"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const minGroupSize = 3

// ConversationService conversation registry business logic
type ConversationService interface {
	CreateOrGetDirect(ctx context.Context, callerID, otherUserID uint64) (*domain.ConversationResponse, bool, error)
	CreateGroup(ctx context.Context, callerID uint64, participantIDs []uint64, name string) (*domain.ConversationResponse, error)
	ListActiveForUser(ctx context.Context, callerID uint64) ([]*domain.ConversationSummary, error)
	GetConversation(ctx context.Context, id uint64) (*domain.ConversationResponse, error)
}

type conversationService struct {
	repo            repository.ConversationRepository
	userRepo        repository.UserRepository
	messageRepo     repository.MessageRepository
	receiptRepo     repository.ReadReceiptRepository
	publisher       events.Publisher
	presenceTimeout time.Duration
	now             Clock
	inflight        singleflight.Group
}

// NewConversationService creates a new ConversationService
func NewConversationService(
	repo repository.ConversationRepository,
	userRepo repository.UserRepository,
	messageRepo repository.MessageRepository,
	receiptRepo repository.ReadReceiptRepository,
	publisher events.Publisher,
	presenceTimeout time.Duration,
) ConversationService {
	return &conversationService{
		repo:            repo,
		userRepo:        userRepo,
		messageRepo:     messageRepo,
		receiptRepo:     receiptRepo,
		publisher:       publisher,
		presenceTimeout: presenceTimeout,
		now:             systemClock,
	}
}

type directResult struct {
	conv    *domain.Conversation
	created bool
}

// CreateOrGetDirect returns the single direct conversation of the pair,
// creating it on first contact. The bool reports whether it was created.
func (s *conversationService) CreateOrGetDirect(ctx context.Context, callerID, otherUserID uint64) (*domain.ConversationResponse, bool, error) {
	if callerID == 0 {
		return nil, false, common.ErrUnauthorized
	}
	if otherUserID == 0 || otherUserID == callerID {
		return nil, false, common.Validationf("a direct conversation needs another user")
	}
	if _, err := s.userRepo.FindByID(otherUserID); err != nil {
		if isRecordNotFound(err) {
			return nil, false, common.ErrUserNotFound
		}
		return nil, false, err
	}

	key := domain.DirectKeyFor(callerID, otherUserID)

	// 같은 인스턴스 안의 동시 요청은 singleflight, 인스턴스 간 경합은 unique index
	v, err, _ := s.inflight.Do(key, func() (interface{}, error) {
		existing, err := s.repo.FindByDirectKey(key)
		if err == nil {
			return directResult{conv: existing}, nil
		}
		if !isRecordNotFound(err) {
			return nil, err
		}

		conv := &domain.Conversation{IsGroup: false, DirectKey: &key, CreatedAt: s.now()}
		if createErr := s.repo.Create(conv, []uint64{callerID, otherUserID}); createErr != nil {
			// 다른 쪽이 먼저 만들었으면 그것을 쓴다
			if existing, err := s.repo.FindByDirectKey(key); err == nil {
				return directResult{conv: existing}, nil
			}
			return nil, createErr
		}
		return directResult{conv: conv, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(directResult)
	if res.created {
		chatConversationsCreated.WithLabelValues("direct").Inc()
		notify(ctx, s.publisher, res.conv.ParticipantIDs(), &events.Event{
			Type:           events.TypeConversationCreated,
			ConversationID: res.conv.ID,
		})
	}
	return s.toResponse(res.conv), res.created, nil
}

// CreateGroup de-duplicates the invitees, adds the caller and requires 3+ members
func (s *conversationService) CreateGroup(ctx context.Context, callerID uint64, participantIDs []uint64, name string) (*domain.ConversationResponse, error) {
	if callerID == 0 {
		return nil, common.ErrUnauthorized
	}

	seen := map[uint64]bool{callerID: true}
	members := []uint64{callerID}
	for _, id := range participantIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) < minGroupSize {
		return nil, common.Validationf("a group needs at least %d members including the creator", minGroupSize)
	}

	users, err := s.userRepo.FindByIDs(members)
	if err != nil {
		return nil, err
	}
	if len(users) != len(members) {
		return nil, common.ErrUserNotFound
	}

	conv := &domain.Conversation{IsGroup: true, Name: optionalString(name), CreatedAt: s.now()}
	if err := s.repo.Create(conv, members); err != nil {
		return nil, err
	}

	chatConversationsCreated.WithLabelValues("group").Inc()
	notify(ctx, s.publisher, members, &events.Event{
		Type:           events.TypeConversationCreated,
		ConversationID: conv.ID,
	})
	return s.toResponse(conv), nil
}

// ListActiveForUser returns the caller's conversations, most recent activity first
func (s *conversationService) ListActiveForUser(_ context.Context, callerID uint64) ([]*domain.ConversationSummary, error) {
	if callerID == 0 {
		return nil, common.ErrUnauthorized
	}

	convs, err := s.repo.ListForUser(callerID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}

	latest, err := s.messageRepo.LatestByConversations(ids)
	if err != nil {
		return nil, err
	}
	receipts, err := s.receiptRepo.FindForUser(callerID, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]*domain.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := &domain.ConversationSummary{
			ID:      c.ID,
			IsGroup: c.IsGroup,
			SortKey: c.CreatedAt,
		}
		if c.Name != nil {
			summary.GroupName = *c.Name
		}

		if !c.IsGroup {
			for i := range c.Participants {
				if c.Participants[i].ID != callerID {
					summary.OtherUser = c.Participants[i].ToResponse(now, s.presenceTimeout)
					break
				}
			}
		}

		if m, ok := latest[c.ID]; ok {
			summary.LastMessage = &domain.LastMessagePreview{
				ID:              m.ID,
				Content:         m.Content,
				SenderID:        m.SenderID,
				SenderFirstName: m.Sender.FirstName(),
				IsMine:          m.SenderID == callerID,
				IsDeleted:       m.IsDeleted,
				CreatedAt:       m.CreatedAt,
			}
			summary.SortKey = m.CreatedAt
		}

		var since *time.Time
		if t, ok := receipts[c.ID]; ok {
			since = &t
		}
		if summary.UnreadCount, err = s.messageRepo.CountUnread(c.ID, callerID, since); err != nil {
			return nil, err
		}

		result = append(result, summary)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].SortKey.Equal(result[j].SortKey) {
			return result[i].ID > result[j].ID
		}
		return result[i].SortKey.After(result[j].SortKey)
	})
	return result, nil
}

// GetConversation returns nil without error when the conversation does not exist.
// Membership is enforced at the message level, not here.
func (s *conversationService) GetConversation(_ context.Context, id uint64) (*domain.ConversationResponse, error) {
	conv, err := s.repo.FindByID(id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, nil
		}
		logger.GetLogger().Error().Err(err).Uint64("conversation_id", id).Msg("conversation lookup failed")
		return nil, err
	}
	return s.toResponse(conv), nil
}

func (s *conversationService) toResponse(conv *domain.Conversation) *domain.ConversationResponse {
	now := s.now()
	resp := &domain.ConversationResponse{
		ID:           conv.ID,
		IsGroup:      conv.IsGroup,
		Participants: make([]*domain.UserResponse, 0, len(conv.Participants)),
		CreatedAt:    conv.CreatedAt,
	}
	if conv.Name != nil {
		resp.Name = strings.TrimSpace(*conv.Name)
	}
	for i := range conv.Participants {
		resp.Participants = append(resp.Participants, conv.Participants[i].ToResponse(now, s.presenceTimeout))
	}
	return resp
}
