package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/pkg/cache"
	"github.com/damoang/angple-chat/pkg/logger"
)

const searchLimit = 50

// UserService user directory business logic
type UserService interface {
	Ensure(ctx context.Context, identity domain.Identity) (*domain.UserResponse, error)
	ResolveSubject(ctx context.Context, subject string) (uint64, error)
	GetMe(ctx context.Context, callerID uint64) (*domain.UserResponse, error)
	GetUser(ctx context.Context, id uint64) (*domain.UserResponse, error)
	Search(ctx context.Context, callerID uint64, term string) ([]*domain.UserResponse, error)
	Heartbeat(ctx context.Context, callerID uint64) error
	SetOffline(ctx context.Context, callerID uint64) error
}

type userService struct {
	repo            repository.UserRepository
	cache           cache.Service
	presenceTimeout time.Duration
	now             Clock
}

// NewUserService creates a new UserService; cacheService may be a disabled cache
func NewUserService(repo repository.UserRepository, cacheService cache.Service, presenceTimeout time.Duration) UserService {
	return &userService{
		repo:            repo,
		cache:           cacheService,
		presenceTimeout: presenceTimeout,
		now:             systemClock,
	}
}

// Ensure creates the caller's record on first sync and refreshes the profile
// when the identity provider reports a change.
func (s *userService) Ensure(ctx context.Context, identity domain.Identity) (*domain.UserResponse, error) {
	if identity.Subject == "" {
		return nil, common.ErrUnauthorized
	}
	if identity.Subject == domain.AISubject {
		return nil, common.Forbiddenf("subject %q is reserved", identity.Subject)
	}
	identity.Name = strings.TrimSpace(identity.Name)
	identity.ImageURL = strings.TrimSpace(identity.ImageURL)

	candidate := &domain.User{
		Subject:  identity.Subject,
		Email:    identity.Email,
		Name:     optionalString(identity.Name),
		ImageURL: optionalString(identity.ImageURL),
	}
	if err := s.repo.CreateIfAbsent(candidate); err != nil {
		return nil, err
	}

	user, err := s.repo.FindBySubject(identity.Subject)
	if err != nil {
		return nil, err
	}

	updates := profileChanges(user, identity)
	if len(updates) > 0 {
		if err := s.repo.UpdateProfile(user.ID, updates); err != nil {
			return nil, err
		}
		if user, err = s.repo.FindByID(user.ID); err != nil {
			return nil, err
		}
	}

	if err := s.cache.SetUserID(ctx, user.Subject, user.ID); err != nil {
		logger.GetLogger().Debug().Err(err).Msg("subject cache write failed")
	}
	return user.ToResponse(s.now(), s.presenceTimeout), nil
}

// ResolveSubject maps an identity subject to the directory user id
func (s *userService) ResolveSubject(ctx context.Context, subject string) (uint64, error) {
	if subject == "" {
		return 0, common.ErrUnauthorized
	}
	id, err := s.cache.GetUserID(ctx, subject)
	switch {
	case err == nil && id > 0:
		return id, nil
	case err != nil && !errors.Is(err, cache.ErrMiss):
		// 깨진 항목은 지우고 DB에서 다시 채운다
		logger.GetLogger().Debug().Err(err).Str("subject", subject).Msg("subject cache read failed")
		_ = s.cache.InvalidateSubject(ctx, subject)
	}

	user, err := s.repo.FindBySubject(subject)
	if err != nil {
		if isRecordNotFound(err) {
			return 0, common.ErrUserNotFound
		}
		return 0, err
	}

	_ = s.cache.SetUserID(ctx, subject, user.ID)
	return user.ID, nil
}

func (s *userService) GetMe(ctx context.Context, callerID uint64) (*domain.UserResponse, error) {
	if callerID == 0 {
		return nil, common.ErrUnauthorized
	}
	return s.GetUser(ctx, callerID)
}

func (s *userService) GetUser(_ context.Context, id uint64) (*domain.UserResponse, error) {
	user, err := s.repo.FindByID(id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	return user.ToResponse(s.now(), s.presenceTimeout), nil
}

// Search lists other users by name or email; the AI identity is never listed
func (s *userService) Search(_ context.Context, callerID uint64, term string) ([]*domain.UserResponse, error) {
	if callerID == 0 {
		return nil, common.ErrUnauthorized
	}

	users, err := s.repo.Search(term, callerID, domain.AISubject, searchLimit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]*domain.UserResponse, 0, len(users))
	for _, u := range users {
		result = append(result, u.ToResponse(now, s.presenceTimeout))
	}
	return result, nil
}

func (s *userService) Heartbeat(_ context.Context, callerID uint64) error {
	if callerID == 0 {
		return common.ErrUnauthorized
	}
	return s.repo.UpdatePresence(callerID, true, s.now())
}

func (s *userService) SetOffline(_ context.Context, callerID uint64) error {
	if callerID == 0 {
		return common.ErrUnauthorized
	}
	return s.repo.UpdatePresence(callerID, false, s.now())
}

func profileChanges(user *domain.User, identity domain.Identity) map[string]interface{} {
	updates := make(map[string]interface{})
	if identity.Name != "" && (user.Name == nil || *user.Name != identity.Name) {
		updates["name"] = identity.Name
	}
	if identity.ImageURL != "" && (user.ImageURL == nil || *user.ImageURL != identity.ImageURL) {
		updates["image_url"] = identity.ImageURL
	}
	if identity.Email != "" && user.Email != identity.Email {
		updates["email"] = identity.Email
	}
	return updates
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
