package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(f *fixture) *userService {
	return NewUserService(f.users, cache.NewService(nil), time.Minute).(*userService)
}

func TestEnsure_CreatesOnceAndRefreshesProfile(t *testing.T) {
	f := newFixture(t)
	svc := newUserService(f)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, domain.Identity{Subject: "user_1", Email: "a@example.com", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", first.Name)

	second, err := svc.Ensure(ctx, domain.Identity{
		Subject:  "user_1",
		Email:    "a@example.com",
		Name:     "Alice Kim",
		ImageURL: "https://img.example.com/a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Alice Kim", second.Name)
	assert.Equal(t, "https://img.example.com/a.png", second.ImageURL)

	var count int64
	require.NoError(t, f.db.Model(&domain.User{}).Where("subject = ?", "user_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnsure_RejectsMissingAndReservedSubject(t *testing.T) {
	f := newFixture(t)
	svc := newUserService(f)

	_, err := svc.Ensure(context.Background(), domain.Identity{})
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	_, err = svc.Ensure(context.Background(), domain.Identity{Subject: domain.AISubject, Name: "Impostor"})
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestResolveSubject(t *testing.T) {
	f := newFixture(t)
	svc := newUserService(f)
	alice := f.user(t, "alice", "Alice")

	id, err := svc.ResolveSubject(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, id)

	_, err = svc.ResolveSubject(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = svc.ResolveSubject(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

// mapCache in-memory subject cache; raw values are parsed like the Redis one
type mapCache struct {
	entries     map[string]string
	invalidated []string
}

func (m *mapCache) GetUserID(_ context.Context, subject string) (uint64, error) {
	raw, ok := m.entries[subject]
	if !ok {
		return 0, cache.ErrMiss
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (m *mapCache) SetUserID(_ context.Context, subject string, userID uint64) error {
	m.entries[subject] = strconv.FormatUint(userID, 10)
	return nil
}

func (m *mapCache) InvalidateSubject(_ context.Context, subject string) error {
	m.invalidated = append(m.invalidated, subject)
	delete(m.entries, subject)
	return nil
}

func TestResolveSubject_UnreadableCacheEntryIsReplaced(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	c := &mapCache{entries: map[string]string{"alice": "not-a-number"}}
	svc := NewUserService(f.users, c, time.Minute)

	id, err := svc.ResolveSubject(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, id)
	assert.Equal(t, []string{"alice"}, c.invalidated)
	assert.Equal(t, strconv.FormatUint(alice.ID, 10), c.entries["alice"])

	// 이후 조회는 캐시에서 바로
	id, err = svc.ResolveSubject(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, id)
	assert.Len(t, c.invalidated, 1)
}

func TestSearch_ExcludesCallerAndAI(t *testing.T) {
	f := newFixture(t)
	svc := newUserService(f)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	f.user(t, "bob", "Bob")
	f.user(t, "carol", "Carol")

	all, err := svc.Search(ctx, alice.ID, "")
	require.NoError(t, err)
	names := make([]string, 0, len(all))
	for _, u := range all {
		names = append(names, u.Name)
		assert.False(t, u.IsAI)
	}
	assert.Equal(t, []string{"Bob", "Carol"}, names)

	byName, err := svc.Search(ctx, alice.ID, "CAR")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Carol", byName[0].Name)

	byEmail, err := svc.Search(ctx, alice.ID, "bob@example")
	require.NoError(t, err)
	require.Len(t, byEmail, 1)

	none, err := svc.Search(ctx, alice.ID, "agent")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPresence_HeartbeatTimeoutAndOffline(t *testing.T) {
	f := newFixture(t)
	clock := newManualClock()
	svc := newUserService(f)
	svc.now = clock.Now
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")

	me, err := svc.GetMe(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, me.IsOnline)

	require.NoError(t, svc.Heartbeat(ctx, alice.ID))
	me, err = svc.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, me.IsOnline)

	clock.Advance(2 * time.Minute)
	me, err = svc.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, me.IsOnline, "stale heartbeat counts as offline")

	require.NoError(t, svc.Heartbeat(ctx, alice.ID))
	require.NoError(t, svc.SetOffline(ctx, alice.ID))
	me, err = svc.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, me.IsOnline)
	require.NotNil(t, me.LastSeen)

	_, err = svc.GetUser(ctx, 9999)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
