package handler

import (
	"context"
	"testing"
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/ws"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockUserService only the presence calls are expected by these tests
type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) Ensure(ctx context.Context, identity domain.Identity) (*domain.UserResponse, error) {
	args := m.Called(ctx, identity)
	resp, _ := args.Get(0).(*domain.UserResponse)
	return resp, args.Error(1)
}

func (m *mockUserService) ResolveSubject(ctx context.Context, subject string) (uint64, error) {
	args := m.Called(ctx, subject)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockUserService) GetMe(ctx context.Context, callerID uint64) (*domain.UserResponse, error) {
	args := m.Called(ctx, callerID)
	resp, _ := args.Get(0).(*domain.UserResponse)
	return resp, args.Error(1)
}

func (m *mockUserService) GetUser(ctx context.Context, id uint64) (*domain.UserResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*domain.UserResponse)
	return resp, args.Error(1)
}

func (m *mockUserService) Search(ctx context.Context, callerID uint64, term string) ([]*domain.UserResponse, error) {
	args := m.Called(ctx, callerID, term)
	resp, _ := args.Get(0).([]*domain.UserResponse)
	return resp, args.Error(1)
}

func (m *mockUserService) Heartbeat(ctx context.Context, callerID uint64) error {
	return m.Called(ctx, callerID).Error(0)
}

func (m *mockUserService) SetOffline(ctx context.Context, callerID uint64) error {
	return m.Called(ctx, callerID).Error(0)
}

func TestWSHandler_DisconnectedSkipsReconnectedUser(t *testing.T) {
	hub := ws.NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	users := new(mockUserService)
	users.On("SetOffline", mock.Anything, uint64(8)).Return(nil).Once()
	h := NewWSHandler(hub, users, "")

	// user 7 은 이미 새 연결로 돌아와 있다
	hub.Register(ws.NewClient(hub, nil, 7, nil))
	require.Eventually(t, func() bool { return hub.Connected(7) }, 2*time.Second, 10*time.Millisecond)

	h.Disconnected(7)
	h.Disconnected(8)

	users.AssertExpectations(t)
	users.AssertNotCalled(t, "SetOffline", mock.Anything, uint64(7))
}
