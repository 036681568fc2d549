package service

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/events"
	"github.com/damoang/angple-chat/internal/migration"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/pkg/logger"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu         sync.Mutex
	events     []*events.Event
	recipients [][]uint64
}

func (p *recordingPublisher) Publish(_ context.Context, recipients []uint64, evt *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	p.recipients = append(p.recipients, append([]uint64(nil), recipients...))
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeScheduler records AI schedule requests
type fakeScheduler struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeScheduler) Schedule(_ uint64, command string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, command)
}

// manualClock is a settable Clock
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	db        *gorm.DB
	users     repository.UserRepository
	convs     repository.ConversationRepository
	messages  repository.MessageRepository
	reactions repository.ReactionRepository
	receipts  repository.ReadReceiptRepository
	typing    repository.TypingRepository
	pub       *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// :memory: DB는 커넥션마다 따로 생기므로 하나만 쓴다
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.Run(db))

	return &fixture{
		db:        db,
		users:     repository.NewUserRepository(db),
		convs:     repository.NewConversationRepository(db),
		messages:  repository.NewMessageRepository(db),
		reactions: repository.NewReactionRepository(db),
		receipts:  repository.NewReadReceiptRepository(db),
		typing:    repository.NewTypingRepository(db),
		pub:       &recordingPublisher{},
	}
}

func (f *fixture) user(t *testing.T, subject, name string) *domain.User {
	t.Helper()
	n := name
	require.NoError(t, f.users.CreateIfAbsent(&domain.User{
		Subject: subject,
		Email:   subject + "@example.com",
		Name:    &n,
	}))
	u, err := f.users.FindBySubject(subject)
	require.NoError(t, err)
	return u
}

func (f *fixture) conversationService() *conversationService {
	return NewConversationService(f.convs, f.users, f.messages, f.receipts, f.pub, time.Minute).(*conversationService)
}

func (f *fixture) messageService(ai AIScheduler) *messageService {
	return NewMessageService(f.messages, f.convs, f.reactions, f.pub, ai, MessageOptions{
		TriggerToken:    "@AI",
		PresenceTimeout: time.Minute,
	}).(*messageService)
}

func (f *fixture) group(t *testing.T, creator *domain.User, others ...*domain.User) uint64 {
	t.Helper()
	ids := make([]uint64, 0, len(others))
	for _, o := range others {
		ids = append(ids, o.ID)
	}
	conv, err := f.conversationService().CreateGroup(context.Background(), creator.ID, ids, "team")
	require.NoError(t, err)
	return conv.ID
}
