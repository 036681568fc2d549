package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/events"
	"github.com/damoang/angple-chat/internal/handler"
	"github.com/damoang/angple-chat/internal/migration"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/damoang/angple-chat/pkg/cache"
	"github.com/damoang/angple-chat/pkg/jwt"
	"github.com/damoang/angple-chat/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ChatAPISuite exercises the HTTP surface end to end against SQLite
type ChatAPISuite struct {
	suite.Suite
	db         *gorm.DB
	router     *gin.Engine
	jwtManager *jwt.Manager
}

func TestChatAPISuite(t *testing.T) {
	suite.Run(t, new(ChatAPISuite))
}

func (s *ChatAPISuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	logger.SetOutput(io.Discard)
}

func (s *ChatAPISuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	s.Require().NoError(err)
	sqlDB, err := db.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	s.Require().NoError(migration.Run(db))
	s.db = db

	s.jwtManager = jwt.NewManager("test-secret-key-for-integration-tests", 900, 86400)

	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	receiptRepo := repository.NewReadReceiptRepository(db)
	typingRepo := repository.NewTypingRepository(db)
	pub := events.Nop{}

	userSvc := service.NewUserService(userRepo, cache.NewService(nil), time.Minute)
	convSvc := service.NewConversationService(convRepo, userRepo, msgRepo, receiptRepo, pub, time.Minute)
	msgSvc := service.NewMessageService(msgRepo, convRepo, reactionRepo, pub, nil, service.MessageOptions{
		TriggerToken:    "@AI",
		PresenceTimeout: time.Minute,
	})
	typingSvc := service.NewTypingService(typingRepo, convRepo, pub, 3*time.Second)
	receiptSvc := service.NewReadReceiptService(receiptRepo, convRepo, pub)

	s.router = gin.New()
	Setup(s.router, Handlers{
		User:         handler.NewUserHandler(userSvc),
		Conversation: handler.NewConversationHandler(convSvc),
		Message:      handler.NewMessageHandler(msgSvc),
		Activity:     handler.NewActivityHandler(typingSvc, receiptSvc),
	}, s.jwtManager, userSvc, Options{})
}

func (s *ChatAPISuite) TearDownTest() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *ChatAPISuite) token(subject, name string) string {
	tok, err := s.jwtManager.GenerateAccessToken(subject, subject+"@example.com", name, "")
	s.Require().NoError(err)
	return tok
}

func (s *ChatAPISuite) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (s *ChatAPISuite) sync(subject, name string) (string, uint64) {
	tok := s.token(subject, name)
	w, env := s.do(http.MethodPost, "/api/v1/users/sync", tok, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var user domain.UserResponse
	s.Require().NoError(json.Unmarshal(env.Data, &user))
	return tok, user.ID
}

func (s *ChatAPISuite) TestUnsyncedAndAnonymous() {
	w, _ := s.do(http.MethodGet, "/api/v1/users/me", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w, env := s.do(http.MethodGet, "/api/v1/users/me", s.token("ghost", "Ghost"), nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Require().NotNil(env.Error)
	s.Equal("NOT_FOUND", env.Error.Code)
}

func (s *ChatAPISuite) TestDirectConversationFlow() {
	aliceTok, _ := s.sync("alice", "Alice Kim")
	bobTok, bobID := s.sync("bob", "Bob Lee")
	malloryTok, _ := s.sync("mallory", "Mallory")

	w, env := s.do(http.MethodPost, "/api/v1/conversations/direct", aliceTok, domain.CreateDirectRequest{UserID: bobID})
	s.Require().Equal(http.StatusCreated, w.Code)
	var conv domain.ConversationResponse
	s.Require().NoError(json.Unmarshal(env.Data, &conv))

	w, env = s.do(http.MethodPost, "/api/v1/conversations/direct", aliceTok, domain.CreateDirectRequest{UserID: bobID})
	s.Equal(http.StatusOK, w.Code)
	var again domain.ConversationResponse
	s.Require().NoError(json.Unmarshal(env.Data, &again))
	s.Equal(conv.ID, again.ID)

	messages := "/api/v1/conversations/" + strconv.FormatUint(conv.ID, 10) + "/messages"

	w, _ = s.do(http.MethodPost, messages, aliceTok, domain.SendMessageRequest{Content: "hello"})
	s.Require().Equal(http.StatusCreated, w.Code)

	w, env = s.do(http.MethodPost, messages, aliceTok, domain.SendMessageRequest{Content: "   "})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("BAD_REQUEST", env.Error.Code)

	w, _ = s.do(http.MethodPost, messages, malloryTok, domain.SendMessageRequest{Content: "let me in"})
	s.Equal(http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodGet, messages, malloryTok, nil)
	s.Equal(http.StatusForbidden, w.Code)

	// bob: unread 1 → 읽음 처리 → 0
	s.Equal(int64(1), s.unread(bobTok, conv.ID))
	read := "/api/v1/conversations/" + strconv.FormatUint(conv.ID, 10) + "/read"
	w, _ = s.do(http.MethodPost, read, bobTok, nil)
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal(int64(0), s.unread(bobTok, conv.ID))

	// 비로그인 읽음 처리도 조용히 성공
	w, _ = s.do(http.MethodPost, read, "", nil)
	s.Equal(http.StatusNoContent, w.Code)

	w, env = s.do(http.MethodGet, messages, bobTok, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var msgs []domain.MessageResponse
	s.Require().NoError(json.Unmarshal(env.Data, &msgs))
	s.Require().Len(msgs, 1)

	msgPath := "/api/v1/messages/" + strconv.FormatUint(msgs[0].ID, 10)
	w, _ = s.do(http.MethodPost, msgPath+"/reactions", bobTok, domain.ReactionRequest{Emoji: "👍"})
	s.Equal(http.StatusOK, w.Code)

	w, _ = s.do(http.MethodDelete, msgPath, bobTok, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodDelete, msgPath, aliceTok, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var deleted domain.MessageResponse
	s.Require().NoError(json.Unmarshal(env.Data, &deleted))
	s.True(deleted.IsDeleted)
	s.Empty(deleted.Content)
	s.Empty(deleted.Reactions)
}

func (s *ChatAPISuite) unread(token string, conversationID uint64) int64 {
	w, env := s.do(http.MethodGet, "/api/v1/conversations", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list []domain.ConversationSummary
	s.Require().NoError(json.Unmarshal(env.Data, &list))
	for _, c := range list {
		if c.ID == conversationID {
			return c.UnreadCount
		}
	}
	s.FailNow("conversation not listed")
	return -1
}

func (s *ChatAPISuite) TestGroupAndTyping() {
	aliceTok, _ := s.sync("alice", "Alice")
	bobTok, bobID := s.sync("bob", "Bob")
	_, carolID := s.sync("carol", "Carol")

	w, _ := s.do(http.MethodPost, "/api/v1/conversations/group", aliceTok, domain.CreateGroupRequest{
		ParticipantIDs: []uint64{bobID},
	})
	s.Equal(http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/conversations/group", aliceTok, domain.CreateGroupRequest{
		ParticipantIDs: []uint64{bobID, 0},
	})
	s.Equal(http.StatusBadRequest, w.Code, "validator rejects zero ids")

	w, env := s.do(http.MethodPost, "/api/v1/conversations/group", aliceTok, domain.CreateGroupRequest{
		ParticipantIDs: []uint64{bobID, carolID},
		Name:           "weekend",
	})
	s.Require().Equal(http.StatusCreated, w.Code)
	var group domain.ConversationResponse
	s.Require().NoError(json.Unmarshal(env.Data, &group))
	s.True(group.IsGroup)
	s.Len(group.Participants, 3)

	typing := "/api/v1/conversations/" + strconv.FormatUint(group.ID, 10) + "/typing"
	w, _ = s.do(http.MethodPut, typing, bobTok, domain.TypingRequest{IsTyping: true})
	s.Equal(http.StatusNoContent, w.Code)

	w, env = s.do(http.MethodGet, typing, aliceTok, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var names []string
	s.Require().NoError(json.Unmarshal(env.Data, &names))
	s.Equal([]string{"Bob"}, names)

	w, env = s.do(http.MethodGet, typing, bobTok, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().NoError(json.Unmarshal(env.Data, &names))
	s.Empty(names)

	// 비로그인 입력중 요청은 no-op
	w, _ = s.do(http.MethodPut, typing, "", domain.TypingRequest{IsTyping: true})
	s.Equal(http.StatusNoContent, w.Code)

	w, env = s.do(http.MethodGet, typing, "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Require().NoError(json.Unmarshal(env.Data, &names))
	s.Empty(names)
}

func (s *ChatAPISuite) TestGetConversationAndSearch() {
	aliceTok, _ := s.sync("alice", "Alice")
	s.sync("bob", "Bob")

	w, _ := s.do(http.MethodGet, "/api/v1/conversations/999", aliceTok, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/conversations/abc", aliceTok, nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w, env := s.do(http.MethodGet, "/api/v1/users?q=bo", aliceTok, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var users []domain.UserResponse
	s.Require().NoError(json.Unmarshal(env.Data, &users))
	s.Require().Len(users, 1)
	s.Equal("Bob", users[0].Name)
}
