package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/events"
	"github.com/damoang/angple-chat/internal/repository"
	"github.com/damoang/angple-chat/pkg/logger"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const aiSystemPrompt = `You are a highly efficient AI assistant participating in a group chat. Follow these strict rules:
1. Keep all responses precise, crisp, and strictly under 60 words.
2. Use simple language and get straight to the point.
3. You will receive the recent chat history. Use it for context, but only answer the final command.
4. If answering a specific person, address them by their first name.`

// ErrDirectConversation AI는 1:1 대화 내용을 읽지 않는다
var ErrDirectConversation = fmt.Errorf("%w: AI history is only available in group conversations", common.ErrForbidden)

// ErrAIRateLimited the job was dropped by the outbound token bucket
var ErrAIRateLimited = errors.New("ai responder rate limited")

// AIOptions completion endpoint and protection settings
type AIOptions struct {
	BaseURL         string // e.g. "https://openrouter.ai/api/v1"
	APIKey          string
	Model           string
	HistoryLimit    int
	Timeout         time.Duration
	RatePerMinute   int
	BreakerFailures int
	BreakerOpen     time.Duration
}

// ChatMessage role-tagged transcript entry
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AIResponder answers trigger-token messages in group conversations
type AIResponder struct {
	convRepo    repository.ConversationRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	publisher   events.Publisher
	opts        AIOptions
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	now         Clock

	mu       sync.Mutex
	aiUserID uint64
	wg       sync.WaitGroup
}

// NewAIResponder creates a new AIResponder
func NewAIResponder(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	publisher events.Publisher,
	opts AIOptions,
) *AIResponder {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 30
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerOpen <= 0 {
		opts.BreakerOpen = 30 * time.Second
	}

	failures := uint32(opts.BreakerFailures)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai-completion",
		MaxRequests: 1,
		Timeout:     opts.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.GetLogger().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &AIResponder{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		publisher:   publisher,
		opts:        opts,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		breaker:     breaker,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), opts.RatePerMinute),
		now:         systemClock,
	}
}

// Schedule runs the responder in the background. Failures are logged and
// never reach the sender.
func (a *AIResponder) Schedule(conversationID uint64, command string) {
	log := logger.WithConversationID(conversationID)
	if !a.limiter.Allow() {
		chatAIJobs.WithLabelValues("dropped").Inc()
		log.Warn().Err(ErrAIRateLimited).Msg("AI job dropped")
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.opts.Timeout)
		defer cancel()

		if _, err := a.Respond(ctx, conversationID, command); err != nil {
			result := "failed"
			if errors.Is(err, ErrDirectConversation) {
				result = "refused"
			}
			chatAIJobs.WithLabelValues(result).Inc()
			log.Error().Err(err).Msg("AI job failed")
		}
	}()
}

// Wait blocks until every scheduled job has finished
func (a *AIResponder) Wait() {
	a.wg.Wait()
}

// Respond builds the transcript, calls the completion endpoint once and
// appends the reply as a message from the AI identity.
func (a *AIResponder) Respond(ctx context.Context, conversationID uint64, command string) (*domain.Message, error) {
	conv, history, err := a.HistoryForAI(conversationID)
	if err != nil {
		return nil, err
	}

	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: "system", Content: aiSystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: "user", Content: command})

	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.callCompletion(ctx, messages)
	})
	if err != nil {
		return nil, fmt.Errorf("AI 호출 실패: %w", err)
	}
	reply := out.(string)

	aiUserID, err := a.ensureAIUser()
	if err != nil {
		return nil, fmt.Errorf("AI 사용자 생성 실패: %w", err)
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       aiUserID,
		Content:        reply,
		CreatedAt:      a.now(),
	}
	if err := a.messageRepo.Create(msg); err != nil {
		return nil, fmt.Errorf("AI 응답 저장 실패: %w", err)
	}
	chatMessagesSent.Inc()
	chatAIJobs.WithLabelValues("replied").Inc()

	notify(ctx, a.publisher, conv.ParticipantIDs(), &events.Event{
		Type:           events.TypeMessageCreated,
		ConversationID: conversationID,
		Payload:        map[string]uint64{"message_id": msg.ID},
	})
	log := logger.WithConversationID(conversationID)
	log.Info().Uint64("message_id", msg.ID).Msg("AI reply posted")
	return msg, nil
}

// HistoryForAI returns the recent transcript of a group conversation.
// Direct conversations are refused.
func (a *AIResponder) HistoryForAI(conversationID uint64) (*domain.Conversation, []ChatMessage, error) {
	conv, err := loadConversation(a.convRepo, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if !conv.IsGroup {
		return nil, nil, ErrDirectConversation
	}

	recent, err := a.messageRepo.Recent(conversationID, a.opts.HistoryLimit)
	if err != nil {
		return nil, nil, err
	}

	history := make([]ChatMessage, 0, len(recent))
	for _, m := range recent {
		if m.IsDeleted {
			continue
		}
		role := "user"
		if m.Sender.IsAI() {
			role = "assistant"
		}
		history = append(history, ChatMessage{
			Role:    role,
			Content: m.Sender.FirstName() + ": " + m.Content,
		})
	}
	return conv, history, nil
}

// ensureAIUser creates the sentinel AI user once and remembers its id
func (a *AIResponder) ensureAIUser() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.aiUserID != 0 {
		return a.aiUserID, nil
	}

	name := domain.AIName
	seen := a.now()
	if err := a.userRepo.CreateIfAbsent(&domain.User{
		Subject:  domain.AISubject,
		Email:    domain.AIEmail,
		Name:     &name,
		IsOnline: true,
		LastSeen: &seen,
	}); err != nil {
		return 0, err
	}

	user, err := a.userRepo.FindBySubject(domain.AISubject)
	if err != nil {
		return 0, err
	}
	a.aiUserID = user.ID
	return user.ID, nil
}

func (a *AIResponder) callCompletion(ctx context.Context, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":    a.opts.Model,
		"messages": messages,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(a.opts.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.opts.APIKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP 요청 실패: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("응답 읽기 실패: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("API 오류 (%d): %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	// OpenAI 포맷 파싱
	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("응답 JSON 파싱 실패: %w", err)
	}

	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("AI 응답에서 텍스트를 찾을 수 없습니다")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
