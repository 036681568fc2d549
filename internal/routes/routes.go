package routes

import (
	"github.com/damoang/angple-chat/internal/handler"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups every HTTP handler the chat API exposes
type Handlers struct {
	User         *handler.UserHandler
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Activity     *handler.ActivityHandler
	WS           *handler.WSHandler
}

// Options route-level knobs
type Options struct {
	RedisClient       *redis.Client // nil disables rate limiting
	SendRatePerMinute int
	SyncRatePerMinute int // per client IP
}

// Setup configures all API routes
func Setup(router *gin.Engine, h Handlers, jwtManager *jwt.Manager, resolver middleware.SubjectResolver, opts Options) {
	auth := middleware.JWTAuth(jwtManager)
	requireUser := middleware.RequireUser(resolver)

	api := router.Group("/api/v1")

	// 최초 로그인 동기화는 토큰만 있으면 된다 (아직 사용자 레코드가 없음)
	api.POST("/users/sync",
		middleware.RateLimit(opts.RedisClient, middleware.RateLimitConfig{
			RequestsPerMinute: opts.SyncRatePerMinute,
			KeyPrefix:         "chat:ratelimit:ip:",
		}),
		auth, h.User.Sync)

	// 읽음/입력중은 비로그인이어도 조용히 성공 (no-op, 빈 목록)
	optional := []gin.HandlerFunc{middleware.OptionalJWTAuth(jwtManager), middleware.OptionalUser(resolver)}
	api.POST("/conversations/:id/read", append(optional, h.Activity.MarkRead)...)
	api.GET("/conversations/:id/typing", append(optional, h.Activity.GetTyping)...)
	api.PUT("/conversations/:id/typing", append(optional, h.Activity.SetTyping)...)

	authed := api.Group("", auth, requireUser)

	// Users
	users := authed.Group("/users")
	users.GET("", h.User.Search)
	users.GET("/me", h.User.Me)
	users.POST("/me/heartbeat", h.User.Heartbeat)
	users.POST("/me/offline", h.User.Offline)
	users.GET("/:id", h.User.Get)

	// Conversations
	conversations := authed.Group("/conversations")
	conversations.GET("", h.Conversation.List)
	conversations.POST("/direct", h.Conversation.CreateDirect)
	conversations.POST("/group", h.Conversation.CreateGroup)
	conversations.GET("/:id", h.Conversation.Get)
	conversations.GET("/:id/messages", h.Message.List)
	conversations.POST("/:id/messages",
		middleware.RateLimitPerUser(opts.RedisClient, opts.SendRatePerMinute),
		h.Message.Send)

	// Messages
	messages := authed.Group("/messages")
	messages.DELETE("/:id", h.Message.Delete)
	messages.POST("/:id/reactions", h.Message.ToggleReaction)

	// Real-time push channel
	if h.WS != nil {
		router.GET("/ws", auth, requireUser, h.WS.Connect)
	}
}
