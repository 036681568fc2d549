package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const rateLimitMessage = "요청이 너무 많습니다. 잠시 후 다시 시도해주세요."

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	RequestsPerMinute int
	KeyPrefix         string
}

// rateLimitScript is an atomic Lua script for sliding window rate limiting
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local window_start = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, math.ceil(window / 1000) + 1)
    return {1, limit - count - 1, 0}
else
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local reset_at = 0
    if #oldest >= 2 then
        reset_at = tonumber(oldest[2]) + window
    end
    return {0, 0, reset_at}
end
`)

// RateLimit limits requests per client IP
func RateLimit(redisClient *redis.Client, cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit(c, redisClient, cfg, c.ClientIP())
	}
}

// RateLimitPerUser limits requests per resolved user id, falling back to IP
func RateLimitPerUser(redisClient *redis.Client, requestsPerMinute int) gin.HandlerFunc {
	cfg := RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		KeyPrefix:         "chat:ratelimit:user:",
	}
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if userID := GetUserID(c); userID != 0 {
			key = strconv.FormatUint(userID, 10)
		}
		limit(c, redisClient, cfg, key)
	}
}

func limit(c *gin.Context, redisClient *redis.Client, cfg RateLimitConfig, key string) {
	if redisClient == nil || cfg.RequestsPerMinute <= 0 {
		c.Next()
		return
	}

	now := time.Now().UnixMilli()
	windowMs := int64(60 * 1000) // 1 minute

	ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
	defer cancel()

	result, err := rateLimitScript.Run(ctx, redisClient, []string{cfg.KeyPrefix + key},
		cfg.RequestsPerMinute, windowMs, now,
	).Int64Slice()
	if err != nil || len(result) < 3 {
		// Fail open: Redis 장애 시 통과
		c.Next()
		return
	}

	allowed := result[0] == 1
	remaining := result[1]
	resetAt := result[2]

	c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
	c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

	if !allowed {
		retryAfter := (resetAt - now) / 1000
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
		common.V2ErrorResponse(c, http.StatusTooManyRequests, rateLimitMessage, nil)
		c.Abort()
		return
	}

	c.Next()
}
