package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLSubject subject -> user id (사실상 불변)
const TTLSubject = 30 * time.Minute

// 캐시 키 접두사
const (
	PrefixSubject = "chat:subject:"
)

// ErrMiss is returned when a key is absent or the cache is disabled
var ErrMiss = errors.New("cache miss")

// Service Redis 캐시 서비스 인터페이스 (subject -> user id 매핑)
type Service interface {
	GetUserID(ctx context.Context, subject string) (uint64, error)
	SetUserID(ctx context.Context, subject string, userID uint64) error
	InvalidateSubject(ctx context.Context, subject string) error
}

// redisCache Redis 기반 캐시 구현. client가 nil이면 모든 조회는 miss.
type redisCache struct {
	client *redis.Client
}

// NewService 새로운 캐시 서비스 생성
func NewService(client *redis.Client) Service {
	return &redisCache{client: client}
}

func (c *redisCache) GetUserID(ctx context.Context, subject string) (uint64, error) {
	if c.client == nil {
		return 0, ErrMiss
	}
	raw, err := c.client.Get(ctx, PrefixSubject+subject).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (c *redisCache) SetUserID(ctx context.Context, subject string, userID uint64) error {
	if c.client == nil {
		return nil // Redis 없으면 무시
	}
	return c.client.Set(ctx, PrefixSubject+subject, strconv.FormatUint(userID, 10), TTLSubject).Err()
}

func (c *redisCache) InvalidateSubject(ctx context.Context, subject string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, PrefixSubject+subject).Err()
}
