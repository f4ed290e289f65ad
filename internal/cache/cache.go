// Package cache хранит короткоживущие снимки статуса заявки
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tenderdocs/internal/domain"
)

// Шаблон ключа: upload:status:{tenderID}:{userID}
const StatusKey = "upload:status:%s:%s"

// StatusCache кэширует ответ status. Ошибки кэша не прерывают запрос,
// поэтому методы их не возвращают.
type StatusCache interface {
	Get(ctx context.Context, tenderID uuid.UUID, userID string) (*domain.UploadStatus, bool)
	Set(ctx context.Context, tenderID uuid.UUID, userID string, status *domain.UploadStatus)
	Invalidate(ctx context.Context, tenderID uuid.UUID, userID string)
	Ping(ctx context.Context) error
}

type RedisStatusCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisStatusCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStatusCache {
	return &RedisStatusCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "status_cache").Logger(),
	}
}

func statusKey(tenderID uuid.UUID, userID string) string {
	return fmt.Sprintf(StatusKey, tenderID, userID)
}

func (c *RedisStatusCache) Get(ctx context.Context, tenderID uuid.UUID, userID string) (*domain.UploadStatus, bool) {
	cached, err := c.redis.Get(ctx, statusKey(tenderID, userID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("status cache read failed")
		}
		return nil, false
	}

	var status domain.UploadStatus
	if err := json.Unmarshal([]byte(cached), &status); err != nil {
		c.logger.Warn().Err(err).Msg("status cache entry is corrupted")
		return nil, false
	}
	return &status, true
}

func (c *RedisStatusCache) Set(ctx context.Context, tenderID uuid.UUID, userID string, status *domain.UploadStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, statusKey(tenderID, userID), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("status cache write failed")
	}
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, tenderID uuid.UUID, userID string) {
	if err := c.redis.Del(ctx, statusKey(tenderID, userID)).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("status cache invalidation failed")
	}
}

func (c *RedisStatusCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// NullStatusCache используется, когда Redis не настроен
type NullStatusCache struct{}

func (NullStatusCache) Get(context.Context, uuid.UUID, string) (*domain.UploadStatus, bool) {
	return nil, false
}

func (NullStatusCache) Set(context.Context, uuid.UUID, string, *domain.UploadStatus) {}

func (NullStatusCache) Invalidate(context.Context, uuid.UUID, string) {}

func (NullStatusCache) Ping(context.Context) error { return nil }
