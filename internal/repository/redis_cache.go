package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/job-tracker/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префикс ключей агрегированного представления пользователя
	workspaceKeyPrefix = "workspace:"

	// TTL для кэша
	defaultCacheTTL = 5 * time.Minute
)

// RedisWorkspaceCache реализует WorkspaceCache поверх Redis.
type RedisWorkspaceCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

var _ WorkspaceCache = (*RedisWorkspaceCache)(nil)

// NewRedisWorkspaceCache подключается к Redis и проверяет соединение.
func NewRedisWorkspaceCache(ctx context.Context, opts *redis.Options, ttl time.Duration, log *logger.Logger) (*RedisWorkspaceCache, error) {
	client := redis.NewClient(opts)

	// Проверяем соединение с Redis
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		log.Errorw("Failed to connect to Redis", "error", err, "addr", opts.Addr)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	log.Infow("Connected to Redis successfully", "addr", opts.Addr, "ttl", ttl.String())
	return &RedisWorkspaceCache{client: client, ttl: ttl, log: log}, nil
}

// Close закрывает соединение с Redis
func (r *RedisWorkspaceCache) Close() error {
	return r.client.Close()
}

// Get возвращает сохраненное представление или nil при промахе.
func (r *RedisWorkspaceCache) Get(ctx context.Context, userID string) ([]byte, error) {
	data, err := r.client.Get(ctx, workspaceKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.Debugw("Workspace not found in cache", "userID", userID)
			return nil, nil
		}
		r.log.Errorw("Error getting workspace from Redis", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get workspace from cache: %w", err)
	}
	return data, nil
}

// Set кэширует представление на ttl.
func (r *RedisWorkspaceCache) Set(ctx context.Context, userID string, data []byte) error {
	if err := r.client.Set(ctx, workspaceKeyPrefix+userID, data, r.ttl).Err(); err != nil {
		r.log.Errorw("Failed to cache workspace in Redis", "error", err, "userID", userID)
		return fmt.Errorf("failed to cache workspace: %w", err)
	}
	r.log.Debugw("Workspace cached", "userID", userID, "bytes", len(data))
	return nil
}

// Invalidate удаляет представление пользователя после записи.
func (r *RedisWorkspaceCache) Invalidate(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, workspaceKeyPrefix+userID).Err(); err != nil {
		r.log.Errorw("Failed to invalidate workspace cache", "error", err, "userID", userID)
		return fmt.Errorf("failed to invalidate workspace cache: %w", err)
	}
	r.log.Debugw("Workspace cache invalidated", "userID", userID)
	return nil
}
