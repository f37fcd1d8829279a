package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ridesync/internal/config"
	"ridesync/pkg/logger"
)

// snapshotTTL bounds how long an abandoned session lingers server-side.
// Ongoing trips re-save on every state change, refreshing the TTL.
const snapshotTTL = 24 * time.Hour

// RedisStore keeps the snapshot in redis under a fixed storage key, for
// deployments where a passenger session follows the user across
// devices.
type RedisStore struct {
	client *redis.Client
	key    string
	log    *logger.Logger
}

func NewRedisStore(cfg *config.RedisConfig, key string, log *logger.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client, key: key, log: log}, nil
}

func (s *RedisStore) Save(ctx context.Context, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key, data, snapshotTTL).Err()
}

func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		s.log.WithError(err).Warn("Session snapshot unavailable, starting fresh")
		return nil, nil
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		s.log.WithError(err).Warn("Session snapshot corrupt, starting fresh")
		return nil, nil
	}
	return &snapshot, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
