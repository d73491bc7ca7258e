package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Cache key constants
const (
	LocalRecordKey = "metricslab:local:%s"
)

// RedisStore keeps experiment records in Redis so several server processes
// can share them.
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStore(client *redis.Client, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(LocalRecordKey, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, fmt.Sprintf(LocalRecordKey, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, fmt.Sprintf(LocalRecordKey, key)).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Stats returns a few INFO counters for operator tooling.
func (s *RedisStore) Stats(ctx context.Context) (map[string]string, error) {
	info, err := s.client.Info(ctx, "stats", "clients", "memory").Result()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"keyspace_hits":     extractStat(info, "keyspace_hits"),
		"keyspace_misses":   extractStat(info, "keyspace_misses"),
		"used_memory":       extractStat(info, "used_memory"),
		"connected_clients": extractStat(info, "connected_clients"),
	}, nil
}

func extractStat(info, key string) string {
	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, key+":") {
			return strings.TrimPrefix(line, key+":")
		}
	}
	return "0"
}
