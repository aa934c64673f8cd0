package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCacheStore is a CacheStore shared by every server instance. Keys are
// namespaced with prefix so Clear only touches this store's entries.
type RedisCacheStore struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

func NewRedisCacheStore(client *redis.Client, prefix string, logger zerolog.Logger) *RedisCacheStore {
	return &RedisCacheStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisCacheStore) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("redis cache get failed")
		}
		return nil, false
	}
	return data, true
}

func (s *RedisCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis cache set failed")
	}
}

func (s *RedisCacheStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis cache delete failed")
	}
}

func (s *RedisCacheStore) Clear(ctx context.Context) {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis cache scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis cache clear failed")
	}
}
