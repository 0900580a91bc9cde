package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// KeyStore reserves keys so that concurrent writers agree on a single winner.
// Reserve stores value under key when absent and reports reserved=true; otherwise it
// returns the value already held. Store overwrites the value of a key the caller won.
type KeyStore interface {
	Reserve(ctx context.Context, key string, value []byte, ttl time.Duration) (existing []byte, reserved bool, err error)
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type RedisKeyStore struct {
	client *redis.Client
	prefix string
}

func NewRedisKeyStore(client *redis.Client, prefix string) *RedisKeyStore {
	return &RedisKeyStore{client: client, prefix: prefix}
}

func (s *RedisKeyStore) Reserve(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, bool, error) {
	fullKey := s.prefix + key

	// A key can expire between SETNX and GET; one retry covers that window.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, fullKey, value, ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("reserve %s: %w", key, err)
		}
		if ok {
			return nil, true, nil
		}

		existing, err := s.client.Get(ctx, fullKey).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("load reservation %s: %w", key, err)
		}
		return existing, false, nil
	}
	return nil, false, fmt.Errorf("reserve %s: key kept expiring", key)
}

func (s *RedisKeyStore) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (s *RedisKeyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func messageKey(sessionID, clientMessageID string) string {
	return "msg:" + sessionID + ":" + clientMessageID
}

func openSessionKey(customerID string) string {
	return "open:" + customerID
}
