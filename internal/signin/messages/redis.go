package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
)

// Redis keeps messages server side so the browser only carries the id.
// Keys are "<prefix><kind>:<id>" and expire with the message.
type Redis struct {
	Client redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

func (rs Redis) SignIns(http.ResponseWriter, *http.Request) Store[domain.SignInRequest] {
	return NewRedisStore[domain.SignInRequest](rs, KindSignIn)
}

func (rs Redis) SignOuts(http.ResponseWriter, *http.Request) Store[domain.SignOutRequest] {
	return NewRedisStore[domain.SignOutRequest](rs, KindSignOut)
}

// Ping checks connectivity for readiness probes.
func (rs Redis) Ping(ctx context.Context) error {
	return rs.Client.Ping(ctx).Err()
}

// RedisStore is a Store of one message kind.
type RedisStore[T any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore[T any](cfg Redis, kind Kind) *RedisStore[T] {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore[T]{client: cfg.Client, prefix: cfg.Prefix + string(kind) + ":", ttl: ttl}
}

func (s *RedisStore[T]) Read(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("messages: redis get: %w", err)
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("messages: decode %s: %w", s.prefix+id, err)
	}
	return &env.Message, nil
}

func (s *RedisStore[T]) Write(ctx context.Context, msg T) (string, error) {
	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("messages: new id: %w", err)
	}

	now := time.Now().UTC()
	raw, err := json.Marshal(envelope[T]{Message: msg, CreatedAt: now, ExpiresAt: now.Add(s.ttl)})
	if err != nil {
		return "", fmt.Errorf("messages: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+id, raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("messages: redis set: %w", err)
	}
	return id, nil
}

func (s *RedisStore[T]) Clear(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("messages: redis del: %w", err)
	}
	return nil
}
