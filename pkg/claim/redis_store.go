package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

// RedisStore implements Store on Redis. SETNX without expiry gives the
// insert-if-absent semantics; the deployment must run Redis with persistence.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store backed by Redis at addr.
func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreWithClient(rdb)
}

func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "claim:"}
}

func (s *RedisStore) key(addr contracts.Address) string {
	return s.prefix + addr.String()
}

func (s *RedisStore) Create(ctx context.Context, r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode claim: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(r.Address), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis claim error: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, addr contracts.Address) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis claim error: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode claim: %w", err)
	}
	return &r, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
