package magiccode

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/magiccode/internal/stores"
	"github.com/redis/go-redis/v9"
)

// RedisStorage is a [Storage] shared across processes through Redis. Each token
// lives under "<prefix>:<code>" with a Redis TTL that tracks its expiry. Backend
// failures wrap [ErrStorageUnavailable].
type RedisStorage struct {
	store *stores.TokenStore
}

// NewRedisStorage wraps client. An empty prefix defaults to "amc". The caller
// keeps ownership of client.
func NewRedisStorage(client redis.UniversalClient, prefix string) *RedisStorage {
	return &RedisStorage{
		store: stores.NewTokenStore(client, prefix),
	}
}

func (s *RedisStorage) Get(ctx context.Context, code string) (*Token, bool, error) {
	rec, found, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, false, mapStoreError(err)
	}
	if !found {
		return nil, false, nil
	}
	return tokenFromStore(rec), true, nil
}

func (s *RedisStorage) Set(ctx context.Context, code string, token Token) error {
	return mapStoreError(s.store.Save(ctx, code, &stores.TokenRecord{
		ExpiresAt: token.ExpiresAt,
		User:      token.User,
	}))
}

func (s *RedisStorage) Delete(ctx context.Context, code string) error {
	return mapStoreError(s.store.Delete(ctx, code))
}

// Consume implements [Consumer] with an optimistic WATCH/MULTI transaction.
func (s *RedisStorage) Consume(ctx context.Context, code string, accept func(*Token) bool) (*Token, bool, error) {
	var accepted *Token
	_, found, err := s.store.Consume(ctx, code, func(rec *stores.TokenRecord) bool {
		candidate := tokenFromStore(rec)
		if accept != nil && !accept(candidate) {
			return false
		}
		accepted = candidate
		return true
	})
	if err != nil {
		return nil, false, mapStoreError(err)
	}
	if !found {
		return nil, false, nil
	}
	return accepted, true, nil
}

func tokenFromStore(rec *stores.TokenRecord) *Token {
	if rec == nil {
		return nil
	}
	return &Token{
		ExpiresAt: rec.ExpiresAt,
		User:      Record(rec.User),
	}
}

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
