package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenRecordVersionV1 = 1
	tokenHeaderSize      = 9
	minTokenTTL          = time.Second
	maxConsumeRetries    = 4
)

var (
	ErrTokenBackend = errors.New("token backend unavailable")
	ErrTokenCorrupt = errors.New("token record corrupt")
)

// TokenRecord is the persisted form of an outstanding code.
type TokenRecord struct {
	ExpiresAt time.Time
	User      map[string]any
}

type TokenStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewTokenStore(redisClient redis.UniversalClient, prefix string) *TokenStore {
	if prefix == "" {
		prefix = "amc"
	}
	return &TokenStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *TokenStore) key(code string) string {
	return s.prefix + ":" + code
}

// Save overwrites any record stored under code. The Redis TTL tracks the
// remaining lifetime but never drops below one second, so an already expired
// record is still observable and rejected by expiry checks.
func (s *TokenStore) Save(ctx context.Context, code string, record *TokenRecord) error {
	encoded, err := encodeTokenRecord(record)
	if err != nil {
		return err
	}

	ttl := record.ExpiresAt.Sub(s.now())
	if ttl < minTokenTTL {
		ttl = minTokenTTL
	}

	if err := s.redis.Set(ctx, s.key(code), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenBackend, err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, code string) (*TokenRecord, bool, error) {
	data, err := s.redis.Get(ctx, s.key(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrTokenBackend, err)
	}

	record, err := decodeTokenRecord(data)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

func (s *TokenStore) Delete(ctx context.Context, code string) error {
	if err := s.redis.Del(ctx, s.key(code)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenBackend, err)
	}
	return nil
}

// Consume deletes the record under code if accept approves it, atomically with
// respect to other consumers. A rejected record is left in place.
func (s *TokenStore) Consume(
	ctx context.Context,
	code string,
	accept func(*TokenRecord) bool,
) (*TokenRecord, bool, error) {
	key := s.key(code)

	for i := 0; i < maxConsumeRetries; i++ {
		var consumed *TokenRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return nil
				}
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}
			if !accept(record) {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}

			consumed = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrTokenCorrupt) {
			return nil, false, err
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrTokenBackend, err)
		}
		return consumed, consumed != nil, nil
	}

	return nil, false, fmt.Errorf("%w: consume contention", ErrTokenBackend)
}

func encodeTokenRecord(record *TokenRecord) ([]byte, error) {
	if record == nil {
		return nil, errors.New("nil token record")
	}

	user, err := json.Marshal(record.User)
	if err != nil {
		return nil, fmt.Errorf("encode token user: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(tokenHeaderSize + len(user))
	buf.WriteByte(tokenRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}
	buf.Write(user)

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*TokenRecord, error) {
	if len(data) < tokenHeaderSize {
		return nil, fmt.Errorf("%w: short record", ErrTokenCorrupt)
	}
	if data[0] != tokenRecordVersionV1 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrTokenCorrupt, data[0])
	}

	expiresAt := int64(binary.BigEndian.Uint64(data[1:tokenHeaderSize]))

	record := &TokenRecord{
		ExpiresAt: time.UnixMilli(expiresAt),
	}

	dec := json.NewDecoder(bytes.NewReader(data[tokenHeaderSize:]))
	dec.UseNumber()
	if err := dec.Decode(&record.User); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenCorrupt, err)
	}

	return record, nil
}
