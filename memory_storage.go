package magiccode

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage is the default in-process [Storage]. Tokens are never evicted on
// their own; expired entries are rejected at verification and removed by
// [MemoryStorage.Sweep]. Records are copied on the way in and out so callers
// cannot mutate stored state.
type MemoryStorage struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tokens: make(map[string]Token),
	}
}

func (s *MemoryStorage) Get(_ context.Context, code string) (*Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[code]
	if !ok {
		return nil, false, nil
	}
	return cloneToken(t), true, nil
}

func (s *MemoryStorage) Set(_ context.Context, code string, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil {
		s.tokens = make(map[string]Token)
	}
	s.tokens[code] = *cloneToken(token)
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, code)
	return nil
}

// Consume implements [Consumer] under the write lock.
func (s *MemoryStorage) Consume(_ context.Context, code string, accept func(*Token) bool) (*Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[code]
	if !ok {
		return nil, false, nil
	}
	candidate := cloneToken(t)
	if accept != nil && !accept(candidate) {
		return nil, false, nil
	}
	delete(s.tokens, code)
	return candidate, true, nil
}

// Len returns the number of stored tokens, expired ones included.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tokens)
}

// Sweep removes every token expired at now and returns how many were removed.
func (s *MemoryStorage) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for code, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, code)
			removed++
		}
	}
	return removed
}
