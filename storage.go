package magiccode

import (
	"context"
	"time"
)

// Token is the stored record pairing a user payload with its expiry, keyed by
// its code.
type Token struct {
	ExpiresAt time.Time
	User      Record
}

// Expired reports whether the token is no longer valid at now. A token expiring
// exactly at now is expired.
func (t *Token) Expired(now time.Time) bool {
	return t == nil || !now.Before(t.ExpiresAt)
}

// Storage holds outstanding tokens keyed by their code. Implementations must be
// safe for concurrent use. Get reports found=false for an absent code and
// reserves the error return for backend failures. Delete of an absent code is
// not an error.
type Storage interface {
	Get(ctx context.Context, code string) (*Token, bool, error)
	Set(ctx context.Context, code string, token Token) error
	Delete(ctx context.Context, code string) error
}

// Consumer is an optional Storage extension. Consume hands the token stored under
// code to accept and, only when accept returns true, deletes it in the same
// atomic step. A rejected token stays in place. Only one of any number of
// concurrent callers can observe found=true for the same token.
type Consumer interface {
	Consume(ctx context.Context, code string, accept func(*Token) bool) (*Token, bool, error)
}

func cloneRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func cloneToken(t Token) *Token {
	return &Token{
		ExpiresAt: t.ExpiresAt,
		User:      cloneRecord(t.User),
	}
}
