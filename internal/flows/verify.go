package flows

import (
	"context"
	"crypto/subtle"
	"time"
)

type VerifyResult struct {
	UserKey   string
	User      map[string]any
	Principal any
}

type VerifyMetrics struct {
	VerifyRequest  int
	VerifySuccess  int
	VerifyFailure  int
	MissingField   int
	StorageFailure int
	VerifyLatency  int
}

type VerifyEvents struct {
	Verify string
}

type VerifyErrors struct {
	EngineNotReady error
	InvalidCode    error
	MissingField   func(field string) error
	Storage        func(error) error
}

type VerifyDeps struct {
	CodeField    string
	UserKeyField string

	Now          func() time.Time
	GetToken     func(context.Context, string) (TokenRecord, bool, error)
	DeleteToken  func(context.Context, string) error
	ConsumeToken func(context.Context, string, func(TokenRecord) bool) (TokenRecord, bool, error)
	Callback     func(context.Context, map[string]any) (any, error)

	MetricInc     func(int)
	MetricObserve func(int, time.Duration)
	EmitAudit     func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics VerifyMetrics
	Events  VerifyEvents
	Errors  VerifyErrors
}

// RunVerify resolves code and identity from sources, validates the stored
// token, deletes it and only then invokes the callback. When ConsumeToken is
// set, validation and deletion happen as one atomic backend operation.
func RunVerify(ctx context.Context, sources []map[string]any, deps VerifyDeps) (VerifyResult, error) {
	normalizeVerifyDeps(&deps)

	if deps.Callback == nil || (deps.ConsumeToken == nil && (deps.GetToken == nil || deps.DeleteToken == nil)) {
		return VerifyResult{}, deps.Errors.EngineNotReady
	}

	started := deps.Now()
	defer func() {
		deps.MetricObserve(deps.Metrics.VerifyLatency, deps.Now().Sub(started))
	}()
	deps.MetricInc(deps.Metrics.VerifyRequest)

	code, ok := resolveField(sources, deps.CodeField)
	if !ok {
		return VerifyResult{}, verifyMissingField(ctx, deps, deps.CodeField, "")
	}
	userKey, ok := resolveField(sources, deps.UserKeyField)
	if !ok {
		return VerifyResult{}, verifyMissingField(ctx, deps, deps.UserKeyField, "")
	}

	now := deps.Now()
	accept := func(token TokenRecord) bool {
		return tokenMatches(token, deps.UserKeyField, userKey, now)
	}

	var (
		token TokenRecord
		found bool
		err   error
	)
	if deps.ConsumeToken != nil {
		token, found, err = deps.ConsumeToken(ctx, code, accept)
		if err != nil {
			return VerifyResult{}, verifyStorageFailure(ctx, deps, userKey, err)
		}
	} else {
		token, found, err = deps.GetToken(ctx, code)
		if err != nil {
			return VerifyResult{}, verifyStorageFailure(ctx, deps, userKey, err)
		}
		found = found && accept(token)
		if found {
			if err := deps.DeleteToken(ctx, code); err != nil {
				return VerifyResult{}, verifyStorageFailure(ctx, deps, userKey, err)
			}
		}
	}

	if !found {
		deps.MetricInc(deps.Metrics.VerifyFailure)
		deps.EmitAudit(ctx, deps.Events.Verify, false, userKey, deps.Errors.InvalidCode, nil)
		return VerifyResult{}, deps.Errors.InvalidCode
	}

	principal, err := deps.Callback(ctx, token.User)
	if err != nil {
		deps.MetricInc(deps.Metrics.VerifyFailure)
		deps.EmitAudit(ctx, deps.Events.Verify, false, userKey, err, func() map[string]string {
			return map[string]string{
				"reason": "callback_failed",
			}
		})
		return VerifyResult{}, err
	}

	deps.MetricInc(deps.Metrics.VerifySuccess)
	deps.EmitAudit(ctx, deps.Events.Verify, true, userKey, nil, nil)

	return VerifyResult{
		UserKey:   userKey,
		User:      token.User,
		Principal: principal,
	}, nil
}

func resolveField(sources []map[string]any, field string) (string, bool) {
	v, ok := LookupField(sources, field)
	if !ok {
		return "", false
	}
	s := Stringify(v)
	return s, s != ""
}

// tokenMatches reports whether token may be consumed for userKey at now.
// Expiry is non-strict: a token is already expired at ExpiresAt.
func tokenMatches(token TokenRecord, field, userKey string, now time.Time) bool {
	if token.User == nil {
		return false
	}
	stored, ok := token.User[field]
	if !ok || !Truthy(stored) {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(Stringify(stored)), []byte(userKey)) != 1 {
		return false
	}
	return now.Before(token.ExpiresAt)
}

func verifyMissingField(ctx context.Context, deps VerifyDeps, field, userKey string) error {
	err := deps.Errors.MissingField(field)
	deps.MetricInc(deps.Metrics.MissingField)
	deps.EmitAudit(ctx, deps.Events.Verify, false, userKey, err, func() map[string]string {
		return map[string]string{
			"reason": "missing_field",
			"field":  field,
		}
	})
	return err
}

func verifyStorageFailure(ctx context.Context, deps VerifyDeps, userKey string, err error) error {
	mapped := deps.Errors.Storage(err)
	deps.MetricInc(deps.Metrics.StorageFailure)
	deps.EmitAudit(ctx, deps.Events.Verify, false, userKey, mapped, func() map[string]string {
		return map[string]string{
			"reason": "storage_failed",
		}
	})
	return mapped
}

func normalizeVerifyDeps(deps *VerifyDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.MetricObserve == nil {
		deps.MetricObserve = func(int, time.Duration) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.Errors.MissingField == nil {
		deps.Errors.MissingField = func(string) error { return deps.Errors.InvalidCode }
	}
	if deps.Errors.Storage == nil {
		deps.Errors.Storage = func(err error) error { return err }
	}
}
