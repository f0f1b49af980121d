package flows

import (
	"context"
	"strconv"
	"time"
)

// TokenRecord mirrors the persisted token without importing the root package.
type TokenRecord struct {
	ExpiresAt time.Time
	User      map[string]any
}

type IssueResult struct {
	Code      string
	UserKey   string
	Record    map[string]any
	ExpiresAt time.Time
}

type IssueMetrics struct {
	IssueRequest    int
	IssueSuccess    int
	DeliveryFailure int
	StorageFailure  int
	MissingField    int
	IssueLatency    int
}

type IssueEvents struct {
	Issue string
}

type IssueErrors struct {
	EngineNotReady error
	MissingField   func(field string) error
	InvalidField   func(field string) error
	Generation     func(error) error
	Delivery       func(error) error
	Storage        func(error) error
}

type IssueDeps struct {
	UserKeyField string
	TTL          time.Duration

	Now          func() time.Time
	GenerateCode func() (int, error)
	Deliver      func(context.Context, map[string]any, int) error
	SaveToken    func(context.Context, string, TokenRecord) error

	MetricInc     func(int)
	MetricObserve func(int, time.Duration)
	EmitAudit     func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics IssueMetrics
	Events  IssueEvents
	Errors  IssueErrors
}

// RunIssue generates a code for record, hands it to the delivery hook and
// persists the token only once delivery succeeded. register selects whether the
// full record or only the identity field is stored.
func RunIssue(ctx context.Context, action string, register bool, record map[string]any, deps IssueDeps) (IssueResult, error) {
	normalizeIssueDeps(&deps)

	if deps.GenerateCode == nil || deps.Deliver == nil || deps.SaveToken == nil {
		return IssueResult{}, deps.Errors.EngineNotReady
	}

	started := deps.Now()
	defer func() {
		deps.MetricObserve(deps.Metrics.IssueLatency, deps.Now().Sub(started))
	}()
	deps.MetricInc(deps.Metrics.IssueRequest)

	raw, ok := record[deps.UserKeyField]
	if !ok {
		err := deps.Errors.MissingField(deps.UserKeyField)
		deps.MetricInc(deps.Metrics.MissingField)
		deps.EmitAudit(ctx, deps.Events.Issue, false, "", err, func() map[string]string {
			return map[string]string{
				"action": action,
				"reason": "missing_field",
			}
		})
		return IssueResult{}, err
	}
	userKey, ok := raw.(string)
	if !ok {
		err := deps.Errors.InvalidField(deps.UserKeyField)
		deps.MetricInc(deps.Metrics.MissingField)
		deps.EmitAudit(ctx, deps.Events.Issue, false, "", err, func() map[string]string {
			return map[string]string{
				"action": action,
				"reason": "invalid_field",
			}
		})
		return IssueResult{}, err
	}

	code, err := deps.GenerateCode()
	if err != nil {
		mapped := deps.Errors.Generation(err)
		deps.EmitAudit(ctx, deps.Events.Issue, false, userKey, mapped, func() map[string]string {
			return map[string]string{
				"action": action,
				"reason": "generation_failed",
			}
		})
		return IssueResult{}, mapped
	}

	if err := deps.Deliver(ctx, record, code); err != nil {
		mapped := deps.Errors.Delivery(err)
		deps.MetricInc(deps.Metrics.DeliveryFailure)
		deps.EmitAudit(ctx, deps.Events.Issue, false, userKey, mapped, func() map[string]string {
			return map[string]string{
				"action": action,
				"reason": "delivery_failed",
			}
		})
		return IssueResult{}, mapped
	}

	stored := map[string]any{deps.UserKeyField: raw}
	if register {
		stored = cloneRecord(record)
	}
	token := TokenRecord{
		ExpiresAt: deps.Now().Add(deps.TTL),
		User:      stored,
	}

	key := strconv.Itoa(code)
	if err := deps.SaveToken(ctx, key, token); err != nil {
		mapped := deps.Errors.Storage(err)
		deps.MetricInc(deps.Metrics.StorageFailure)
		deps.EmitAudit(ctx, deps.Events.Issue, false, userKey, mapped, func() map[string]string {
			return map[string]string{
				"action": action,
				"reason": "storage_failed",
			}
		})
		return IssueResult{}, mapped
	}

	deps.MetricInc(deps.Metrics.IssueSuccess)
	deps.EmitAudit(ctx, deps.Events.Issue, true, userKey, nil, func() map[string]string {
		return map[string]string{
			"action": action,
		}
	})

	return IssueResult{
		Code:      key,
		UserKey:   userKey,
		Record:    record,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

func cloneRecord(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}

func normalizeIssueDeps(deps *IssueDeps) {
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
		deps.Errors.MissingField = func(string) error { return deps.Errors.EngineNotReady }
	}
	if deps.Errors.InvalidField == nil {
		deps.Errors.InvalidField = deps.Errors.MissingField
	}
	if deps.Errors.Generation == nil {
		deps.Errors.Generation = func(err error) error { return err }
	}
	if deps.Errors.Delivery == nil {
		deps.Errors.Delivery = func(err error) error { return err }
	}
	if deps.Errors.Storage == nil {
		deps.Errors.Storage = func(err error) error { return err }
	}
}
