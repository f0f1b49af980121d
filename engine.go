package magiccode

import (
	"context"
	"fmt"
	"net/http"
	"time"

	internalaudit "github.com/MrEthical07/magiccode/internal/audit"
	"github.com/MrEthical07/magiccode/internal/flows"
	"github.com/MrEthical07/magiccode/receipt"
)

// Engine issues and verifies magic codes. Create it with [Builder.Build]; the
// zero value is not usable and reports [ErrEngineNotReady].
type Engine struct {
	config   Config
	storage  Storage
	consumer Consumer
	sender   SendCodeFunc
	verifier VerifyFunc
	clock    Clock
	receipts *receipt.Manager
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	flowDeps flows.Deps
}

// Authenticate dispatches req by its action: login and register issue a code for
// the request body, callback verifies a code resolved from body, query and path
// parameters in that order. Any other action fails with [ErrUnknownAction].
func (e *Engine) Authenticate(ctx context.Context, req Request) (*Result, error) {
	if e == nil || e.storage == nil {
		return nil, ErrEngineNotReady
	}

	switch req.Options.Action {
	case ActionLogin, ActionRegister:
		return e.Issue(ctx, Record(req.Body), req.Options)
	case ActionCallback:
		return e.Verify(ctx, req.Sources(), req.Options)
	default:
		return nil, e.unknownAction(ctx, req.Options.Action)
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Storage returns the configured token backend.
func (e *Engine) Storage() Storage {
	if e == nil {
		return nil
	}
	return e.storage
}

// ParseReceipt validates a receipt returned by Issue. It fails when receipts are
// disabled.
func (e *Engine) ParseReceipt(token string) (*receipt.Claims, error) {
	if e == nil || e.receipts == nil {
		return nil, fmt.Errorf("%w: receipts disabled", ErrEngineNotReady)
	}
	return e.receipts.Parse(token)
}

// Close flushes and stops the audit dispatcher. It does not close the storage
// backend.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) unknownAction(ctx context.Context, action Action) error {
	err := &Error{
		Kind:    KindUnknownAction,
		Code:    ErrUnknownAction.Code,
		Message: fmt.Sprintf("The action %q is not supported.", string(action)),
		Status:  http.StatusInternalServerError,
	}
	e.metricInc(MetricUnknownAction)
	e.emitAudit(ctx, "magiccode_dispatch", action, false, "", err, nil)
	return err
}

func (e *Engine) initFlowDeps() {
	inc := func(id int) { e.metricInc(MetricID(id)) }
	observe := func(id int, d time.Duration) { e.metricObserve(MetricID(id), d) }

	e.flowDeps = flows.Deps{
		Issue: flows.IssueDeps{
			UserKeyField:  e.config.UserKeyField,
			TTL:           e.config.ExpiresIn,
			Now:           e.now,
			GenerateCode:  e.generateCode,
			SaveToken:     e.saveToken,
			MetricInc:     inc,
			MetricObserve: observe,
			Metrics: flows.IssueMetrics{
				IssueRequest:    int(MetricIssueRequest),
				IssueSuccess:    int(MetricIssueSuccess),
				DeliveryFailure: int(MetricDeliveryFailure),
				StorageFailure:  int(MetricIssueStorageFailure),
				MissingField:    int(MetricIssueMissingField),
				IssueLatency:    int(MetricIssueLatency),
			},
			Events: flows.IssueEvents{
				Issue: auditEventIssue,
			},
			Errors: flows.IssueErrors{
				EngineNotReady: ErrEngineNotReady,
				MissingField:   missingFieldError,
				InvalidField:   invalidFieldError,
				Generation:     generationError,
				Delivery:       deliveryError,
				Storage:        storageError,
			},
		},
		Verify: flows.VerifyDeps{
			CodeField:     e.config.CodeField,
			UserKeyField:  e.config.UserKeyField,
			Now:           e.now,
			GetToken:      e.getToken,
			DeleteToken:   e.storage.Delete,
			MetricInc:     inc,
			MetricObserve: observe,
			Metrics: flows.VerifyMetrics{
				VerifyRequest:  int(MetricVerifyRequest),
				VerifySuccess:  int(MetricVerifySuccess),
				VerifyFailure:  int(MetricVerifyFailure),
				MissingField:   int(MetricVerifyMissingField),
				StorageFailure: int(MetricVerifyStorageFailure),
				VerifyLatency:  int(MetricVerifyLatency),
			},
			Events: flows.VerifyEvents{
				Verify: auditEventVerify,
			},
			Errors: flows.VerifyErrors{
				EngineNotReady: ErrEngineNotReady,
				InvalidCode:    ErrInvalidCode,
				MissingField:   missingFieldError,
				Storage:        storageError,
			},
		},
	}
	if e.consumer != nil {
		e.flowDeps.Verify.ConsumeToken = e.consumeToken
	}
}
