package magiccode

import (
	"context"
	"net/http"

	"github.com/MrEthical07/magiccode/internal"
	"github.com/MrEthical07/magiccode/internal/flows"
)

// Issue generates a code for record, delivers it through the sender hook and,
// once delivery succeeded, stores a token keyed by the code. For [ActionRegister]
// the whole record is stored; otherwise only the identity field is kept. An empty
// opts.Action is treated as [ActionLogin].
//
// The code itself is never part of the result. It only leaves the engine through
// the sender hook.
func (e *Engine) Issue(ctx context.Context, record Record, opts Options) (*Result, error) {
	if e == nil || e.storage == nil || e.sender == nil {
		return nil, ErrEngineNotReady
	}
	if opts.Action == "" {
		opts.Action = ActionLogin
	}
	if opts.Action != ActionLogin && opts.Action != ActionRegister {
		return nil, e.unknownAction(ctx, opts.Action)
	}

	deps := e.flowDeps.Issue
	deps.EmitAudit = e.auditFor(opts.Action)
	deps.Deliver = func(ctx context.Context, rec map[string]any, code int) error {
		return e.sender(ctx, Record(rec), code, opts)
	}

	issued, err := flows.RunIssue(ctx, string(opts.Action), opts.Action == ActionRegister, record, deps)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Outcome:   OutcomePass,
		Action:    opts.Action,
		UserKey:   issued.UserKey,
		Record:    Record(issued.Record),
		ExpiresAt: issued.ExpiresAt,
	}
	if e.receipts != nil {
		signed, err := e.receipts.Sign(issued.UserKey, string(opts.Action), issued.ExpiresAt)
		if err != nil {
			return nil, &Error{
				Kind:    KindConfiguration,
				Code:    "Receipt signing failed",
				Message: "The code was sent but its receipt could not be signed.",
				Status:  http.StatusInternalServerError,
				Err:     err,
			}
		}
		result.Receipt = signed
	}

	return result, nil
}

func (e *Engine) generateCode() (int, error) {
	return internal.NewCode(e.config.CodeLength)
}

func (e *Engine) saveToken(ctx context.Context, code string, rec flows.TokenRecord) error {
	return e.storage.Set(ctx, code, Token{
		ExpiresAt: rec.ExpiresAt,
		User:      Record(rec.User),
	})
}
