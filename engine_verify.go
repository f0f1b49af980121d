package magiccode

import (
	"context"

	"github.com/MrEthical07/magiccode/internal/flows"
)

// Verify resolves the code and identity fields from sources (first source
// containing a field wins), checks that a token exists for the code, that it
// belongs to the identity and that it has not expired. The token is deleted
// before the verifier hook runs, so a code can succeed at most once. Every
// validation failure returns [ErrInvalidCode]; an error from the hook is returned
// unchanged.
func (e *Engine) Verify(ctx context.Context, sources []Source, opts Options) (*Result, error) {
	if e == nil || e.storage == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}
	if opts.Action == "" {
		opts.Action = ActionCallback
	}

	deps := e.flowDeps.Verify
	deps.EmitAudit = e.auditFor(opts.Action)
	deps.Callback = func(ctx context.Context, user map[string]any) (any, error) {
		return e.verifier(ctx, Record(user), opts)
	}

	verified, err := flows.RunVerify(ctx, toFlowSources(sources), deps)
	if err != nil {
		return nil, err
	}

	return &Result{
		Outcome:   OutcomeSuccess,
		Action:    opts.Action,
		UserKey:   verified.UserKey,
		User:      Record(verified.User),
		Principal: verified.Principal,
	}, nil
}

func (e *Engine) getToken(ctx context.Context, code string) (flows.TokenRecord, bool, error) {
	t, found, err := e.storage.Get(ctx, code)
	if err != nil || !found || t == nil {
		return flows.TokenRecord{}, false, err
	}
	return flows.TokenRecord{ExpiresAt: t.ExpiresAt, User: t.User}, true, nil
}

func (e *Engine) consumeToken(ctx context.Context, code string, accept func(flows.TokenRecord) bool) (flows.TokenRecord, bool, error) {
	t, found, err := e.consumer.Consume(ctx, code, func(candidate *Token) bool {
		if candidate == nil {
			return false
		}
		return accept(flows.TokenRecord{ExpiresAt: candidate.ExpiresAt, User: candidate.User})
	})
	if err != nil || !found || t == nil {
		return flows.TokenRecord{}, false, err
	}
	return flows.TokenRecord{ExpiresAt: t.ExpiresAt, User: t.User}, true, nil
}
