package magiccode

import (
	"context"
	"time"
)

// Action selects which half of the lifecycle Authenticate runs.
type Action string

const (
	// ActionLogin issues a code for an existing user; only the identity field is stored.
	ActionLogin Action = "login"
	// ActionRegister issues a code for a new user; the full record is stored.
	ActionRegister Action = "register"
	// ActionCallback verifies a previously issued code.
	ActionCallback Action = "callback"
)

// Record is an opaque user payload. It must contain the configured identity field
// when it is issued a code.
type Record map[string]any

// Source is one candidate input location (body, query, path parameters, ...).
type Source map[string]any

// Options is passed through to the delivery and verification hooks unchanged.
type Options struct {
	Action Action
	// Extra carries caller-defined values for the hooks, such as a template
	// name or a redirect target.
	Extra map[string]any
}

// Request is the transport-neutral input to [Engine.Authenticate].
type Request struct {
	Options Options
	Body    Source
	Query   Source
	Params  Source
}

// Sources returns the candidate inputs in lookup precedence order: body, query,
// then path parameters.
func (r Request) Sources() []Source {
	return []Source{r.Body, r.Query, r.Params}
}

// Outcome is the positive result of an Engine operation.
type Outcome string

const (
	// OutcomePass means a code was issued and the request is complete without
	// authenticating anyone yet.
	OutcomePass Outcome = "pass"
	// OutcomeSuccess means a code was consumed and the verification hook
	// produced a principal.
	OutcomeSuccess Outcome = "success"
)

// Result is returned by Issue, Verify and Authenticate on success.
type Result struct {
	Outcome Outcome
	Action  Action
	UserKey string

	// Issue only.
	Record    Record
	ExpiresAt time.Time
	Receipt   string

	// Verify only.
	User      Record
	Principal any
}

// Message is the human-readable summary for transport adapters.
func (r *Result) Message() string {
	if r == nil {
		return ""
	}
	if r.Outcome == OutcomePass {
		return "Magic code sent."
	}
	return "Authenticated."
}

// SendCodeFunc delivers code to the user described by record. A non-nil error
// aborts issuance before anything is persisted.
type SendCodeFunc func(ctx context.Context, record Record, code int, opts Options) error

// VerifyFunc finalizes authentication for the stored user payload and returns the
// principal. It runs only after the token has been deleted.
type VerifyFunc func(ctx context.Context, user Record, opts Options) (any, error)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
