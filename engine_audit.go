package magiccode

import (
	"context"
	"errors"
)

// AuditErrorCode is the stable error label recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrMissingField  AuditErrorCode = "missing_field"
	auditErrInvalidCode   AuditErrorCode = "invalid_code"
	auditErrDelivery      AuditErrorCode = "delivery_failed"
	auditErrUnavailable   AuditErrorCode = "backend_unavailable"
	auditErrUnknownAction AuditErrorCode = "unknown_action"
	auditErrRejected      AuditErrorCode = "verification_rejected"
	auditErrInternal      AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	action Action,
	success bool,
	userKey string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Action:    string(action),
		UserKey:   userKey,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) auditFor(action Action) func(context.Context, string, bool, string, error, func() map[string]string) {
	return func(ctx context.Context, eventType string, success bool, userKey string, err error, meta func() map[string]string) {
		e.emitAudit(ctx, eventType, action, success, userKey, err, meta)
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch KindOf(err) {
	case KindValidation:
		return auditErrMissingField
	case KindAuth:
		return auditErrInvalidCode
	case KindDelivery:
		return auditErrDelivery
	case KindStorage:
		return auditErrUnavailable
	case KindUnknownAction:
		return auditErrUnknownAction
	case KindConfiguration:
		return auditErrInternal
	}
	if errors.Is(err, ErrEngineNotReady) {
		return auditErrInternal
	}
	return auditErrRejected
}
