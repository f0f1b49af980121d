package magiccode

import (
	"io"

	internalaudit "github.com/MrEthical07/magiccode/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpAuditSink silently discards all events.
type NoOpAuditSink = internalaudit.NoOpSink

// ChannelAuditSink is a buffered channel-based [AuditSink].
type ChannelAuditSink = internalaudit.ChannelSink

// JSONWriterAuditSink writes one JSON-encoded event per line to an [io.Writer].
type JSONWriterAuditSink = internalaudit.JSONWriterSink

// ZapAuditSink logs events through a zap logger: info on success, warn on failure.
type ZapAuditSink = internalaudit.ZapSink

// NewChannelAuditSink creates a [ChannelAuditSink] with the given buffer capacity.
func NewChannelAuditSink(buffer int) *ChannelAuditSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterAuditSink creates a [JSONWriterAuditSink] that writes to w.
func NewJSONWriterAuditSink(w io.Writer) *JSONWriterAuditSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapAuditSink creates a [ZapAuditSink] backed by logger.
func NewZapAuditSink(logger *zap.Logger) *ZapAuditSink {
	return internalaudit.NewZapSink(logger)
}

const (
	auditEventIssue  = "magiccode_issue"
	auditEventVerify = "magiccode_verify"
)
