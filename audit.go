package finguard

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the guards.
const (
	EventRateLimitLockout = "rate_limit.lockout"
	EventRateLimitBlocked = "rate_limit.blocked"
	EventLockoutTriggered = "lockout.triggered"
	EventLockoutCleared   = "lockout.cleared"
	EventAccountUnlocked  = "lockout.unlocked"
	EventSessionCreated   = "session.created"
	EventSessionAbsolute  = "session.expired_absolute"
	EventSessionIdle      = "session.expired_idle"
	EventSessionsRevoked  = "session.invalidated"
	EventFailOpen         = "guard.fail_open"
)

// AuditEvent is the structured record handed to the configured [AuditSink]
// at every policy trigger or fail-open decision. Fire-and-forget: sinks must
// not block the dispatcher for long.
type AuditEvent struct {
	EventID    string            `json:"event_id"`
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	Identifier string            `json:"identifier,omitempty"`
	Action     string            `json:"action,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	IP         string            `json:"ip,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives emitted audit events.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
