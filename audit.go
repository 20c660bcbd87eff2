package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"
)

// AuditSink receives security events from the async dispatcher. Emit must
// be safe for concurrent use and should never block for long; slow sinks
// cause drops, not back-pressure on request handling.
type AuditSink interface {
	Emit(ctx context.Context, event SecurityEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements [AuditSink].
func (NoOpSink) Emit(context.Context, SecurityEvent) {}

// ChannelSink forwards events to a Go channel, for consumers that stream
// them elsewhere.
type ChannelSink struct {
	events chan SecurityEvent
}

// NewChannelSink creates a channel sink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan SecurityEvent, buffer),
	}
}

// Emit implements [AuditSink].
func (s *ChannelSink) Emit(ctx context.Context, event SecurityEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the sink's stream.
func (s *ChannelSink) Events() <-chan SecurityEvent {
	return s.events
}

// JSONWriterSink writes events as JSON lines.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSON-lines sink over the writer.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit implements [AuditSink].
func (s *JSONWriterSink) Emit(ctx context.Context, event SecurityEvent) {
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

// StoreSink appends events to the durable security-event log. Append
// failures are logged and dropped: the audit trail is best-effort from the
// request path's point of view, never a reason to fail a flow.
type StoreSink struct {
	store  SecurityEventStore
	logger *zap.Logger
}

// NewStoreSink creates a durable sink over the given store.
func NewStoreSink(store SecurityEventStore, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: store, logger: logger}
}

// Emit implements [AuditSink].
func (s *StoreSink) Emit(ctx context.Context, event SecurityEvent) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Append(ctx, &event); err != nil {
		s.logger.Error("security event append failed",
			zap.String("event_type", event.EventType),
			zap.String("severity", string(event.Severity)),
			zap.Error(err),
		)
	}
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []AuditSink

// Emit implements [AuditSink].
func (m MultiSink) Emit(ctx context.Context, event SecurityEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}
