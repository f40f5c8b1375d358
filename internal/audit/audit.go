package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Type names what an Event records.
type Type string

const (
	TypeNavigation          Type = "navigation"
	TypeSessionChange       Type = "session_change"
	TypeSessionInitialError Type = "session_initial_error"
)

// Event is one audit record.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"type"`
	// Path is the navigation target, or empty for session events.
	Path string `json:"path,omitempty"`
	From string `json:"from,omitempty"`
	// Outcome is "allowed" or "redirected" for navigations.
	Outcome string `json:"outcome,omitempty"`
	// Redirect is where a redirected navigation was sent.
	Redirect string `json:"redirect,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	// AuthEvent is the backend notification behind a session change.
	AuthEvent string            `json:"auth_event,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a buffered channel, blocking until there is room
// or ctx ends.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}

// LoggerSink logs each event at info level under the "audit" message.
type LoggerSink struct {
	log *slog.Logger
}

func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggerSink{log: logger}
}

func (s *LoggerSink) Emit(ctx context.Context, event Event) {
	attrs := []slog.Attr{slog.String("type", string(event.Type))}
	add := func(key, val string) {
		if val != "" {
			attrs = append(attrs, slog.String(key, val))
		}
	}
	add("path", event.Path)
	add("from", event.From)
	add("outcome", event.Outcome)
	add("redirect", event.Redirect)
	add("user_id", event.UserID)
	add("auth_event", event.AuthEvent)
	add("error", event.Error)
	for k, v := range event.Metadata {
		add("meta."+k, v)
	}
	s.log.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
