package tool

import (
	"context"
	"log/slog"
	"sync"
)

// messageRecorder is a slog.Handler that keeps the Info and above messages a
// tool logged so they can be returned in the outcome, and forwards every
// record to the host logger.
type messageRecorder struct {
	next  slog.Handler
	store *messageStore
}

type messageStore struct {
	mu       sync.Mutex
	messages []string
}

func newMessageRecorder(next slog.Handler) *messageRecorder {
	return &messageRecorder{next: next, store: &messageStore{}}
}

func (h *messageRecorder) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.next.Enabled(ctx, level)
}

func (h *messageRecorder) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelInfo {
		h.store.add(formatMessage(record))
	}
	if h.next.Enabled(ctx, record.Level) {
		return h.next.Handle(ctx, record)
	}
	return nil
}

func (h *messageRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &messageRecorder{next: h.next.WithAttrs(attrs), store: h.store}
}

func (h *messageRecorder) WithGroup(name string) slog.Handler {
	return &messageRecorder{next: h.next.WithGroup(name), store: h.store}
}

func (h *messageRecorder) Messages() []string {
	return h.store.list()
}

func (s *messageStore) add(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

func (s *messageStore) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func formatMessage(record slog.Record) string {
	switch {
	case record.Level >= slog.LevelError:
		return "error: " + record.Message
	case record.Level >= slog.LevelWarn:
		return "warning: " + record.Message
	default:
		return record.Message
	}
}
