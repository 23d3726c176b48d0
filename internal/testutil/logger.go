package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// TestLogger captures structured log records so tests can assert on
// warnings and errors emitted by components.
type TestLogger struct {
	mu      sync.RWMutex
	entries []LogEntry
	buffer  *bytes.Buffer

	Logger *slog.Logger
}

// LogEntry is one captured record.
type LogEntry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// NewTestLogger creates a logger capturing every level.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()

	tl := &TestLogger{buffer: &bytes.Buffer{}}
	tl.Logger = slog.New(&captureHandler{
		owner:   tl,
		handler: slog.NewJSONHandler(tl.buffer, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
	return tl
}

// captureHandler records entries and forwards them to a JSON handler.
type captureHandler struct {
	owner   *TestLogger
	handler slog.Handler
	attrs   []slog.Attr // From WithAttrs, keys already qualified
	group   string
}

func (h *captureHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func (h *captureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *captureHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Level:   r.Level,
		Message: r.Message,
		Attrs:   make(map[string]any, len(h.attrs)+r.NumAttrs()),
	}

	for _, a := range h.attrs {
		entry.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attrs[h.qualify(a.Key)] = a.Value.Any()
		return true
	})

	h.owner.mu.Lock()
	h.owner.entries = append(h.owner.entries, entry)
	h.owner.mu.Unlock()

	return h.handler.Handle(ctx, r)
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return &captureHandler{
		owner:   h.owner,
		handler: h.handler.WithAttrs(attrs),
		attrs:   merged,
		group:   h.group,
	}
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &captureHandler{
		owner:   h.owner,
		handler: h.handler.WithGroup(name),
		attrs:   h.attrs,
		group:   group,
	}
}

// Entries returns a copy of all captured entries.
func (l *TestLogger) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesAt returns entries at level.
func (l *TestLogger) EntriesAt(level slog.Level) []LogEntry {
	var out []LogEntry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// EntriesContaining returns entries whose message contains substr.
func (l *TestLogger) EntriesContaining(substr string) []LogEntry {
	var out []LogEntry
	for _, e := range l.Entries() {
		if strings.Contains(e.Message, substr) {
			out = append(out, e)
		}
	}
	return out
}

// Output returns the raw JSON lines.
func (l *TestLogger) Output() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buffer.String()
}

// AssertContains fails t unless some entry's message contains msg.
func (l *TestLogger) AssertContains(t *testing.T, msg string) {
	t.Helper()
	if len(l.EntriesContaining(msg)) == 0 {
		t.Errorf("Expected log to contain message %q, but it wasn't found", msg)
	}
}

// AssertNotContains fails t if any entry's message contains msg.
func (l *TestLogger) AssertNotContains(t *testing.T, msg string) {
	t.Helper()
	if n := len(l.EntriesContaining(msg)); n > 0 {
		t.Errorf("Expected log to not contain message %q, but found %d entries", msg, n)
	}
}

// AssertLevelAtLeast fails t unless at least minCount entries are at level.
func (l *TestLogger) AssertLevelAtLeast(t *testing.T, level slog.Level, minCount int) {
	t.Helper()
	if n := len(l.EntriesAt(level)); n < minCount {
		t.Errorf("Expected at least %d entries at level %s, got %d", minCount, level, n)
	}
}
