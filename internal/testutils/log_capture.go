package testutils

import (
	"context"
	"log/slog"
	"sync"
)

// LogEntry is a flattened log record. Attributes bound with Logger.With are
// included alongside the record's own attributes.
type LogEntry map[string]interface{}

// CaptureHandler is a memory-backed slog.Handler for asserting on logs.
type CaptureHandler struct {
	state *captureState
	attrs []slog.Attr
}

type captureState struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewCaptureHandler creates an empty CaptureHandler.
func NewCaptureHandler() *CaptureHandler {
	return &CaptureHandler{state: &captureState{}}
}

// NewCaptureLogger returns a logger writing to a new CaptureHandler.
func NewCaptureLogger() (*slog.Logger, *CaptureHandler) {
	h := NewCaptureHandler()
	return slog.New(h), h
}

// Enabled accepts every level.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle records r.
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		"level":   r.Level.String(),
		"message": r.Message,
	}
	for _, a := range h.attrs {
		entry[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		entry[a.Key] = a.Value.Resolve().Any()
		return true
	})

	h.state.mu.Lock()
	h.state.entries = append(h.state.entries, entry)
	h.state.mu.Unlock()
	return nil
}

// WithAttrs returns a handler sharing the same entries with attrs bound.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	bound = append(bound, h.attrs...)
	bound = append(bound, attrs...)
	return &CaptureHandler{state: h.state, attrs: bound}
}

// WithGroup ignores groups; captured keys stay flat.
func (h *CaptureHandler) WithGroup(string) slog.Handler {
	return h
}

// Entries returns a copy of the captured entries.
func (h *CaptureHandler) Entries() []LogEntry {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	out := make([]LogEntry, len(h.state.entries))
	copy(out, h.state.entries)
	return out
}

// Find returns the entries whose message equals msg.
func (h *CaptureHandler) Find(msg string) []LogEntry {
	var out []LogEntry
	for _, e := range h.Entries() {
		if e["message"] == msg {
			out = append(out, e)
		}
	}
	return out
}
