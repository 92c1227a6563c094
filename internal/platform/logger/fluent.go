package logger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Poster is the part of *fluent.Fluent used by FluentHandler.
type Poster interface {
	Post(tag string, message interface{}) error
}

// FluentHandler is a slog.Handler that posts each record as a flat map to
// Fluent. The tag is the lower-case level name; the client adds its prefix.
type FluentHandler struct {
	client Poster
	level  slog.Leveler
	attrs  []slog.Attr
	group  string
}

// NewFluentHandler creates a handler posting records at or above level.
func NewFluentHandler(client Poster, level slog.Leveler) *FluentHandler {
	return &FluentHandler{client: client, level: level}
}

func (h *FluentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *FluentHandler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]interface{}, r.NumAttrs()+len(h.attrs)+3)
	for _, a := range h.attrs {
		addAttr(data, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(data, h.group, a)
		return true
	})
	data["level"] = r.Level.String()
	data["message"] = r.Message
	data["timestamp"] = r.Time.UTC().Format(time.RFC3339Nano)

	return h.client.Post(strings.ToLower(r.Level.String()), data)
}

func (h *FluentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *FluentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func addAttr(data map[string]interface{}, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(data, key, ga)
		}
		return
	}
	switch a.Value.Kind() {
	case slog.KindTime:
		data[key] = a.Value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindDuration:
		data[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			data[key] = err.Error()
			return
		}
		data[key] = a.Value.Any()
	default:
		data[key] = a.Value.Any()
	}
}

// TeeHandler fans each record out to several handlers.
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler returns a handler that writes to every handler in hs.
func NewTeeHandler(hs ...slog.Handler) *TeeHandler {
	return &TeeHandler{handlers: hs}
}

func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &TeeHandler{handlers: hs}
}

func (t *TeeHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &TeeHandler{handlers: hs}
}
