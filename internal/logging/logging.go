// Package logging configures the process-wide slog handler and hands out
// component-scoped loggers.
//
// Loggers obtained from L before Init runs pick up the configured handler
// once Init is called, so packages can declare a logger at package level:
//
//	var log = logging.L("catalog")
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

var current atomic.Value // slog.Handler

func init() {
	current.Store(slog.Handler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
}

// Init installs the stderr text handler. Pass debug=true to enable
// debug-level records.
func Init(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	current.Store(slog.Handler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// L returns a logger scoped to the given component.
func L(component string) *slog.Logger {
	return slog.New(&switchableHandler{
		attrs: []slog.Attr{slog.String("component", component)},
	})
}

// switchableHandler resolves the active handler on every record, so loggers
// created before Init see the handler installed by Init.
type switchableHandler struct {
	attrs  []slog.Attr
	groups []string
}

func (h *switchableHandler) materialize() slog.Handler {
	handler := current.Load().(slog.Handler)
	for _, group := range h.groups {
		handler = handler.WithGroup(group)
	}
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	return handler
}

func (h *switchableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.materialize().Enabled(ctx, level)
}

func (h *switchableHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.materialize().Handle(ctx, record)
}

func (h *switchableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)

	groups := make([]string, len(h.groups))
	copy(groups, h.groups)

	return &switchableHandler{attrs: merged, groups: groups}
}

func (h *switchableHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)

	return &switchableHandler{attrs: h.attrs, groups: groups}
}
