package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// switchHandler forwards to the module's current output chain. Initialize
// swaps the chain in place, so loggers created before it pick up the new
// format and outputs without being replaced.
type switchHandler struct {
	target *atomic.Pointer[slog.Handler]
	ops    []func(slog.Handler) slog.Handler
}

func newSwitchHandler(h slog.Handler) *switchHandler {
	target := &atomic.Pointer[slog.Handler]{}
	target.Store(&h)
	return &switchHandler{target: target}
}

// swap installs a new chain for every logger derived from this handler.
func (s *switchHandler) swap(h slog.Handler) {
	s.target.Store(&h)
}

func (s *switchHandler) resolve() slog.Handler {
	h := *s.target.Load()
	for _, op := range s.ops {
		h = op(h)
	}
	return h
}

func (s *switchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.resolve().Enabled(ctx, level)
}

func (s *switchHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.resolve().Handle(ctx, r)
}

func (s *switchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return s.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (s *switchHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	return s.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (s *switchHandler) derive(op func(slog.Handler) slog.Handler) *switchHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(s.ops), len(s.ops)+1)
	copy(ops, s.ops)
	return &switchHandler{target: s.target, ops: append(ops, op)}
}
