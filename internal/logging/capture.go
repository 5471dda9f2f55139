package logging

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// Capture tees log records into an in-memory buffer so a batch run's output
// can be archived when the run finishes. The capture is scoped to the run
// that created it: callers acquire one per run, pass its Logger through the
// run's components, and flush the buffer themselves at the end. Nothing is
// shared process-wide.
type Capture struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	next slog.Handler
}

// NewCapture returns a capture wrapping the given base logger. Records keep
// flowing to the base handler; a text copy accumulates in the buffer.
func NewCapture(base *Logger) *Capture {
	c := &Capture{next: base.Handler()}
	return c
}

// Logger returns the run-scoped logger writing through this capture.
func (c *Capture) Logger() *Logger {
	return &Logger{Logger: slog.New(&captureHandler{capture: c})}
}

// Bytes returns a copy of everything logged through the capture so far.
func (c *Capture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out
}

type captureHandler struct {
	capture *Capture
	attrs   []slog.Attr
	groups  []string
}

func (h *captureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.capture.next.Enabled(ctx, level)
}

func (h *captureHandler) Handle(ctx context.Context, rec slog.Record) error {
	c := h.capture
	c.mu.Lock()
	text := slog.NewTextHandler(&c.buf, nil)
	var wrapped slog.Handler = text
	for _, g := range h.groups {
		wrapped = wrapped.WithGroup(g)
	}
	if len(h.attrs) > 0 {
		wrapped = wrapped.WithAttrs(h.attrs)
	}
	err := wrapped.Handle(ctx, rec.Clone())
	c.mu.Unlock()
	if err != nil {
		return err
	}

	next := c.next
	for _, g := range h.groups {
		next = next.WithGroup(g)
	}
	if len(h.attrs) > 0 {
		next = next.WithAttrs(h.attrs)
	}
	return next.Handle(ctx, rec)
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &captureHandler{capture: h.capture, attrs: merged, groups: h.groups}
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &captureHandler{capture: h.capture, attrs: h.attrs, groups: groups}
}
