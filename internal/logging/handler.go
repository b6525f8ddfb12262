package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
)

// Shared mutable state behind every handler derived from the same root.
type core struct {
	mu        sync.Mutex
	level     slog.LevelVar
	out       io.Writer
	formatter Formatter
	buffered  bool
	pending   []pendingRecord
}

// A record captured before the handler was flushed.
type pendingRecord struct {
	handler *Handler
	record  slog.Record
}

// Buffering slog handler with a runtime-configurable level, stream, and
// formatter.
//
// Handlers returned by WithAttrs and WithGroup share configuration with the
// handler they were derived from, so configuring the root affects the whole
// tree.
type Handler struct {
	core   *core
	attrs  []slog.Attr // Attributes added via WithAttrs, already qualified.
	groups []string    // Open groups, outermost first.
}

// Creates a new buffering [Handler] writing plain records to stderr once
// flushed.
func NewHandler() *Handler {
	c := &core{
		out:       os.Stderr,
		formatter: NewPlainFormatter(),
		buffered:  true,
	}
	c.level.Set(slog.LevelInfo)
	return &Handler{core: c}
}

// Sets the minimum level of records that are emitted.
func (h *Handler) SetLevel(level slog.Level) {
	h.core.level.Set(level)
}

// Returns the minimum level of records that are emitted.
func (h *Handler) Level() slog.Level {
	return h.core.level.Level()
}

// Sets the destination for formatted records.
func (h *Handler) SetStream(w io.Writer) {
	h.core.mu.Lock()
	defer h.core.mu.Unlock()
	h.core.out = w
}

// Sets the formatter used to render records.
func (h *Handler) SetFormatter(f Formatter) {
	h.core.mu.Lock()
	defer h.core.mu.Unlock()
	h.core.formatter = f
}

// Writes buffered records that pass the current level and disables
// buffering. Subsequent records are written immediately.
func (h *Handler) Flush() {
	c := h.core
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.pending
	c.pending = nil
	c.buffered = false

	for _, p := range pending {
		if p.record.Level < c.level.Level() {
			continue
		}
		c.write(p.handler, p.record)
	}
}

// Reports whether records at the given level are emitted.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	if h.core.isBuffered() {
		return true
	}
	return level >= h.core.level.Level()
}

// Formats and writes a record, or buffers it until [Handler.Flush].
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	c := h.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buffered {
		c.pending = append(c.pending, pendingRecord{handler: h, record: r.Clone()})
		return nil
	}
	return c.write(h, r)
}

// Returns a handler that adds attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	qualified := slices.Clone(h.attrs)
	for _, a := range attrs {
		qualified = append(qualified, qualify(h.groups, a))
	}
	return &Handler{core: h.core, attrs: qualified, groups: h.groups}
}

// Returns a handler that qualifies subsequent attributes with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(slices.Clone(h.groups), name)
	return &Handler{core: h.core, attrs: h.attrs, groups: groups}
}

// Whether records are still being buffered.
func (c *core) isBuffered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

// Renders and writes a record. The caller holds c.mu.
func (c *core) write(h *Handler, r slog.Record) error {
	attrs := slices.Clone(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, qualify(h.groups, a))
		return true
	})

	_, err := c.out.Write(c.formatter.Format(r, attrs))
	return err
}

// Wraps an attribute in the open groups, innermost last.
func qualify(groups []string, a slog.Attr) slog.Attr {
	for i := len(groups) - 1; i >= 0; i-- {
		a = slog.Attr{Key: groups[i], Value: slog.GroupValue(a)}
	}
	return a
}
