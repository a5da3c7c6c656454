package log

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is a captured log record.
type Entry struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Ring keeps the most recent log entries in memory for the dashboard.
type Ring struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewRing creates a ring holding up to size entries.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{entries: make([]Entry, size)}
}

// Add stores e, evicting the oldest entry when full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns the stored entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Handler wraps next so that every record it handles is also added to r.
func (r *Ring) Handler(next slog.Handler) slog.Handler {
	return &ringHandler{next: next, ring: r}
}

type ringHandler struct {
	next   slog.Handler
	ring   *Ring
	attrs  []slog.Attr
	prefix string
}

func (h *ringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ringHandler) Handle(ctx context.Context, rec slog.Record) error {
	e := Entry{
		Time:    rec.Time,
		Level:   rec.Level.String(),
		Message: rec.Message,
	}
	if n := len(h.attrs) + rec.NumAttrs(); n > 0 {
		e.Attrs = make(map[string]string, n)
		for _, a := range h.attrs {
			e.Attrs[a.Key] = a.Value.Resolve().String()
		}
		rec.Attrs(func(a slog.Attr) bool {
			e.Attrs[h.prefix+a.Key] = a.Value.Resolve().String()
			return true
		})
	}
	h.ring.Add(e)
	return h.next.Handle(ctx, rec)
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &ringHandler{next: h.next.WithAttrs(attrs), ring: h.ring, attrs: merged, prefix: h.prefix}
}

func (h *ringHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ringHandler{next: h.next.WithGroup(name), ring: h.ring, attrs: h.attrs, prefix: h.prefix + name + "."}
}
