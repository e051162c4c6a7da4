package metrics

import (
	"slices"
	"sync"
)

// DefaultHistoryCap bounds metrics history.
const DefaultHistoryCap = 1000

// History is a bounded, chronological record. When an append pushes the
// length past Cap, only the most recent Cap/2 entries are kept.
type History[T any] struct {
	mu    sync.RWMutex
	cap   int
	items []T
}

// NewHistory creates a history holding at most capacity entries
// (DefaultHistoryCap when capacity < 2).
func NewHistory[T any](capacity int) *History[T] {
	if capacity < 2 {
		capacity = DefaultHistoryCap
	}
	return &History[T]{cap: capacity}
}

// Append adds v, compacting when the cap is exceeded.
func (h *History[T]) Append(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, v)
	if len(h.items) > h.cap {
		h.items = slices.Clone(h.items[len(h.items)-h.cap/2:])
	}
}

// Items returns a copy of the history, oldest first.
func (h *History[T]) Items() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.items)
}

// Latest returns the newest entry.
func (h *History[T]) Latest() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.items) == 0 {
		var zero T
		return zero, false
	}
	return h.items[len(h.items)-1], true
}

// Len returns the number of entries.
func (h *History[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

// Cap returns the configured bound.
func (h *History[T]) Cap() int { return h.cap }

// Reset drops every entry.
func (h *History[T]) Reset() {
	h.mu.Lock()
	h.items = nil
	h.mu.Unlock()
}
