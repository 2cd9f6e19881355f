package state

import (
	"sync"

	"github.com/votryx/votryx/internal/domain"
)

// DefaultHistorySize bounds the log history kept in memory
const DefaultHistorySize = 500

// History is a thread-safe ring buffer of log entries. When full, the oldest
// entry is evicted to make room for the newest.
type History struct {
	entries []domain.LogEntry
	head    int
	count   int
	mu      sync.Mutex
}

// NewHistory creates a history bounded to capacity entries. Capacities below
// one fall back to DefaultHistorySize.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistorySize
	}
	return &History{entries: make([]domain.LogEntry, capacity)}
}

// Append adds an entry, evicting the oldest when at capacity
func (h *History) Append(e domain.LogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := (h.head + h.count) % len(h.entries)
	h.entries[tail] = e
	if h.count == len(h.entries) {
		h.head = (h.head + 1) % len(h.entries)
	} else {
		h.count++
	}
}

// All returns the retained entries, oldest first
func (h *History) All() []domain.LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]domain.LogEntry, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.entries[(h.head+i)%len(h.entries)])
	}
	return out
}

// Errors returns only the retained error-level entries, oldest first
func (h *History) Errors() []domain.LogEntry {
	var out []domain.LogEntry
	for _, e := range h.All() {
		if e.Level == domain.LevelError {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops all retained entries
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.head = 0
	h.count = 0
}

// Len returns the number of retained entries
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Cap returns the fixed capacity
func (h *History) Cap() int {
	return len(h.entries)
}
