package orchestrator

import "github.com/ResearAI/ResearStudio/internal/backend"

// History is the capped conversation window shared by the planner and
// executor roles. Once full, adding an entry drops the oldest one; the cap
// is a correctness property, not a memory optimization, because both roles
// are prompted from exactly this window.
type History struct {
	capacity int
	entries  []backend.Message
}

// NewHistory creates a window holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 50
	}
	return &History{capacity: capacity}
}

// Add appends an entry, evicting the oldest when the window is full.
func (h *History) Add(role, content string) {
	h.entries = append(h.entries, backend.Message{Role: role, Content: content})
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
}

// Messages returns a copy of the current window, oldest first.
func (h *History) Messages() []backend.Message {
	out := make([]backend.Message, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries currently held.
func (h *History) Len() int { return len(h.entries) }
