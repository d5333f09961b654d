package feed

import (
	"sync"

	"github.com/banshee-data/cave.view/internal/body"
)

// Stats counts frames seen by a Handoff.
type Stats struct {
	Published int64 `json:"published"`
	Stale     int64 `json:"stale"`
	Skipped   int64 `json:"skipped"` // replaced before the frame loop took them
	Invalid   int64 `json:"invalid"`
}

// Handoff is a single-slot mailbox between a source and the frame loop.
// Publish keeps only the newest frame; Take empties the slot.
type Handoff struct {
	mu      sync.Mutex
	latest  *body.Frame
	last    int64
	started bool
	session int64
	stats   Stats
}

// NewHandoff returns an empty Handoff.
func NewHandoff() *Handoff { return &Handoff{} }

// Publish stamps f with the current session and stores it unless its
// counter is not newer than the last published frame.
func (h *Handoff) Publish(f *body.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started && f.Counter <= h.last {
		h.stats.Stale++
		return ErrStaleFrame
	}
	if h.latest != nil {
		h.stats.Skipped++
	}
	f.Session = h.session
	h.latest = f
	h.last = f.Counter
	h.started = true
	h.stats.Published++
	return nil
}

// Take returns the newest unread frame.
func (h *Handoff) Take() (*body.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := h.latest
	h.latest = nil
	return f, f != nil
}

// Restart begins a new session, for sensors that restart their count and
// tracking ids after reconnecting. An unread frame of the old session is
// discarded.
func (h *Handoff) Restart() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest != nil {
		h.latest = nil
		h.stats.Skipped++
	}
	h.started = false
	h.session++
}

// Session returns the number of restarts so far.
func (h *Handoff) Session() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// Stats returns a copy of the counters.
func (h *Handoff) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handoff) invalid() {
	h.mu.Lock()
	h.stats.Invalid++
	h.mu.Unlock()
}
