// Package feedback turns the continuous per-frame classification stream into
// edge-triggered transition events for cue consumers (haptics, audio).
package feedback

import (
	"sync"

	"github.com/visiona/shotcoach/internal/composition"
)

// Event is an edge-triggered severity transition.
type Event int

const (
	// EventConfirm fires when the classification enters Perfect from any
	// non-Perfect state
	EventConfirm Event = iota
	// EventCritical fires when the classification enters Critical from any
	// non-Critical state
	EventCritical
)

// String returns the wire name of the event.
func (e Event) String() string {
	if e == EventConfirm {
		return "confirm"
	}
	return "critical"
}

// Tracker holds the previously observed severity and detects case changes.
// It never drops or rate-limits observations; side-effect throttling (e.g.
// not re-vibrating within a short window) belongs to the consumer.
//
// The analysis completion path is the only writer, serialized by the
// admission gate; the mutex keeps the tracker safe regardless.
type Tracker struct {
	mu   sync.Mutex
	prev composition.Severity
	seen bool
}

// NewTracker returns a tracker in the uninitialized state: the first
// observation always counts as a transition into its severity.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe records a classification and reports the transition event, if any.
// Payload-level changes within the same severity case emit nothing.
func (t *Tracker) Observe(fb composition.Feedback) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := !t.seen || fb.Severity != t.prev
	t.prev = fb.Severity
	t.seen = true

	if !changed {
		return 0, false
	}

	switch fb.Severity {
	case composition.SeverityPerfect:
		return EventConfirm, true
	case composition.SeverityCritical:
		return EventCritical, true
	}

	// Entering or leaving Warning has no dedicated event.
	return 0, false
}

// Reset returns the tracker to the uninitialized state (e.g. when a new
// coaching session starts).
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.seen = false
	t.mu.Unlock()
}
