package feedback_test

import (
	"testing"

	"github.com/visiona/shotcoach/internal/composition"
	"github.com/visiona/shotcoach/internal/feedback"
)

// TestConfirmOncePerRun validates that a contiguous run of Perfect
// classifications emits exactly one confirm event, however long the run is.
func TestConfirmOncePerRun(t *testing.T) {
	tracker := feedback.NewTracker()

	warn := composition.Warning("SLIGHT ADJUSTMENT NEEDED", composition.Guidance{})
	if _, ok := tracker.Observe(warn); ok {
		t.Error("entering Warning must not emit an event")
	}

	confirms := 0
	for i := 0; i < 25; i++ {
		if ev, ok := tracker.Observe(composition.Perfect()); ok {
			if ev != feedback.EventConfirm {
				t.Fatalf("event = %v, want confirm", ev)
			}
			confirms++
		}
	}
	if confirms != 1 {
		t.Errorf("confirms = %d, want exactly 1 for a contiguous Perfect run", confirms)
	}

	// Leave and re-enter Perfect: a second confirm.
	tracker.Observe(warn)
	if ev, ok := tracker.Observe(composition.Perfect()); !ok || ev != feedback.EventConfirm {
		t.Errorf("re-entering Perfect: got (%v,%v), want confirm", ev, ok)
	}
}

// TestCriticalEdge validates the critical event fires on entry only, and
// payload churn within Critical stays silent.
func TestCriticalEdge(t *testing.T) {
	tracker := feedback.NewTracker()

	left := composition.Critical("TILT PHONE LEFT", composition.Rotate(composition.TiltLeft))
	right := composition.Critical("TILT PHONE RIGHT", composition.Rotate(composition.TiltRight))

	ev, ok := tracker.Observe(left)
	if !ok || ev != feedback.EventCritical {
		t.Fatalf("first critical: got (%v,%v), want critical event", ev, ok)
	}

	// Same severity, different payload: no event.
	if _, ok := tracker.Observe(right); ok {
		t.Error("payload-level change within Critical must not emit")
	}
}

// TestFirstObservationPerfect validates the uninitialized sentinel counts as
// non-Perfect, so an immediately perfect shot still confirms once.
func TestFirstObservationPerfect(t *testing.T) {
	tracker := feedback.NewTracker()

	if ev, ok := tracker.Observe(composition.Perfect()); !ok || ev != feedback.EventConfirm {
		t.Errorf("got (%v,%v), want confirm on first Perfect", ev, ok)
	}
}

// TestWarningNeverEmits validates Warning transitions stay silent in both
// directions.
func TestWarningNeverEmits(t *testing.T) {
	tracker := feedback.NewTracker()

	warn := composition.Warning("MOVE CLOSER", composition.Translate(composition.MoveForward))
	if _, ok := tracker.Observe(warn); ok {
		t.Error("uninitialized -> Warning must not emit")
	}
	tracker.Observe(composition.Perfect())
	if _, ok := tracker.Observe(warn); ok {
		t.Error("Perfect -> Warning must not emit")
	}
}

func TestReset(t *testing.T) {
	tracker := feedback.NewTracker()
	tracker.Observe(composition.Perfect())

	tracker.Reset()
	if ev, ok := tracker.Observe(composition.Perfect()); !ok || ev != feedback.EventConfirm {
		t.Errorf("after Reset: got (%v,%v), want confirm", ev, ok)
	}
}
