// Package gate implements the single-flight admission control in front of
// the pose detector.
//
// Philosophy (shared with the whole pipeline): "Drop frames, never queue.
// Latency > Completeness." At most one frame is under analysis at any
// instant; frames arriving while busy are rejected immediately so the
// capture source never stalls. A rejection is backpressure working as
// designed, not an error.
package gate

import (
	"sync"
	"sync/atomic"

	"github.com/visiona/shotcoach/internal/types"
)

// Gate admits at most one frame at a time. The busy flag and the retained
// frame are one unit: a single atomically-swapped Admission pointer. There
// is no window in which the flag and the frame handle can disagree.
type Gate struct {
	inflight atomic.Pointer[Admission]

	admitted  atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
}

// Admission is the gate's receipt for one admitted frame. It owns the frame
// for the duration of the analysis and must be completed exactly once;
// Complete is structurally idempotent so every exit path (success, detector
// failure, panic recovery) may safely call it.
type Admission struct {
	gate  *Gate
	frame *types.Frame
	once  sync.Once
}

// Stats is a snapshot of the gate's drop accounting. Rejections are expected
// whenever the detector is slower than the capture rate.
type Stats struct {
	Admitted  uint64
	Rejected  uint64
	Completed uint64
	InFlight  bool
}

// New creates an idle gate.
func New() *Gate {
	return &Gate{}
}

// Submit attempts to admit a frame for analysis.
//
// If the gate is idle it atomically transitions to busy, takes ownership of
// the frame, and returns the admission. If an analysis is already in flight
// it returns (nil, false) immediately; the caller must release the frame
// without analysis.
//
// Safe for a producer goroutine racing the completion of the previous
// admission on another goroutine: the admit decision is a single
// compare-and-swap.
func (g *Gate) Submit(frame *types.Frame) (*Admission, bool) {
	adm := &Admission{gate: g, frame: frame}
	if !g.inflight.CompareAndSwap(nil, adm) {
		g.rejected.Add(1)
		return nil, false
	}
	g.admitted.Add(1)
	return adm, true
}

// Frame returns the admitted frame. Valid until Complete.
func (a *Admission) Frame() *types.Frame {
	return a.frame
}

// Complete releases the frame's resources and reopens the gate as one
// guaranteed cleanup step. Only the first call has any effect; skipping it
// would stall every future frame, so callers defer it around the detector
// call.
func (a *Admission) Complete() {
	a.once.Do(func() {
		a.frame.Release()
		a.gate.inflight.CompareAndSwap(a, nil)
		a.gate.completed.Add(1)
	})
}

// Close releases any in-flight frame at shutdown. Best effort: if the
// detector's completion arrives later, the admission's own Complete is a
// no-op by then. Idempotent.
func (g *Gate) Close() {
	if adm := g.inflight.Load(); adm != nil {
		adm.Complete()
	}
}

// Stats returns a non-blocking snapshot of the gate's counters.
func (g *Gate) Stats() Stats {
	return Stats{
		Admitted:  g.admitted.Load(),
		Rejected:  g.rejected.Load(),
		Completed: g.completed.Load(),
		InFlight:  g.inflight.Load() != nil,
	}
}
