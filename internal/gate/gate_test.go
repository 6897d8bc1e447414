package gate_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/visiona/shotcoach/internal/gate"
	"github.com/visiona/shotcoach/internal/types"
)

func frameWithCounter(seq uint64, releases *atomic.Uint64) *types.Frame {
	f := types.NewFrame(seq, 640, 480, make([]byte, 16))
	f.SetRelease(func() { releases.Add(1) })
	return f
}

// TestSubmitWhileBusy validates the core contract: a second submission is
// rejected until the first admission completes, then the gate reopens.
func TestSubmitWhileBusy(t *testing.T) {
	g := gate.New()
	var releases atomic.Uint64

	adm, ok := g.Submit(frameWithCounter(1, &releases))
	if !ok {
		t.Fatal("first Submit rejected on an idle gate")
	}

	second := frameWithCounter(2, &releases)
	if _, ok := g.Submit(second); ok {
		t.Fatal("Submit admitted while an analysis is in flight")
	}
	second.Release() // caller's duty on rejection

	adm.Complete()

	if _, ok := g.Submit(frameWithCounter(3, &releases)); !ok {
		t.Fatal("Submit rejected after the previous admission completed")
	}

	stats := g.Stats()
	if stats.Admitted != 2 || stats.Rejected != 1 {
		t.Errorf("stats = %+v, want 2 admitted / 1 rejected", stats)
	}
}

// TestCompleteIdempotent validates that double completion releases the frame
// exactly once and cannot release a successor admission's frame.
func TestCompleteIdempotent(t *testing.T) {
	g := gate.New()
	var releases atomic.Uint64

	adm, _ := g.Submit(frameWithCounter(1, &releases))
	adm.Complete()
	adm.Complete()
	adm.Complete()

	if n := releases.Load(); n != 1 {
		t.Fatalf("frame released %d times, want exactly 1", n)
	}

	// A stale Complete after the gate reopened must not close the new
	// admission.
	next, ok := g.Submit(frameWithCounter(2, &releases))
	if !ok {
		t.Fatal("gate did not reopen")
	}
	adm.Complete()
	if g.Stats().InFlight != true {
		t.Error("stale Complete released the successor admission")
	}
	next.Complete()
}

// TestConcurrentSubmit validates that for racing submissions at most one is
// admitted per in-flight window and every frame is released exactly once,
// whichever path it took.
func TestConcurrentSubmit(t *testing.T) {
	g := gate.New()

	const producers = 8
	const perProducer = 200

	var releases atomic.Uint64
	var admissions atomic.Uint64
	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				frame := frameWithCounter(uint64(p*perProducer+i), &releases)
				if adm, ok := g.Submit(frame); ok {
					// At most one admission may be in flight here.
					if !g.Stats().InFlight {
						t.Error("admitted but gate not in flight")
					}
					admissions.Add(1)
					adm.Complete()
				} else {
					frame.Release()
				}
			}
		}(p)
	}
	wg.Wait()

	total := uint64(producers * perProducer)
	if n := releases.Load(); n != total {
		t.Errorf("released %d frames, want %d (exactly once each)", n, total)
	}

	stats := g.Stats()
	if stats.Admitted != admissions.Load() {
		t.Errorf("admitted counter = %d, want %d", stats.Admitted, admissions.Load())
	}
	if stats.Admitted+stats.Rejected != total {
		t.Errorf("admitted+rejected = %d, want %d", stats.Admitted+stats.Rejected, total)
	}
	if stats.InFlight {
		t.Error("gate still in flight after all admissions completed")
	}
}

// TestCompleteOnPanicPath validates the deferred-Complete pattern the
// pipeline uses: the frame is released even when the analysis body panics.
func TestCompleteOnPanicPath(t *testing.T) {
	g := gate.New()
	var releases atomic.Uint64

	func() {
		defer func() { recover() }()

		adm, ok := g.Submit(frameWithCounter(1, &releases))
		if !ok {
			t.Fatal("Submit rejected on idle gate")
		}
		defer adm.Complete()

		panic("detector blew up")
	}()

	if n := releases.Load(); n != 1 {
		t.Fatalf("frame released %d times after panic, want 1", n)
	}
	if _, ok := g.Submit(frameWithCounter(2, &releases)); !ok {
		t.Error("gate stalled after a panicking analysis")
	}
}

// TestClose validates shutdown releases an in-flight frame and a late
// completion stays harmless.
func TestClose(t *testing.T) {
	g := gate.New()
	var releases atomic.Uint64

	adm, _ := g.Submit(frameWithCounter(1, &releases))

	g.Close()
	if n := releases.Load(); n != 1 {
		t.Fatalf("Close released %d frames, want 1", n)
	}

	// Late detector completion after Close: no double release.
	adm.Complete()
	if n := releases.Load(); n != 1 {
		t.Errorf("late Complete re-released the frame (%d releases)", n)
	}

	g.Close() // idempotent
}
