package detector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visiona/shotcoach/internal/types"
)

// ScriptedResult is one canned answer for the scripted detector.
type ScriptedResult struct {
	Landmarks map[types.LandmarkID]types.Landmark
	Err       error
}

// Scripted is an in-process detector for tests and the demo pipeline. It
// replays a fixed sequence of results (cycling when exhausted) with an
// optional artificial latency, which makes admission-gate backpressure
// reproducible.
type Scripted struct {
	mu      sync.Mutex
	script  []ScriptedResult
	next    int
	latency time.Duration

	frames   atomic.Uint64
	failures atomic.Uint64
	closed   atomic.Bool
	lastSeen atomic.Value // time.Time
}

// NewScripted creates a scripted detector replaying results in order.
func NewScripted(latency time.Duration, script ...ScriptedResult) *Scripted {
	return &Scripted{script: script, latency: latency}
}

// Detect implements Detector.
func (s *Scripted) Detect(ctx context.Context, frame *types.Frame) (types.PoseSnapshot, error) {
	if s.closed.Load() {
		return types.PoseSnapshot{}, ErrClosed
	}

	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return types.PoseSnapshot{}, ctx.Err()
		}
	}

	s.mu.Lock()
	var result ScriptedResult
	if len(s.script) > 0 {
		result = s.script[s.next%len(s.script)]
		s.next++
	}
	s.mu.Unlock()

	s.frames.Add(1)
	s.lastSeen.Store(time.Now())

	if result.Err != nil {
		s.failures.Add(1)
		return types.PoseSnapshot{}, result.Err
	}
	return types.SnapshotFrom(frame, result.Landmarks), nil
}

// Close implements Detector. Idempotent.
func (s *Scripted) Close() error {
	s.closed.Store(true)
	return nil
}

// Metrics implements Detector.
func (s *Scripted) Metrics() Metrics {
	m := Metrics{
		FramesProcessed: s.frames.Load(),
		Failures:        s.failures.Load(),
	}
	if ts, ok := s.lastSeen.Load().(time.Time); ok {
		m.LastSeenAt = ts
	}
	return m
}
