package stream

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/visiona/shotcoach/internal/types"
)

// Scenario: a mock stream at 100 FPS with a draining consumer. Frames arrive
// with monotonically increasing sequence numbers and stats reflect emission.
func TestMockStreamEmitsFrames(t *testing.T) {
	m := NewMockStream(64, 48, 100, 0, "mock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	var lastSeq uint64
	for i := 0; i < 5; i++ {
		select {
		case frame := <-m.Frames():
			if frame.Seq <= lastSeq {
				t.Fatalf("sequence not increasing: got %d after %d", frame.Seq, lastSeq)
			}
			lastSeq = frame.Seq
			if frame.Width != 64 || frame.Height != 48 {
				t.Fatalf("unexpected size: %dx%d", frame.Width, frame.Height)
			}
			if frame.TraceID == "" {
				t.Fatal("frame missing trace id")
			}
			frame.Release()
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}

	stats := m.Stats()
	if stats.FrameCount < 5 {
		t.Fatalf("FrameCount = %d, want >= 5", stats.FrameCount)
	}
	if !stats.IsConnected {
		t.Fatal("stream should report connected while running")
	}
}

// Scenario: nobody drains the channel. Once the 10-slot buffer fills, the
// stream must drop (and release) frames rather than block its ticker loop.
func TestMockStreamDropsWhenFull(t *testing.T) {
	m := NewMockStream(8, 8, 200, 0, "mock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let it run long enough to overflow the buffered channel.
	time.Sleep(300 * time.Millisecond)
	m.Stop()

	stats := m.Stats()
	if stats.FramesDropped == 0 {
		t.Fatal("expected drops with no consumer")
	}

	// Drain whatever made it into the channel and release it.
	for frame := range m.Frames() {
		frame.Release()
	}
}

// Scenario: Stop called twice must not panic or double-close channels.
func TestMockStreamStopIdempotent(t *testing.T) {
	m := NewMockStream(8, 8, 50, 0, "mock")

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

// Scenario: a steady 10ms cadence measures out near 100 FPS with near-zero
// jitter, so the stream is classified stable.
func TestFPSStatsStable(t *testing.T) {
	base := time.Now()
	times := make([]time.Time, 50)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * 10 * time.Millisecond)
	}

	stats := calculateFPSStats(times, 500*time.Millisecond)

	if math.Abs(stats.FPSMean-100) > 1 {
		t.Fatalf("FPSMean = %.2f, want ~100", stats.FPSMean)
	}
	if !stats.IsStable {
		t.Fatalf("steady cadence should be stable (stddev %.2f)", stats.FPSStdDev)
	}
	if stats.FramesReceived != 50 {
		t.Fatalf("FramesReceived = %d, want 50", stats.FramesReceived)
	}
}

// Scenario: intervals alternating between 5ms and 50ms produce a large
// spread of instantaneous rates, so the stream is classified unstable.
func TestFPSStatsUnstable(t *testing.T) {
	base := time.Now()
	times := []time.Time{base}
	for i := 0; i < 20; i++ {
		step := 5 * time.Millisecond
		if i%2 == 1 {
			step = 50 * time.Millisecond
		}
		times = append(times, times[len(times)-1].Add(step))
	}

	stats := calculateFPSStats(times, time.Second)

	if stats.IsStable {
		t.Fatalf("jittery cadence should be unstable (mean %.2f stddev %.2f)",
			stats.FPSMean, stats.FPSStdDev)
	}
	if stats.FPSMax <= stats.FPSMin {
		t.Fatalf("FPSMax (%.2f) should exceed FPSMin (%.2f)", stats.FPSMax, stats.FPSMin)
	}
}

// Scenario: warm-up over a live mock stream collects frames for the window,
// releases every one of them, and reports a rate near the configured FPS.
func TestWarmupOverMockStream(t *testing.T) {
	m := NewMockStream(8, 8, 100, 0, "mock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	stats, err := Warmup(ctx, m.Frames(), 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if stats.FramesReceived < 10 {
		t.Fatalf("FramesReceived = %d, want >= 10", stats.FramesReceived)
	}
	if stats.FPSMean < 50 || stats.FPSMean > 150 {
		t.Fatalf("FPSMean = %.2f, want near 100", stats.FPSMean)
	}
}

// Scenario: the source dies immediately (channel closed). Warm-up must
// report an error instead of returning meaningless stats.
func TestWarmupClosedStream(t *testing.T) {
	frames := make(chan *types.Frame)
	close(frames)

	if _, err := Warmup(context.Background(), frames, 100*time.Millisecond); err == nil {
		t.Fatal("expected error from closed stream")
	}
}

// Scenario: too few frames arrive during the window. Stats over a single
// frame are undefined, so warm-up errors out.
func TestWarmupTooFewFrames(t *testing.T) {
	frames := make(chan *types.Frame, 1)
	frames <- types.NewFrame(1, 8, 8, nil)

	if _, err := Warmup(context.Background(), frames, 50*time.Millisecond); err == nil {
		t.Fatal("expected error with a single frame")
	}
}
