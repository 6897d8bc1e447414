// Package detector abstracts the external pose-detection service. The
// pipeline treats it as a black box that, given a frame buffer and its
// rotation, yields a set of landmarks or fails; failure is recovered
// upstream as a no-pose snapshot, never propagated as a fatal error.
package detector

import (
	"context"
	"errors"
	"time"

	"github.com/visiona/shotcoach/internal/types"
)

var (
	// ErrClosed is returned by Detect after Close.
	ErrClosed = errors.New("detector: closed")
	// ErrTimeout is returned when the worker does not answer in time.
	ErrTimeout = errors.New("detector: inference timeout")
)

// Metrics contains health metrics for a detector.
type Metrics struct {
	FramesProcessed uint64    `json:"frames_processed"`
	Failures        uint64    `json:"failures"`
	AvgLatencyMS    float64   `json:"avg_latency_ms"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

// Detector runs pose inference on a single frame.
//
// The admission gate guarantees at most one Detect call is in flight;
// implementations may rely on that but must not corrupt state if the
// contract is violated.
//
// Close must be idempotent and callable while a Detect is still in flight
// (shutdown must never wait on a hung worker).
type Detector interface {
	// Detect analyzes one frame and returns the detected pose. A worker
	// failure or timeout returns an error; "no body found" is a successful
	// detection with an empty snapshot.
	Detect(ctx context.Context, frame *types.Frame) (types.PoseSnapshot, error)
	// Close releases the detector's resources. Idempotent.
	Close() error
	// Metrics returns current health metrics.
	Metrics() Metrics
}
