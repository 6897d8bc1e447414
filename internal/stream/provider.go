// Package stream acquires video frames from a capture source and publishes
// them on a channel with non-blocking, drop-on-full semantics. The analysis
// pipeline never calls back into the source except to release a frame it
// was given.
package stream

import (
	"context"
	"sync"

	"github.com/visiona/shotcoach/internal/types"
)

// Provider is the contract for frame acquisition.
//
// Implementations must guarantee:
//   - Start returns quickly; frames arrive asynchronously
//   - the Frames channel stays open until Stop
//   - sends are non-blocking: a full channel drops the frame (and returns
//     its buffer) rather than queueing
//   - Stop is idempotent
//   - Stats is safe from any goroutine
type Provider interface {
	Start(ctx context.Context) error
	Frames() <-chan *types.Frame
	Stop() error
	Stats() Stats
}

// Stats contains current capture statistics.
type Stats struct {
	// FrameCount is the total number of frames emitted
	FrameCount uint64
	// FramesDropped counts frames dropped because the channel was full
	FramesDropped uint64
	// FPSTarget is the configured target frame rate
	FPSTarget float64
	// FPSReal is the measured frame rate since Start
	FPSReal float64
	// LatencyMS is the time since the last frame in milliseconds
	LatencyMS int64
	// Resolution is the frame resolution (e.g. "640x480")
	Resolution string
	// Reconnects is the number of reconnection attempts (RTSP only)
	Reconnects uint32
	// IsConnected reports whether the source is currently delivering
	IsConnected bool
}

// bufferPool recycles frame buffers of a fixed size. Frame.Release returns
// the buffer here, so a stalled consumer costs drops, not allocations.
type bufferPool struct {
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() any { return make([]byte, size) },
		},
	}
}

func (p *bufferPool) get() []byte {
	return p.pool.Get().([]byte)
}

func (p *bufferPool) put(buf []byte) {
	p.pool.Put(buf)
}
