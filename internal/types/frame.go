package types

import (
	"sync"
	"time"
)

// Frame represents a single captured video frame.
//
// Ownership contract:
//   - The frame source owns the frame until it is handed to the admission
//     gate. From that point the gate (via its Admission) is responsible for
//     calling Release exactly once.
//   - Data MUST NOT be modified after the frame leaves the source
//     (zero-copy sharing, immutability contract).
type Frame struct {
	// Seq is the monotonic sequence number assigned by the source
	Seq uint64
	// Timestamp is when the frame was captured/decoded
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Rotation in degrees (0, 90, 180 or 270) describing how the buffer
	// must be reoriented before interpretation
	Rotation int
	// Data contains the raw frame bytes (RGB format by default)
	Data []byte
	// SourceStream identifies the stream (e.g. "front", "rear")
	SourceStream string
	// TraceID is a unique identifier for tracing a frame across the pipeline
	TraceID string

	release     func()
	releaseOnce sync.Once
}

// NewFrame builds a frame whose buffer requires no explicit release.
func NewFrame(seq uint64, width, height int, data []byte) *Frame {
	return &Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Data:      data,
	}
}

// SetRelease attaches the buffer-release hook (e.g. return to a pool).
// Must be called before the frame is published.
func (f *Frame) SetRelease(release func()) {
	f.release = release
}

// Release returns the frame's buffer to its owner. Idempotent: only the
// first call runs the release hook, later calls are no-ops. After Release
// the Data slice must not be touched.
func (f *Frame) Release() {
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
		f.Data = nil
	})
}

// Size2D returns the frame dimensions as a width/height pair.
func (f *Frame) Size2D() (width, height int) {
	return f.Width, f.Height
}

// ValidRotation reports whether r is one of the four supported buffer
// orientations.
func ValidRotation(r int) bool {
	switch r {
	case 0, 90, 180, 270:
		return true
	}
	return false
}
