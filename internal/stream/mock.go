package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/visiona/shotcoach/internal/types"
)

// MockStream generates synthetic frames at a target rate. Used by tests and
// by the daemon when no capture URL is configured.
type MockStream struct {
	width    int
	height   int
	fps      float64
	rotation int
	source   string

	buffers  *bufferPool
	framesCh chan *types.Frame
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	seq       atomic.Uint64
	emitted   atomic.Uint64
	dropped   atomic.Uint64
	isRunning atomic.Bool
	startTime time.Time
}

// NewMockStream creates a mock frame source.
func NewMockStream(width, height int, fps float64, rotation int, source string) *MockStream {
	return &MockStream{
		width:    width,
		height:   height,
		fps:      fps,
		rotation: rotation,
		source:   source,
		buffers:  newBufferPool(width * height * 3), // RGB
		framesCh: make(chan *types.Frame, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start implements Provider.
func (m *MockStream) Start(ctx context.Context) error {
	if !m.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("stream already running")
	}
	m.startTime = time.Now()

	slog.Info("mock stream starting",
		"width", m.width,
		"height", m.height,
		"fps", m.fps,
		"rotation", m.rotation,
	)

	m.wg.Add(1)
	go m.generateFrames(ctx)

	return nil
}

// Frames implements Provider.
func (m *MockStream) Frames() <-chan *types.Frame {
	return m.framesCh
}

// Stop implements Provider. Idempotent.
func (m *MockStream) Stop() error {
	if !m.isRunning.Load() {
		return nil
	}

	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		close(m.framesCh)
		m.isRunning.Store(false)

		slog.Info("mock stream stopped",
			"frames_emitted", m.emitted.Load(),
			"frames_dropped", m.dropped.Load(),
			"uptime", time.Since(m.startTime),
		)
	})
	return nil
}

// Stats implements Provider.
func (m *MockStream) Stats() Stats {
	emitted := m.emitted.Load()

	var fpsReal float64
	if m.isRunning.Load() && emitted > 0 {
		if elapsed := time.Since(m.startTime).Seconds(); elapsed > 0 {
			fpsReal = float64(emitted) / elapsed
		}
	}

	return Stats{
		FrameCount:    emitted,
		FramesDropped: m.dropped.Load(),
		FPSTarget:     m.fps,
		FPSReal:       fpsReal,
		Resolution:    fmt.Sprintf("%dx%d", m.width, m.height),
		IsConnected:   m.isRunning.Load(),
	}
}

func (m *MockStream) generateFrames(ctx context.Context) {
	defer m.wg.Done()

	interval := time.Duration(float64(time.Second) / m.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			frame := m.createFrame()
			select {
			case m.framesCh <- frame:
				m.emitted.Add(1)
			default:
				// Consumer behind: drop, never queue.
				m.dropped.Add(1)
				frame.Release()
			}
		}
	}
}

func (m *MockStream) createFrame() *types.Frame {
	buf := m.buffers.get()

	frame := &types.Frame{
		Seq:          m.seq.Add(1),
		Timestamp:    time.Now(),
		Width:        m.width,
		Height:       m.height,
		Rotation:     m.rotation,
		Data:         buf,
		SourceStream: m.source,
		TraceID:      uuid.New().String(),
	}
	frame.SetRelease(func() { m.buffers.put(buf) })
	return frame
}
