package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/visiona/shotcoach/internal/types"
)

// RTSPStream implements Provider on top of a GStreamer RTSP pipeline.
// Rate limiting happens inside GStreamer (videorate + capsfilter), so the
// Go side only ever sees frames at the target FPS.
type RTSPStream struct {
	rtspURL  string
	width    int
	height   int
	rotation int
	source   string

	mu         sync.RWMutex
	targetFPS  float64
	pipeline   *gst.Pipeline
	capsfilter *gst.Element

	buffers  *bufferPool
	framesCh chan *types.Frame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	seq         atomic.Uint64
	emitted     atomic.Uint64
	dropped     atomic.Uint64
	reconnects  atomic.Uint32
	lastFrameNS atomic.Int64
	started     time.Time

	maxRetries     int
	retryDelay     time.Duration
	maxRetryDelay  time.Duration
	currentRetries int
}

// RTSPConfig contains RTSP capture configuration.
type RTSPConfig struct {
	RTSPURL  string
	Width    int
	Height   int
	FPS      float64
	Rotation int
	Source   string
}

// NewRTSPStream creates an RTSP capture source. It does not connect until
// Start.
func NewRTSPStream(cfg RTSPConfig) (*RTSPStream, error) {
	if cfg.RTSPURL == "" {
		return nil, fmt.Errorf("rtsp_url is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if !types.ValidRotation(cfg.Rotation) {
		return nil, fmt.Errorf("invalid rotation: %d", cfg.Rotation)
	}

	return &RTSPStream{
		rtspURL:       cfg.RTSPURL,
		width:         cfg.Width,
		height:        cfg.Height,
		rotation:      cfg.Rotation,
		source:        cfg.Source,
		targetFPS:     cfg.FPS,
		buffers:       newBufferPool(cfg.Width * cfg.Height * 3), // RGB
		framesCh:      make(chan *types.Frame, 10),
		maxRetries:    5,
		retryDelay:    1 * time.Second,
		maxRetryDelay: 30 * time.Second,
	}, nil
}

// SetTargetFPS updates the capture rate without restarting the pipeline by
// rewriting the capsfilter's framerate.
func (s *RTSPStream) SetTargetFPS(fps float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fps <= 0 || fps > 60 {
		return fmt.Errorf("invalid fps: %.2f", fps)
	}

	slog.Info("updating capture target fps", "old_fps", s.targetFPS, "new_fps", fps)
	s.targetFPS = fps

	if s.capsfilter == nil {
		slog.Warn("capsfilter not available, fps applies on next connect")
		return nil
	}
	s.capsfilter.SetProperty("caps", gst.NewCapsFromString(s.capsString(fps)))
	return nil
}

// capsString builds the raw video caps including a fractional framerate
// (0.5 fps becomes 1/2).
func (s *RTSPStream) capsString(fps float64) string {
	numerator, denominator := 1, 1
	if fps < 1.0 {
		denominator = int(1.0 / fps)
	} else {
		numerator = int(fps)
	}
	return fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d",
		s.width, s.height, numerator, denominator,
	)
}

// Start implements Provider.
func (s *RTSPStream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("stream already started")
	}

	gst.Init(nil)

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()

	s.wg.Add(1)
	go s.runPipeline()

	slog.Info("rtsp stream starting",
		"url", s.rtspURL,
		"resolution", fmt.Sprintf("%dx%d", s.width, s.height),
		"target_fps", s.targetFPS,
		"rotation", s.rotation,
	)

	return nil
}

// runPipeline keeps the GStreamer pipeline alive, reconnecting with
// exponential backoff until retries are exhausted or the context ends.
func (s *RTSPStream) runPipeline() {
	defer s.wg.Done()
	defer close(s.framesCh)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.connectAndStream(); err != nil {
			slog.Error("rtsp pipeline error", "error", err)
		}

		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.currentRetries++
		s.reconnects.Add(1)

		if s.currentRetries > s.maxRetries {
			slog.Error("max retries exceeded, stopping capture",
				"retries", s.currentRetries,
			)
			return
		}

		delay := s.retryDelay * time.Duration(1<<uint(s.currentRetries-1))
		if delay > s.maxRetryDelay {
			delay = s.maxRetryDelay
		}

		slog.Warn("reconnecting to rtsp stream",
			"retry", s.currentRetries,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *RTSPStream) connectAndStream() error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// protocols=4 forces TCP, which go2rtc-style proxies require
	rtspsrc, err := gst.NewElement("rtspsrc")
	if err != nil {
		return fmt.Errorf("failed to create rtspsrc: %w", err)
	}
	rtspsrc.SetProperty("location", s.rtspURL)
	rtspsrc.SetProperty("protocols", 4)
	rtspsrc.SetProperty("latency", 200)

	rtph264depay, _ := gst.NewElement("rtph264depay")
	avdecH264, _ := gst.NewElement("avdec_h264")
	videoconvert, _ := gst.NewElement("videoconvert")
	videoscale, _ := gst.NewElement("videoscale")

	videorate, _ := gst.NewElement("videorate")
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, _ := gst.NewElement("capsfilter")

	s.mu.Lock()
	capsfilter.SetProperty("caps", gst.NewCapsFromString(s.capsString(s.targetFPS)))
	s.pipeline = pipeline
	s.capsfilter = capsfilter
	s.mu.Unlock()

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)
	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	pipeline.AddMany(rtspsrc, rtph264depay, avdecH264, videoconvert, videoscale, videorate, capsfilter, appsink.Element)
	gst.ElementLinkMany(rtph264depay, avdecH264, videoconvert, videoscale, videorate, capsfilter, appsink.Element)

	// rtspsrc pads appear only after stream negotiation
	rtspsrc.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		sinkPad := rtph264depay.GetStaticPad("sink")
		if sinkPad != nil {
			srcPad.Link(sinkPad)
		}
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to set pipeline to playing: %w", err)
	}

	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-s.ctx.Done():
			pipeline.SetState(gst.StateNull)
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("end of rtsp stream")
			return nil

		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			pipeline.SetState(gst.StateNull)
			return fmt.Errorf("pipeline error: %w", gerr)

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				_, next := msg.ParseStateChanged()
				if next == gst.StatePlaying {
					s.currentRetries = 0
					slog.Info("rtsp stream connected")
				}
			}
		}
	}
}

func (s *RTSPStream) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowError
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	defer buffer.Unmap()

	if len(data) == 0 {
		return gst.FlowOK
	}

	buf := s.buffers.get()
	n := copy(buf, data)

	frame := &types.Frame{
		Seq:          s.seq.Add(1),
		Timestamp:    time.Now(),
		Width:        s.width,
		Height:       s.height,
		Rotation:     s.rotation,
		Data:         buf[:n],
		SourceStream: s.source,
		TraceID:      uuid.New().String(),
	}
	frame.SetRelease(func() { s.buffers.put(buf) })

	s.lastFrameNS.Store(frame.Timestamp.UnixNano())

	select {
	case s.framesCh <- frame:
		s.emitted.Add(1)
	default:
		s.dropped.Add(1)
		frame.Release()
	}

	return gst.FlowOK
}

// Frames implements Provider.
func (s *RTSPStream) Frames() <-chan *types.Frame {
	return s.framesCh
}

// Stop implements Provider.
func (s *RTSPStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	slog.Info("stopping rtsp stream")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("rtsp stream stopped",
			"frames_emitted", s.emitted.Load(),
			"frames_dropped", s.dropped.Load(),
			"reconnects", s.reconnects.Load(),
			"uptime", time.Since(s.started),
		)
	case <-time.After(3 * time.Second):
		slog.Warn("rtsp stream stop timeout, pipeline may still be running")
	}

	s.cancel = nil
	s.ctx = nil
	s.pipeline = nil
	s.capsfilter = nil

	return nil
}

// Stats implements Provider.
func (s *RTSPStream) Stats() Stats {
	s.mu.RLock()
	targetFPS := s.targetFPS
	connected := s.cancel != nil
	started := s.started
	s.mu.RUnlock()

	emitted := s.emitted.Load()

	var fpsReal float64
	if !started.IsZero() {
		if uptime := time.Since(started).Seconds(); uptime > 0 {
			fpsReal = float64(emitted) / uptime
		}
	}

	var latencyMS int64
	if last := s.lastFrameNS.Load(); last > 0 {
		latencyMS = time.Since(time.Unix(0, last)).Milliseconds()
	}

	return Stats{
		FrameCount:    emitted,
		FramesDropped: s.dropped.Load(),
		FPSTarget:     targetFPS,
		FPSReal:       fpsReal,
		LatencyMS:     latencyMS,
		Resolution:    fmt.Sprintf("%dx%d", s.width, s.height),
		Reconnects:    s.reconnects.Load(),
		IsConnected:   connected,
	}
}
