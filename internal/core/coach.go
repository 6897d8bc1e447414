// Package core wires the coaching daemon together: capture source, analysis
// pipeline, cue emission and health reporting.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/visiona/shotcoach/internal/config"
	"github.com/visiona/shotcoach/internal/detector"
	"github.com/visiona/shotcoach/internal/emitter"
	"github.com/visiona/shotcoach/internal/pipeline"
	"github.com/visiona/shotcoach/internal/statebus"
	"github.com/visiona/shotcoach/internal/stream"
	"github.com/visiona/shotcoach/internal/types"
	"github.com/visiona/shotcoach/internal/viewport"
)

// Coach is the main service orchestrator.
type Coach struct {
	cfg *config.Config

	stream  stream.Provider
	det     detector.Detector
	pipe    *pipeline.Pipeline
	emitter *emitter.MQTTEmitter

	poses  *statebus.Bus[types.PoseSnapshot]
	states *statebus.Bus[pipeline.FeedbackState]
	events *statebus.Bus[pipeline.CueEvent]
	poseRx *statebus.Receiver[types.PoseSnapshot]

	mu        sync.RWMutex
	started   time.Time
	isRunning bool
	wg        sync.WaitGroup
}

// NewCoach creates the service from a configuration file.
func NewCoach(configPath string) (*Coach, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"extended_rules", cfg.Detector.Extended,
	)

	c := &Coach{
		cfg:     cfg,
		emitter: emitter.NewMQTTEmitter(cfg),
		poses:   statebus.New[types.PoseSnapshot](),
		states:  statebus.New[pipeline.FeedbackState](),
		events:  statebus.New[pipeline.CueEvent](),
	}

	poseRx, err := c.poses.SubscribeLatest("overlay")
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to poses: %w", err)
	}
	c.poseRx = poseRx

	return c, nil
}

// Run starts every component and blocks until the context is cancelled.
func (c *Coach) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	c.isRunning = true
	c.started = time.Now()
	c.mu.Unlock()

	slog.Info("shotcoach service starting", "instance_id", c.cfg.InstanceID)

	width, height, err := config.ParseResolution(c.cfg.Stream.Resolution)
	if err != nil {
		return fmt.Errorf("invalid stream resolution: %w", err)
	}

	// Capture source: RTSP when configured, synthetic frames otherwise.
	if c.cfg.Camera.RTSPURL != "" {
		rtsp, err := stream.NewRTSPStream(stream.RTSPConfig{
			RTSPURL:  c.cfg.Camera.RTSPURL,
			Width:    width,
			Height:   height,
			FPS:      c.cfg.Stream.FPS,
			Rotation: c.cfg.Camera.Rotation,
			Source:   "front",
		})
		if err != nil {
			return fmt.Errorf("failed to create rtsp stream: %w", err)
		}
		c.stream = rtsp
		slog.Info("using rtsp capture", "url", c.cfg.Camera.RTSPURL)
	} else {
		c.stream = stream.NewMockStream(width, height, c.cfg.Stream.FPS, c.cfg.Camera.Rotation, "front")
		slog.Info("using mock capture (no rtsp_url configured)")
	}

	if err := c.stream.Start(ctx); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	// Measure real FPS before coaching starts; a failed warm-up degrades
	// to config values.
	if c.cfg.Stream.WarmupDurationS > 0 {
		warmup := time.Duration(c.cfg.Stream.WarmupDurationS) * time.Second
		if _, err := stream.Warmup(ctx, c.stream.Frames(), warmup); err != nil {
			slog.Warn("capture warm-up failed, continuing with config values", "error", err)
		}
	}

	// Pose detector worker process.
	sub, err := detector.StartSubprocess(ctx, detector.SubprocessConfig{
		Command:    c.cfg.Detector.Command,
		Args:       c.cfg.Detector.Args,
		ModelPath:  c.cfg.Detector.ModelPath,
		Confidence: c.cfg.Detector.Confidence,
	})
	if err != nil {
		c.stream.Stop()
		return fmt.Errorf("failed to start detector worker: %w", err)
	}
	c.det = sub

	if err := c.emitter.Connect(ctx); err != nil {
		c.det.Close()
		c.stream.Stop()
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}

	c.pipe = pipeline.New(pipeline.Config{
		Detector: c.det,
		Extended: c.cfg.Detector.Extended,
		Poses:    c.poses,
		Feedback: c.states,
		Events:   c.events,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pipe.Run(ctx, c.stream.Frames())
	}()

	c.wg.Add(1)
	go c.consumeEvents(ctx)

	c.wg.Add(1)
	go c.consumeFeedback()

	c.wg.Add(1)
	go c.publishHealth(ctx)

	slog.Info("shotcoach service running")

	<-ctx.Done()
	slog.Info("shotcoach service run loop exiting")
	return nil
}

// consumeEvents forwards edge-triggered cues to the MQTT emitter.
func (c *Coach) consumeEvents(ctx context.Context) {
	defer c.wg.Done()

	ch := make(chan pipeline.CueEvent, 16)
	if err := c.events.Subscribe("emitter", ch); err != nil {
		slog.Error("failed to subscribe to cue events", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			if err := c.emitter.PublishCue(ev.Event.String(), ev.State.Feedback, ev.State.FrameSeq, ev.State.TraceID); err != nil {
				slog.Warn("failed to publish cue", "error", err, "event", ev.Event)
			}
		}
	}
}

// consumeFeedback republishes the latest feedback state and its display
// anchor (the nose position mapped into screen space) for overlay consumers.
func (c *Coach) consumeFeedback() {
	defer c.wg.Done()

	rx, err := c.states.SubscribeLatest("emitter")
	if err != nil {
		slog.Error("failed to subscribe to feedback states", "error", err)
		return
	}

	sensor := viewport.SizeOf(c.sensorSize())
	display := viewport.SizeOf(c.cfg.Display.Width, c.cfg.Display.Height)

	for {
		state, ok := rx.Receive()
		if !ok {
			return
		}

		if err := c.emitter.PublishFeedback(state.Feedback, state.FrameSeq, state.TraceID); err != nil {
			slog.Debug("failed to publish feedback", "error", err)
		}

		// Latest pose, if any, anchors the overlay at the subject's nose.
		if snap, ok := c.latestPose(); ok && snap.HasPose() {
			if nose, found := snap.Landmark(types.Nose); found {
				anchor := viewport.MapPoint(nose.X, nose.Y, sensor, display, c.cfg.Camera.Mirrored)
				slog.Debug("overlay anchor",
					"seq", state.FrameSeq,
					"x", anchor.X,
					"y", anchor.Y,
				)
			}
		}
	}
}

// latestPose pulls the most recent unconsumed pose snapshot, if any.
func (c *Coach) latestPose() (types.PoseSnapshot, bool) {
	return c.poseRx.TryReceive()
}

// publishHealth emits a periodic health payload over MQTT.
func (c *Coach) publishHealth(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := c.HealthCheck().JSON()
			if err != nil {
				slog.Error("failed to marshal health", "error", err)
				continue
			}
			if err := c.emitter.PublishHealth(payload); err != nil {
				slog.Debug("failed to publish health", "error", err)
			}
		}
	}
}

// Shutdown stops all components in dependency order.
func (c *Coach) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	slog.Info("shutting down shotcoach service")

	// 1. Stop capture: closes the frame channel, which drains the pipeline.
	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			slog.Error("failed to stop capture", "error", err)
		}
	}

	// 2. Close the buses: wakes the consumer goroutines.
	c.events.Close()
	c.states.Close()
	c.poses.Close()

	// 3. Wait for pipeline and consumers.
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown timeout, goroutines still running")
	}

	// 4. Stop the detector worker.
	if c.det != nil {
		if err := c.det.Close(); err != nil {
			slog.Error("failed to close detector", "error", err)
		}
	}

	// 5. Disconnect MQTT last so shutdown cues could still go out.
	if err := c.emitter.Disconnect(); err != nil {
		slog.Error("failed to disconnect mqtt", "error", err)
	}

	c.mu.Lock()
	uptime := time.Since(c.started)
	c.isRunning = false
	c.mu.Unlock()

	slog.Info("shotcoach service shutdown complete", "uptime", uptime)
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout.
func (c *Coach) ShutdownTimeout() time.Duration {
	return time.Duration(c.cfg.ShutdownTimeoutS) * time.Second
}

// HealthAddr returns the configured health server listen address.
func (c *Coach) HealthAddr() string {
	return c.cfg.Health.Addr
}

func (c *Coach) sensorSize() (int, int) {
	width, height, err := config.ParseResolution(c.cfg.Stream.Resolution)
	if err != nil {
		return 640, 480
	}
	return width, height
}
