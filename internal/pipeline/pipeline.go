// Package pipeline connects the frame source to the pose detector and the
// composition analyzer.
//
// Per frame: admission through the single-flight gate (or immediate drop),
// pose detection, composition analysis, distribution of the resulting state,
// and edge-triggered cue emission. A frame that cannot be admitted is
// released untouched; the source never blocks on analysis.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visiona/shotcoach/internal/composition"
	"github.com/visiona/shotcoach/internal/detector"
	"github.com/visiona/shotcoach/internal/feedback"
	"github.com/visiona/shotcoach/internal/gate"
	"github.com/visiona/shotcoach/internal/statebus"
	"github.com/visiona/shotcoach/internal/types"
)

// FeedbackState is one analyzed frame's coaching state as distributed to
// consumers.
type FeedbackState struct {
	Feedback  composition.Feedback
	FrameSeq  uint64
	TraceID   string
	Timestamp time.Time
}

// CueEvent is an edge-triggered transition (confirmation or critical alert)
// detected by the severity tracker.
type CueEvent struct {
	Event feedback.Event
	State FeedbackState
}

// Config wires the pipeline's collaborators. The buses are owned by the
// caller; the pipeline only publishes to them.
type Config struct {
	Detector detector.Detector
	// Extended enables the centering and distance rules
	Extended bool

	Poses    *statebus.Bus[types.PoseSnapshot]
	Feedback *statebus.Bus[FeedbackState]
	Events   *statebus.Bus[CueEvent]
}

// Stats is a snapshot of the pipeline's frame accounting.
type Stats struct {
	FramesIn       uint64
	FramesAnalyzed uint64
	FramesDropped  uint64
	DetectFailures uint64
	Gate           gate.Stats
}

// Pipeline runs the analysis loop.
type Pipeline struct {
	cfg     Config
	gate    *gate.Gate
	tracker *feedback.Tracker

	wg sync.WaitGroup

	framesIn       atomic.Uint64
	framesAnalyzed atomic.Uint64
	detectFailures atomic.Uint64
}

// New creates a pipeline around the given detector and buses.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		gate:    gate.New(),
		tracker: feedback.NewTracker(),
	}
}

// Run consumes frames until the channel closes or the context ends, then
// waits for the in-flight analysis (if any) to finish. It owns every frame
// it receives: each one is released exactly once, through the admission on
// the analysis path or directly on the drop path.
func (p *Pipeline) Run(ctx context.Context, frames <-chan *types.Frame) {
	slog.Info("analysis pipeline running", "extended_rules", p.cfg.Extended)

	for {
		select {
		case <-ctx.Done():
			p.drain(frames)
			p.shutdown()
			return
		case frame, ok := <-frames:
			if !ok {
				p.shutdown()
				return
			}
			p.framesIn.Add(1)

			adm, ok := p.gate.Submit(frame)
			if !ok {
				// Detector still busy with an earlier frame.
				frame.Release()
				continue
			}

			p.wg.Add(1)
			go p.analyze(ctx, adm)
		}
	}
}

// drain releases frames still buffered in the channel after cancellation so
// their buffers return to the source's pool.
func (p *Pipeline) drain(frames <-chan *types.Frame) {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			frame.Release()
		default:
			return
		}
	}
}

func (p *Pipeline) shutdown() {
	p.wg.Wait()
	p.gate.Close()

	stats := p.Stats()
	slog.Info("analysis pipeline stopped",
		"frames_in", stats.FramesIn,
		"frames_analyzed", stats.FramesAnalyzed,
		"frames_dropped", stats.FramesDropped,
		"detect_failures", stats.DetectFailures,
	)
}

// analyze runs detection and analysis for one admitted frame. Complete is
// deferred so the gate reopens on every exit path, panics included.
func (p *Pipeline) analyze(ctx context.Context, adm *gate.Admission) {
	defer p.wg.Done()
	defer adm.Complete()

	frame := adm.Frame()

	snap, err := p.cfg.Detector.Detect(ctx, frame)
	if err != nil {
		// A failed detection coaches like an empty frame: the user is
		// told to get in frame rather than shown stale guidance.
		p.detectFailures.Add(1)
		slog.Warn("pose detection failed",
			"seq", frame.Seq,
			"trace_id", frame.TraceID,
			"error", err,
		)
		snap = types.NoPose(frame)
	}

	var fb composition.Feedback
	if p.cfg.Extended {
		fb = composition.AnalyzeExtended(snap)
	} else {
		fb = composition.Analyze(snap)
	}

	state := FeedbackState{
		Feedback:  fb,
		FrameSeq:  frame.Seq,
		TraceID:   frame.TraceID,
		Timestamp: time.Now(),
	}

	if p.cfg.Poses != nil {
		p.cfg.Poses.Publish(snap)
	}
	if p.cfg.Feedback != nil {
		p.cfg.Feedback.Publish(state)
	}

	if event, fire := p.tracker.Observe(fb); fire {
		slog.Info("coaching cue",
			"event", event,
			"severity", fb.Severity,
			"message", fb.Message,
			"seq", frame.Seq,
		)
		if p.cfg.Events != nil {
			p.cfg.Events.Publish(CueEvent{Event: event, State: state})
		}
	}

	p.framesAnalyzed.Add(1)
}

// ResetTracker clears the severity edge state, e.g. when a new session
// starts on the same pipeline.
func (p *Pipeline) ResetTracker() {
	p.tracker.Reset()
}

// Stats returns a non-blocking snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	gs := p.gate.Stats()
	return Stats{
		FramesIn:       p.framesIn.Load(),
		FramesAnalyzed: p.framesAnalyzed.Load(),
		FramesDropped:  gs.Rejected,
		DetectFailures: p.detectFailures.Load(),
		Gate:           gs,
	}
}
