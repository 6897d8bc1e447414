package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/visiona/shotcoach/internal/types"
)

// Wire protocol with the pose worker process: length-prefix framing
// (4 bytes big-endian) around msgpack payloads, on stdin/stdout. Msgpack
// carries the raw frame bytes without a base64 detour.

type wireRequest struct {
	FrameData []byte          `msgpack:"frame_data"`
	Width     int             `msgpack:"width"`
	Height    int             `msgpack:"height"`
	Rotation  int             `msgpack:"rotation"`
	Meta      wireRequestMeta `msgpack:"meta"`
}

type wireRequestMeta struct {
	Seq       uint64 `msgpack:"seq"`
	TraceID   string `msgpack:"trace_id"`
	Timestamp string `msgpack:"timestamp"`
}

type wireLandmark struct {
	X     float64 `msgpack:"x"`
	Y     float64 `msgpack:"y"`
	Score float64 `msgpack:"score"`
}

type wireTiming struct {
	TotalMS     float64 `msgpack:"total_ms"`
	InferenceMS float64 `msgpack:"inference_ms"`
}

type wireResponse struct {
	Seq       uint64                  `msgpack:"seq"`
	PoseFound bool                    `msgpack:"pose_found"`
	Landmarks map[string]wireLandmark `msgpack:"landmarks"`
	Error     string                  `msgpack:"error"`
	Timing    wireTiming              `msgpack:"timing"`
}

// SubprocessConfig configures the external pose worker.
type SubprocessConfig struct {
	// Command launches the worker (e.g. "models/run_pose_worker.sh")
	Command string
	// Args are extra arguments appended after the model flags
	Args []string
	// ModelPath is the pose model the worker loads at startup
	ModelPath string
	// Confidence is the worker's keypoint confidence threshold
	Confidence float64
	// WriteTimeout bounds a single stdin write (hung worker protection)
	WriteTimeout time.Duration
	// DetectTimeout bounds one full inference round trip
	DetectTimeout time.Duration
	// StopTimeout bounds graceful shutdown before the process is killed
	StopTimeout time.Duration
}

func (c *SubprocessConfig) defaults() {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.DetectTimeout == 0 {
		c.DetectTimeout = 5 * time.Second
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = 2 * time.Second
	}
}

// Subprocess manages an external pose inference worker process, bridging
// frames to its stdin and reading landmark results from its stdout.
//
// The admission gate keeps at most one request in flight, so the exchange
// is a simple write-then-wait; detectMu protects against contract
// violations rather than enabling concurrency.
type Subprocess struct {
	cfg SubprocessConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader

	detectMu  sync.Mutex
	responses chan wireResponse

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closed    atomic.Bool

	frames         atomic.Uint64
	failures       atomic.Uint64
	totalLatencyUS atomic.Uint64
	lastSeen       atomic.Value // time.Time
}

// StartSubprocess launches the worker and its supervision goroutines.
func StartSubprocess(ctx context.Context, cfg SubprocessConfig) (*Subprocess, error) {
	cfg.defaults()
	if cfg.Command == "" {
		return nil, fmt.Errorf("detector: command is required")
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("detector: model_path is required")
	}

	args := []string{"--model", cfg.ModelPath, "--confidence", fmt.Sprintf("%.2f", cfg.Confidence)}
	args = append(args, cfg.Args...)

	s := &Subprocess{
		cfg:       cfg,
		responses: make(chan wireResponse, 1),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	cmd := exec.Command(cfg.Command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("detector: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("detector: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("detector: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("detector: failed to start worker: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)

	s.wg.Add(3)
	go s.readResponses()
	go s.relayStderr(stderr)
	go s.waitProcess()

	slog.Info("pose worker started",
		"command", cfg.Command,
		"model", cfg.ModelPath,
		"pid", cmd.Process.Pid,
	)

	return s, nil
}

// Detect implements Detector: one length-prefixed msgpack request, one
// response, bounded by DetectTimeout.
func (s *Subprocess) Detect(ctx context.Context, frame *types.Frame) (types.PoseSnapshot, error) {
	if s.closed.Load() {
		return types.PoseSnapshot{}, ErrClosed
	}

	s.detectMu.Lock()
	defer s.detectMu.Unlock()

	// Drop any stale response from a timed-out predecessor.
	select {
	case stale := <-s.responses:
		slog.Debug("discarding stale pose response", "seq", stale.Seq)
	default:
	}

	start := time.Now()
	if err := s.sendRequest(frame); err != nil {
		s.failures.Add(1)
		return types.PoseSnapshot{}, err
	}

	timeout := time.NewTimer(s.cfg.DetectTimeout)
	defer timeout.Stop()

	for {
		select {
		case resp := <-s.responses:
			if resp.Seq != frame.Seq {
				// Response for an earlier, abandoned request.
				slog.Debug("mismatched pose response", "got_seq", resp.Seq, "want_seq", frame.Seq)
				continue
			}
			return s.finish(frame, resp, start)

		case <-ctx.Done():
			s.failures.Add(1)
			return types.PoseSnapshot{}, ctx.Err()

		case <-s.ctx.Done():
			s.failures.Add(1)
			return types.PoseSnapshot{}, ErrClosed

		case <-timeout.C:
			s.failures.Add(1)
			return types.PoseSnapshot{}, ErrTimeout
		}
	}
}

func (s *Subprocess) finish(frame *types.Frame, resp wireResponse, start time.Time) (types.PoseSnapshot, error) {
	s.frames.Add(1)
	s.totalLatencyUS.Add(uint64(time.Since(start).Microseconds()))
	s.lastSeen.Store(time.Now())

	if resp.Error != "" {
		s.failures.Add(1)
		return types.PoseSnapshot{}, fmt.Errorf("detector: worker error: %s", resp.Error)
	}
	if !resp.PoseFound {
		// Successful detection, no body in frame.
		return types.NoPose(frame), nil
	}

	landmarks := make(map[types.LandmarkID]types.Landmark, len(resp.Landmarks))
	for name, lm := range resp.Landmarks {
		id, ok := types.ParseLandmarkID(name)
		if !ok {
			slog.Debug("unknown landmark from worker", "name", name)
			continue
		}
		landmarks[id] = types.Landmark{X: lm.X, Y: lm.Y, Score: lm.Score}
	}
	return types.SnapshotFrom(frame, landmarks), nil
}

// sendRequest writes one length-prefixed msgpack request with a timeout, so
// a hung worker cannot wedge the pipeline.
func (s *Subprocess) sendRequest(frame *types.Frame) error {
	req := wireRequest{
		FrameData: frame.Data,
		Width:     frame.Width,
		Height:    frame.Height,
		Rotation:  frame.Rotation,
		Meta: wireRequestMeta{
			Seq:       frame.Seq,
			TraceID:   frame.TraceID,
			Timestamp: frame.Timestamp.Format(time.RFC3339Nano),
		},
	}

	payload, err := msgpack.Marshal(req)
	if err != nil {
		return fmt.Errorf("detector: marshal request: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		prefix := make([]byte, 4)
		binary.BigEndian.PutUint32(prefix, uint32(len(payload)))
		if _, err := s.stdin.Write(prefix); err != nil {
			writeErr <- fmt.Errorf("detector: write length prefix: %w", err)
			return
		}
		if _, err := s.stdin.Write(payload); err != nil {
			writeErr <- fmt.Errorf("detector: write payload: %w", err)
			return
		}
		writeErr <- nil
	}()

	select {
	case err := <-writeErr:
		return err
	case <-time.After(s.cfg.WriteTimeout):
		return fmt.Errorf("detector: stdin write timeout after %s", s.cfg.WriteTimeout)
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// readResponses reads length-prefixed msgpack responses until the stream
// ends. A decode error skips the message and keeps reading.
func (s *Subprocess) readResponses() {
	defer s.wg.Done()

	prefix := make([]byte, 4)
	for {
		if _, err := io.ReadFull(s.stdout, prefix); err != nil {
			if s.ctx.Err() == nil {
				slog.Warn("pose worker stdout closed", "error", err)
			}
			return
		}

		length := binary.BigEndian.Uint32(prefix)
		payload := make([]byte, length)
		if _, err := io.ReadFull(s.stdout, payload); err != nil {
			slog.Error("failed to read pose response body", "error", err)
			return
		}

		var resp wireResponse
		if err := msgpack.Unmarshal(payload, &resp); err != nil {
			slog.Error("failed to decode pose response", "error", err, "bytes", length)
			continue
		}

		select {
		case s.responses <- resp:
		default:
			slog.Warn("dropping pose response, no pending request", "seq", resp.Seq)
		}
	}
}

// relayStderr re-logs the worker's stderr through slog, mapping the
// worker's level markers.
func (s *Subprocess) relayStderr(stderr io.Reader) {
	defer s.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]") || strings.Contains(line, "[CRITICAL]"):
			slog.Error("pose worker", "output", line)
		case strings.Contains(line, "[WARNING]") || strings.Contains(line, "[WARN]"):
			slog.Warn("pose worker", "output", line)
		default:
			slog.Debug("pose worker", "output", line)
		}
	}
}

// waitProcess reaps the worker process so it can never become a zombie.
func (s *Subprocess) waitProcess() {
	defer s.wg.Done()

	err := s.cmd.Wait()
	if err != nil && s.ctx.Err() == nil {
		slog.Error("pose worker exited unexpectedly", "error", err)
		return
	}
	slog.Debug("pose worker exited", "error", err)
}

// Close shuts the worker down: close stdin to signal a graceful exit, wait
// up to StopTimeout, then kill. Idempotent and safe to call while a Detect
// is still blocked (the Detect unblocks with ErrClosed).
func (s *Subprocess) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()

		if err := s.stdin.Close(); err != nil {
			slog.Debug("closing worker stdin", "error", err)
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			slog.Info("pose worker stopped",
				"frames", s.frames.Load(),
				"failures", s.failures.Load(),
			)
		case <-time.After(s.cfg.StopTimeout):
			slog.Warn("pose worker stop timeout, killing process")
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
		}
	})
	return nil
}

// Metrics implements Detector.
func (s *Subprocess) Metrics() Metrics {
	frames := s.frames.Load()
	m := Metrics{
		FramesProcessed: frames,
		Failures:        s.failures.Load(),
	}
	if frames > 0 {
		m.AvgLatencyMS = float64(s.totalLatencyUS.Load()) / float64(frames) / 1000
	}
	if ts, ok := s.lastSeen.Load().(time.Time); ok {
		m.LastSeenAt = ts
	}
	return m
}
