package stream

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/visiona/shotcoach/internal/types"
)

// WarmupStats contains statistics from the capture warm-up phase.
type WarmupStats struct {
	FramesReceived int
	Duration       time.Duration
	FPSMean        float64
	FPSStdDev      float64
	FPSMin         float64
	FPSMax         float64
	// IsStable is true when the FPS stddev is below 15% of the mean
	IsStable bool
}

// Warmup consumes frames for the given duration without analyzing them,
// measuring the source's real frame rate before coaching starts. Consumed
// frames are released immediately.
func Warmup(ctx context.Context, frames <-chan *types.Frame, duration time.Duration) (*WarmupStats, error) {
	slog.Info("warming up capture",
		"duration", duration,
		"reason", "measure real FPS and stabilize the source",
	)

	start := time.Now()
	frameTimes := make([]time.Time, 0, 128)

	warmupCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

loop:
	for {
		select {
		case <-warmupCtx.Done():
			break loop
		case frame, ok := <-frames:
			if !ok {
				return nil, fmt.Errorf("stream closed during warm-up")
			}
			frameTimes = append(frameTimes, frame.Timestamp)
			frame.Release()
		}
	}

	if len(frameTimes) < 2 {
		return nil, fmt.Errorf("not enough frames during warm-up (got %d)", len(frameTimes))
	}

	stats := calculateFPSStats(frameTimes, time.Since(start))

	slog.Info("capture warm-up complete",
		"frames", stats.FramesReceived,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"fps_range", fmt.Sprintf("%.1f-%.1f", stats.FPSMin, stats.FPSMax),
		"stable", stats.IsStable,
	)
	if !stats.IsStable {
		slog.Warn("capture FPS is unstable, guidance cadence may vary",
			"fps_stddev", stats.FPSStdDev,
		)
	}

	return stats, nil
}

func calculateFPSStats(frameTimes []time.Time, elapsed time.Duration) *WarmupStats {
	stats := &WarmupStats{
		FramesReceived: len(frameTimes),
		Duration:       elapsed,
		FPSMin:         math.Inf(1),
	}

	// Instantaneous FPS per inter-frame interval.
	rates := make([]float64, 0, len(frameTimes)-1)
	for i := 1; i < len(frameTimes); i++ {
		interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		if interval <= 0 {
			continue
		}
		fps := 1 / interval
		rates = append(rates, fps)
		stats.FPSMin = math.Min(stats.FPSMin, fps)
		stats.FPSMax = math.Max(stats.FPSMax, fps)
	}
	if len(rates) == 0 {
		stats.FPSMin = 0
		return stats
	}

	var sum float64
	for _, r := range rates {
		sum += r
	}
	stats.FPSMean = sum / float64(len(rates))

	var variance float64
	for _, r := range rates {
		d := r - stats.FPSMean
		variance += d * d
	}
	stats.FPSStdDev = math.Sqrt(variance / float64(len(rates)))

	stats.IsStable = stats.FPSStdDev < 0.15*stats.FPSMean

	return stats
}
