package composition_test

import (
	"strings"
	"testing"

	"github.com/visiona/shotcoach/internal/composition"
	"github.com/visiona/shotcoach/internal/types"
)

func snapshot(width, height int, landmarks map[types.LandmarkID]types.Landmark) types.PoseSnapshot {
	return types.PoseSnapshot{Width: width, Height: height, Landmarks: landmarks}
}

// levelPose is a well-framed subject: level shoulders, comfortable headroom,
// centered nose, mid-range shoulder span.
func levelPose() map[types.LandmarkID]types.Landmark {
	return map[types.LandmarkID]types.Landmark{
		types.Nose:          {X: 320, Y: 150},
		types.LeftShoulder:  {X: 220, Y: 260},
		types.RightShoulder: {X: 420, Y: 260},
	}
}

func TestAnalyzeNoPose(t *testing.T) {
	fb := composition.Analyze(snapshot(640, 480, nil))

	if fb.Severity != composition.SeverityWarning {
		t.Fatalf("severity = %v, want warning", fb.Severity)
	}
	if fb.Message != "POSITION YOURSELF IN FRAME" {
		t.Errorf("message = %q", fb.Message)
	}
	if fb.Guidance.Kind != composition.GuidanceNone {
		t.Errorf("guidance = %v, want none", fb.Guidance)
	}
}

// TestAnalyzeMissingShoulders validates rule 1 fires only when BOTH shoulder
// landmarks are absent; a single missing shoulder falls through.
func TestAnalyzeMissingShoulders(t *testing.T) {
	lms := levelPose()
	delete(lms, types.LeftShoulder)
	delete(lms, types.RightShoulder)

	fb := composition.Analyze(snapshot(640, 480, lms))
	if fb.Message != "POSITION YOURSELF IN FRAME" {
		t.Errorf("both missing: message = %q", fb.Message)
	}

	lms = levelPose()
	delete(lms, types.LeftShoulder)
	fb = composition.Analyze(snapshot(640, 480, lms))
	if fb.Message == "POSITION YOURSELF IN FRAME" {
		t.Error("one shoulder present must not trigger the out-of-frame rule")
	}
	// No angle is computable with one shoulder, so the fallback applies.
	if fb.Message != "SLIGHT ADJUSTMENT NEEDED" {
		t.Errorf("one shoulder: message = %q, want fallback", fb.Message)
	}
}

// TestAnalyzeShoulderTilt validates the documented 11.3 degree case and the
// tilt direction on both sides.
func TestAnalyzeShoulderTilt(t *testing.T) {
	lms := levelPose()
	lms[types.LeftShoulder] = types.Landmark{X: 200, Y: 280}
	lms[types.RightShoulder] = types.Landmark{X: 400, Y: 320}

	fb := composition.Analyze(snapshot(640, 480, lms))
	if fb.Severity != composition.SeverityCritical {
		t.Fatalf("severity = %v, want critical", fb.Severity)
	}
	if !strings.Contains(fb.Message, "TILT") {
		t.Errorf("message = %q, want TILT guidance", fb.Message)
	}
	// Left shoulder higher => positive angle => tilt left.
	if fb.Guidance.Kind != composition.GuidanceRotate || fb.Guidance.Tilt != composition.TiltLeft {
		t.Errorf("guidance = %+v, want rotate tilt_left", fb.Guidance)
	}

	// Mirror the slope: right shoulder higher.
	lms[types.LeftShoulder] = types.Landmark{X: 200, Y: 320}
	lms[types.RightShoulder] = types.Landmark{X: 400, Y: 280}
	fb = composition.Analyze(snapshot(640, 480, lms))
	if fb.Guidance.Tilt != composition.TiltRight {
		t.Errorf("guidance = %+v, want tilt_right", fb.Guidance)
	}
	if fb.Message != "TILT PHONE RIGHT" {
		t.Errorf("message = %q", fb.Message)
	}
}

// TestAnalyzeTiltBeatsHeadroom validates rule priority: a critical tilt wins
// even when the headroom rule would also fire.
func TestAnalyzeTiltBeatsHeadroom(t *testing.T) {
	lms := map[types.LandmarkID]types.Landmark{
		types.Nose:          {X: 320, Y: 10}, // headroom 0.02
		types.LeftShoulder:  {X: 200, Y: 280},
		types.RightShoulder: {X: 400, Y: 320},
	}

	fb := composition.Analyze(snapshot(640, 480, lms))
	if fb.Severity != composition.SeverityCritical {
		t.Errorf("severity = %v, want critical (tilt outranks headroom)", fb.Severity)
	}
}

func TestAnalyzeHeadroom(t *testing.T) {
	lms := levelPose()
	lms[types.Nose] = types.Landmark{X: 320, Y: 50}

	// headroom = 50/1000 = 0.05 < 0.10
	fb := composition.Analyze(snapshot(640, 1000, lms))
	if fb.Severity != composition.SeverityWarning {
		t.Fatalf("severity = %v, want warning", fb.Severity)
	}
	if !strings.Contains(fb.Message, "HEADROOM") {
		t.Errorf("message = %q, want HEADROOM", fb.Message)
	}
	if fb.Guidance.Kind != composition.GuidanceTranslate || fb.Guidance.Move != composition.MoveUp {
		t.Errorf("guidance = %+v, want translate up", fb.Guidance)
	}
}

func TestAnalyzePerfect(t *testing.T) {
	fb := composition.Analyze(snapshot(640, 480, levelPose()))
	if fb.Severity != composition.SeverityPerfect {
		t.Fatalf("level pose: severity = %v, want perfect", fb.Severity)
	}

	// Equal shoulder y => angle exactly 0, still perfect with any x spread.
	lms := levelPose()
	lms[types.LeftShoulder] = types.Landmark{X: 100, Y: 300}
	lms[types.RightShoulder] = types.Landmark{X: 500, Y: 300}
	fb = composition.Analyze(snapshot(640, 480, lms))
	if fb.Severity != composition.SeverityPerfect {
		t.Errorf("equal-y shoulders: severity = %v, want perfect", fb.Severity)
	}
}

// TestAnalyzeFallback validates the dead zone between the perfect and
// critical thresholds: 2 < |angle| <= 5 yields the generic warning.
func TestAnalyzeFallback(t *testing.T) {
	lms := levelPose()
	// 200px run, 14px rise: angle ~ 4.0 degrees.
	lms[types.LeftShoulder] = types.Landmark{X: 220, Y: 260}
	lms[types.RightShoulder] = types.Landmark{X: 420, Y: 274}

	fb := composition.Analyze(snapshot(640, 480, lms))
	if fb.Severity != composition.SeverityWarning {
		t.Fatalf("severity = %v, want warning", fb.Severity)
	}
	if fb.Message != "SLIGHT ADJUSTMENT NEEDED" {
		t.Errorf("message = %q", fb.Message)
	}
	if fb.Guidance.Kind != composition.GuidanceNone {
		t.Errorf("guidance = %+v, want none", fb.Guidance)
	}
}

// TestAnalyzeExtendedCentering validates rule 4: the direction moves the
// subject's nose toward the frame center, and the minimal analyzer ignores
// the rule entirely.
func TestAnalyzeExtendedCentering(t *testing.T) {
	lms := levelPose()
	// Nose far right of center: offset = (500-320)/640 = 0.28 > 0.20.
	lms[types.Nose] = types.Landmark{X: 500, Y: 150}
	lms[types.LeftShoulder] = types.Landmark{X: 400, Y: 260}
	lms[types.RightShoulder] = types.Landmark{X: 600, Y: 260}
	snap := snapshot(640, 480, lms)

	fb := composition.AnalyzeExtended(snap)
	if fb.Message != "MOVE LEFT" {
		t.Errorf("extended: message = %q, want MOVE LEFT", fb.Message)
	}
	if fb.Guidance.Move != composition.MoveLeft {
		t.Errorf("guidance = %+v, want move left", fb.Guidance)
	}

	if fb := composition.Analyze(snap); fb.Severity != composition.SeverityPerfect {
		t.Errorf("minimal analyzer must skip centering, got %v %q", fb.Severity, fb.Message)
	}

	// Nose far left of center.
	lms[types.Nose] = types.Landmark{X: 100, Y: 150}
	lms[types.LeftShoulder] = types.Landmark{X: 40, Y: 260}
	lms[types.RightShoulder] = types.Landmark{X: 240, Y: 260}
	fb = composition.AnalyzeExtended(snapshot(640, 480, lms))
	if fb.Message != "MOVE RIGHT" {
		t.Errorf("message = %q, want MOVE RIGHT", fb.Message)
	}
}

// TestAnalyzeExtendedDistance validates rule 5's close/far bands.
func TestAnalyzeExtendedDistance(t *testing.T) {
	// Narrow span: 60/640 = 0.09 < 0.15.
	lms := levelPose()
	lms[types.LeftShoulder] = types.Landmark{X: 290, Y: 260}
	lms[types.RightShoulder] = types.Landmark{X: 350, Y: 260}

	fb := composition.AnalyzeExtended(snapshot(640, 480, lms))
	if fb.Message != "MOVE CLOSER" || fb.Guidance.Move != composition.MoveForward {
		t.Errorf("narrow span: got %q %+v", fb.Message, fb.Guidance)
	}

	// Wide span: 420/640 = 0.66 > 0.60.
	lms[types.LeftShoulder] = types.Landmark{X: 110, Y: 260}
	lms[types.RightShoulder] = types.Landmark{X: 530, Y: 260}
	fb = composition.AnalyzeExtended(snapshot(640, 480, lms))
	if fb.Message != "MOVE BACK" || fb.Guidance.Move != composition.MoveBack {
		t.Errorf("wide span: got %q %+v", fb.Message, fb.Guidance)
	}

	// The minimal analyzer calls both of these perfect.
	if fb := composition.Analyze(snapshot(640, 480, lms)); fb.Severity != composition.SeverityPerfect {
		t.Errorf("minimal analyzer must skip distance, got %v %q", fb.Severity, fb.Message)
	}
}

// TestAnalyzersShareThresholds validates that the shared rules behave
// identically in both analyzers right at the tilt boundary.
func TestAnalyzersShareThresholds(t *testing.T) {
	lms := levelPose()
	// 200px run, 18px rise: ~5.14 degrees, just past critical.
	lms[types.LeftShoulder] = types.Landmark{X: 220, Y: 260}
	lms[types.RightShoulder] = types.Landmark{X: 420, Y: 278}
	snap := snapshot(640, 480, lms)

	minimal := composition.Analyze(snap)
	extended := composition.AnalyzeExtended(snap)
	if minimal != extended {
		t.Errorf("divergent classification at the tilt threshold: %+v vs %+v", minimal, extended)
	}
	if minimal.Severity != composition.SeverityCritical {
		t.Errorf("severity = %v, want critical", minimal.Severity)
	}
}
