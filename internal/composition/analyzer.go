package composition

import (
	"math"

	"github.com/visiona/shotcoach/internal/types"
)

// Rule thresholds. The minimal and extended analyzers share these exactly.
const (
	// criticalTiltDeg is the shoulder-line angle beyond which the shot is
	// unusable and the operator must level the device
	criticalTiltDeg = 5.0
	// perfectTiltDeg is the tighter angle bound required to call the shot
	// level
	perfectTiltDeg = 2.0
	// minHeadroom is the minimum fraction of frame height above the nose
	minHeadroom = 0.10
	// maxCenterOffset is the maximum fraction of frame width the nose may
	// sit away from the horizontal center (extended rules)
	maxCenterOffset = 0.20
	// shoulder-width fractions of frame width proxying subject distance
	// (extended rules)
	minShoulderRatio = 0.15
	maxShoulderRatio = 0.60
)

// Guidance messages, in the fixed wording the overlay renders verbatim.
const (
	msgOutOfFrame   = "POSITION YOURSELF IN FRAME"
	msgTiltLeft     = "TILT PHONE LEFT"
	msgTiltRight    = "TILT PHONE RIGHT"
	msgHeadroom     = "TILT UP FOR MORE HEADROOM"
	msgMoveLeft     = "MOVE LEFT"
	msgMoveRight    = "MOVE RIGHT"
	msgMoveCloser   = "MOVE CLOSER"
	msgMoveBack     = "MOVE BACK"
	msgSlightAdjust = "SLIGHT ADJUSTMENT NEEDED"
)

// Analyze classifies a snapshot using the minimal rule set: framing presence,
// shoulder tilt and headroom. Rules are evaluated in fixed priority order,
// first match wins.
func Analyze(snap types.PoseSnapshot) Feedback {
	return analyze(snap, false)
}

// AnalyzeExtended additionally evaluates horizontal centering and subject
// distance, sharing every threshold with Analyze.
func AnalyzeExtended(snap types.PoseSnapshot) Feedback {
	return analyze(snap, true)
}

func analyze(snap types.PoseSnapshot, extended bool) Feedback {
	left, leftOK := snap.Landmark(types.LeftShoulder)
	right, rightOK := snap.Landmark(types.RightShoulder)

	// Rule 1: no usable subject. Covers detection failure and no-pose, which
	// degrade to the same readable guidance rather than an error state.
	if !leftOK && !rightOK {
		return Warning(msgOutOfFrame, Guidance{})
	}

	bothShoulders := leftOK && rightOK
	var angle float64
	if bothShoulders {
		angle = shoulderAngle(left, right)
	}

	// Rule 2: shoulder tilt. Takes priority over every remaining check.
	if bothShoulders && math.Abs(angle) > criticalTiltDeg {
		if angle > 0 {
			return Critical(msgTiltLeft, Rotate(TiltLeft))
		}
		return Critical(msgTiltRight, Rotate(TiltRight))
	}

	// Rule 3: headroom. Frame origin is top-left, small nose.y means the
	// head crowds the top edge.
	nose, noseOK := snap.Landmark(types.Nose)
	if noseOK && snap.Height > 0 {
		if headroom(nose, snap.Height) < minHeadroom {
			return Warning(msgHeadroom, Translate(MoveUp))
		}
	}

	if extended && noseOK && snap.Width > 0 {
		// Rule 4: horizontal centering. Direction moves the subject's nose
		// toward the frame center.
		frameWidth := float64(snap.Width)
		offset := (nose.X - frameWidth/2) / frameWidth
		if math.Abs(offset) > maxCenterOffset {
			if offset > 0 {
				return Warning(msgMoveLeft, Translate(MoveLeft))
			}
			return Warning(msgMoveRight, Translate(MoveRight))
		}
	}

	if extended && bothShoulders && snap.Width > 0 {
		// Rule 5: subject distance, shoulder span as proxy.
		ratio := math.Abs(right.X-left.X) / float64(snap.Width)
		if ratio < minShoulderRatio {
			return Warning(msgMoveCloser, Translate(MoveForward))
		}
		if ratio > maxShoulderRatio {
			return Warning(msgMoveBack, Translate(MoveBack))
		}
	}

	// Rule 6: level enough to call perfect.
	if bothShoulders && math.Abs(angle) <= perfectTiltDeg {
		return Perfect()
	}

	// Rule 7: fallback.
	return Warning(msgSlightAdjust, Guidance{})
}

// shoulderAngle returns the angle in degrees of the shoulder line relative
// to horizontal. Positive means the left shoulder sits higher in the frame.
func shoulderAngle(left, right types.Landmark) float64 {
	return math.Atan2(right.Y-left.Y, right.X-left.X) * 180 / math.Pi
}

// headroom returns the fraction of frame height above the nose. Unclamped.
func headroom(nose types.Landmark, frameHeight int) float64 {
	return nose.Y / float64(frameHeight)
}
