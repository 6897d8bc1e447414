// Package composition classifies a pose snapshot into discrete, human
// readable framing guidance using deterministic geometric rules.
package composition

// Severity is the classification case of a feedback value. The total order
// Critical > Warning > Perfect exists only for transition detection, never
// for blending.
type Severity int

const (
	SeverityPerfect Severity = iota
	SeverityWarning
	SeverityCritical
)

// String returns the wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityPerfect:
		return "perfect"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// MoveDirection is a translation hint for the operator.
type MoveDirection int

const (
	MoveLeft MoveDirection = iota
	MoveRight
	MoveUp
	MoveDown
	MoveForward
	MoveBack
)

var moveNames = [...]string{"left", "right", "up", "down", "forward", "back"}

func (d MoveDirection) String() string {
	if int(d) < len(moveNames) {
		return moveNames[d]
	}
	return "unknown"
}

// TiltDirection is a device-rotation hint for the operator.
type TiltDirection int

const (
	TiltLeft TiltDirection = iota
	TiltRight
)

func (d TiltDirection) String() string {
	if d == TiltLeft {
		return "tilt_left"
	}
	return "tilt_right"
}

// GuidanceKind discriminates the guidance variant.
type GuidanceKind int

const (
	GuidanceNone GuidanceKind = iota
	GuidanceTranslate
	GuidanceRotate
)

// Guidance is a tagged variant: none, a translation direction, or a device
// rotation direction. Move is meaningful only when Kind is GuidanceTranslate,
// Tilt only when Kind is GuidanceRotate.
type Guidance struct {
	Kind GuidanceKind
	Move MoveDirection
	Tilt TiltDirection
}

// Translate builds a translation guidance.
func Translate(d MoveDirection) Guidance {
	return Guidance{Kind: GuidanceTranslate, Move: d}
}

// Rotate builds a device-rotation guidance.
func Rotate(d TiltDirection) Guidance {
	return Guidance{Kind: GuidanceRotate, Tilt: d}
}

// String returns the wire name of the guidance for emission.
func (g Guidance) String() string {
	switch g.Kind {
	case GuidanceTranslate:
		return "move_" + g.Move.String()
	case GuidanceRotate:
		return g.Tilt.String()
	}
	return "none"
}

// Feedback is the classification of one pose snapshot. Exactly one severity
// case is active; Perfect carries no message or guidance.
type Feedback struct {
	Severity Severity
	Message  string
	Guidance Guidance
}

// Perfect builds the no-adjustment-needed feedback.
func Perfect() Feedback {
	return Feedback{Severity: SeverityPerfect}
}

// Warning builds an advisory feedback.
func Warning(message string, guidance Guidance) Feedback {
	return Feedback{Severity: SeverityWarning, Message: message, Guidance: guidance}
}

// Critical builds a must-fix feedback.
func Critical(message string, guidance Guidance) Feedback {
	return Feedback{Severity: SeverityCritical, Message: message, Guidance: guidance}
}
