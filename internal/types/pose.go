package types

import "time"

// LandmarkID identifies a named anatomical keypoint. The enumeration follows
// the COCO 17-keypoint convention used by the pose worker models.
type LandmarkID int

const (
	Nose LandmarkID = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	NumLandmarks
)

var landmarkNames = [NumLandmarks]string{
	"nose",
	"left_eye", "right_eye",
	"left_ear", "right_ear",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
}

// String returns the wire name of the landmark (matches the pose worker's
// keypoint naming).
func (id LandmarkID) String() string {
	if id < 0 || id >= NumLandmarks {
		return "unknown"
	}
	return landmarkNames[id]
}

// ParseLandmarkID maps a wire name back to its LandmarkID.
func ParseLandmarkID(name string) (LandmarkID, bool) {
	for id, n := range landmarkNames {
		if n == name {
			return LandmarkID(id), true
		}
	}
	return 0, false
}

// Landmark is a single detected keypoint in sensor-pixel coordinates.
// Score is the detector's confidence; the composition rules ignore it.
type Landmark struct {
	X     float64
	Y     float64
	Score float64
}

// PoseSnapshot is the complete set of landmarks detected for one analyzed
// frame, or an explicit no-pose result when detection failed or no body was
// found. Immutable once produced; downstream consumers observe latest-value
// semantics, a new snapshot supersedes the previous one.
type PoseSnapshot struct {
	FrameSeq  uint64
	TraceID   string
	Timestamp time.Time
	// Width and Height are the analyzed frame's dimensions in pixels
	Width  int
	Height int
	// Landmarks holds the detected keypoints; nil or empty means no pose
	Landmarks map[LandmarkID]Landmark
}

// NoPose builds the no-pose sentinel snapshot for a frame.
func NoPose(frame *Frame) PoseSnapshot {
	return PoseSnapshot{
		FrameSeq:  frame.Seq,
		TraceID:   frame.TraceID,
		Timestamp: frame.Timestamp,
		Width:     frame.Width,
		Height:    frame.Height,
	}
}

// SnapshotFrom builds a snapshot carrying the given landmarks for a frame.
func SnapshotFrom(frame *Frame, landmarks map[LandmarkID]Landmark) PoseSnapshot {
	s := NoPose(frame)
	s.Landmarks = landmarks
	return s
}

// HasPose reports whether a body was detected in the frame.
func (s PoseSnapshot) HasPose() bool {
	return len(s.Landmarks) > 0
}

// Landmark returns the keypoint for id and whether it was detected.
func (s PoseSnapshot) Landmark(id LandmarkID) (Landmark, bool) {
	lm, ok := s.Landmarks[id]
	return lm, ok
}
