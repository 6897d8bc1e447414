// Package viewport maps points between the sensor's pixel space (the
// analyzed frame) and the display's pixel space (the render target).
//
// The display uses an aspect-fill policy: the frame is scaled to fill the
// target and the overflowing dimension is center-cropped, never letterboxed.
// Front-facing capture additionally mirrors the image about its vertical
// midline; y is never mirrored.
//
// All functions are pure and reentrant.
package viewport

import "math"

// Size is a width/height pair in pixels. Both dimensions must be > 0 for a
// mapping to be meaningful; degenerate sizes yield defined fallbacks instead
// of errors.
type Size struct {
	Width  float64
	Height float64
}

// SizeOf converts integer pixel dimensions to a Size.
func SizeOf(width, height int) Size {
	return Size{Width: float64(width), Height: float64(height)}
}

func (s Size) valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Point is a 2D pixel position.
type Point struct {
	X float64
	Y float64
}

// ScaleFactor returns the aspect-fill scale from source to target: the
// factor that makes the source cover the target completely. Returns 0 for
// degenerate sizes.
func ScaleFactor(source, target Size) float64 {
	if !source.valid() || !target.valid() {
		return 0
	}
	if source.Width/source.Height > target.Width/target.Height {
		// Source relatively wider: height fills, width overflows.
		return target.Height / source.Height
	}
	return target.Width / source.Width
}

// centering offsets of the scaled source inside the target. Negative values
// indicate cropped content.
func offsets(source, target Size, scale float64) (offsetX, offsetY float64) {
	offsetX = (target.Width - source.Width*scale) / 2
	offsetY = (target.Height - source.Height*scale) / 2
	return offsetX, offsetY
}

// MapPointUnclamped transforms a sensor-space point to display space without
// clamping, so callers can tell an edge point from an off-canvas one.
// Degenerate sizes map to the origin.
func MapPointUnclamped(x, y float64, source, target Size, mirrored bool) Point {
	if !source.valid() || !target.valid() {
		return Point{}
	}

	scale := ScaleFactor(source, target)
	offsetX, offsetY := offsets(source, target, scale)

	if mirrored {
		x = source.Width - x
	}

	return Point{
		X: x*scale + offsetX,
		Y: y*scale + offsetY,
	}
}

// MapPoint transforms a sensor-space point to display space and clamps the
// result to the target bounds, keeping overlay drawing inside the visible
// canvas. Use MapPointUnclamped when off-canvas must be distinguishable.
func MapPoint(x, y float64, source, target Size, mirrored bool) Point {
	p := MapPointUnclamped(x, y, source, target, mirrored)
	if !source.valid() || !target.valid() {
		return p
	}
	return Point{
		X: clamp(p.X, 0, target.Width),
		Y: clamp(p.Y, 0, target.Height),
	}
}

// MapPoints applies MapPoint to every element, preserving order and
// cardinality.
func MapPoints(points []Point, source, target Size, mirrored bool) []Point {
	mapped := make([]Point, len(points))
	for i, p := range points {
		mapped[i] = MapPoint(p.X, p.Y, source, target, mirrored)
	}
	return mapped
}

// VisibleRegion returns, in source-space units, the sub-rectangle of the
// source image that survives the center crop.
func VisibleRegion(source, target Size) (visibleWidth, visibleHeight float64) {
	if !source.valid() || !target.valid() {
		return 0, 0
	}
	if source.Width/source.Height > target.Width/target.Height {
		// Height fully visible, width cropped.
		return source.Height * target.Width / target.Height, source.Height
	}
	return source.Width, source.Width * target.Height / target.Width
}

// ScreenToCamera inverts MapPoint: display-space coordinates back to sensor
// space. Returns false when the sizes are degenerate or the point falls in
// the cropped-away region outside the source bounds.
func ScreenToCamera(screenX, screenY float64, source, target Size, mirrored bool) (Point, bool) {
	if !source.valid() || !target.valid() {
		return Point{}, false
	}

	scale := ScaleFactor(source, target)
	offsetX, offsetY := offsets(source, target, scale)

	cameraX := (screenX - offsetX) / scale
	cameraY := (screenY - offsetY) / scale

	if cameraX < 0 || cameraX > source.Width || cameraY < 0 || cameraY > source.Height {
		return Point{}, false
	}

	if mirrored {
		cameraX = source.Width - cameraX
	}

	return Point{X: cameraX, Y: cameraY}, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
