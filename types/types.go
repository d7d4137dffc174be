// Package types holds the small geometric value types shared by area,
// pose and trajectory goals.
package types

import "math"

// Point is a 3D coordinate, ported from original_source/goalee/types.py.
type Point struct {
	X, Y, Z float64
}

// Sub returns p - o, component-wise.
func (p Point) Sub(o Point) Point {
	return Point{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
}

// Add returns p + o, component-wise.
func (p Point) Add(o Point) Point {
	return Point{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// SubScalar returns p with s subtracted from every component.
func (p Point) SubScalar(s float64) Point {
	return Point{p.X - s, p.Y - s, p.Z - s}
}

// AddScalar returns p with s added to every component.
func (p Point) AddScalar(s float64) Point {
	return Point{p.X + s, p.Y + s, p.Z + s}
}

// Abs returns the Euclidean norm of p.
func (p Point) Abs() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Distance returns the Euclidean distance between p and o.
func (p Point) Distance(o Point) float64 {
	return p.Sub(o).Abs()
}

// Within reports whether every component of p lies within deviation of the
// matching component of target — used by PositionGoal/PoseGoal deviation
// checks (per-axis absolute difference <= deviation).
func (p Point) Within(target Point, deviation float64) bool {
	return math.Abs(p.X-target.X) <= deviation &&
		math.Abs(p.Y-target.Y) <= deviation &&
		math.Abs(p.Z-target.Z) <= deviation
}

// Orientation is roll/pitch/yaw, ported from types.py.
type Orientation struct {
	Roll, Pitch, Yaw float64
}

func (o Orientation) Sub(other Orientation) Orientation {
	return Orientation{o.Roll - other.Roll, o.Pitch - other.Pitch, o.Yaw - other.Yaw}
}

func (o Orientation) Add(other Orientation) Orientation {
	return Orientation{o.Roll + other.Roll, o.Pitch + other.Pitch, o.Yaw + other.Yaw}
}

func (o Orientation) Abs() float64 {
	return math.Sqrt(o.Roll*o.Roll + o.Pitch*o.Pitch + o.Yaw*o.Yaw)
}

// Within reports whether every component of o lies within deviation of
// target.
func (o Orientation) Within(target Orientation, deviation float64) bool {
	return math.Abs(o.Roll-target.Roll) <= deviation &&
		math.Abs(o.Pitch-target.Pitch) <= deviation &&
		math.Abs(o.Yaw-target.Yaw) <= deviation
}

// Pose combines a translation and an orientation.
type Pose struct {
	Translation Point
	Orientation Orientation
}

// PointFromMap decodes {"x":..,"y":..,"z":..} (float64 or int JSON numbers)
// into a Point. Missing keys default to 0.
func PointFromMap(m map[string]any) Point {
	return Point{
		X: numOr(m, "x", 0),
		Y: numOr(m, "y", 0),
		Z: numOr(m, "z", 0),
	}
}

// OrientationFromMap decodes {"roll":..,"pitch":..,"yaw":..} into an
// Orientation. Missing keys default to 0.
func OrientationFromMap(m map[string]any) Orientation {
	return Orientation{
		Roll:  numOr(m, "roll", 0),
		Pitch: numOr(m, "pitch", 0),
		Yaw:   numOr(m, "yaw", 0),
	}
}

func numOr(m map[string]any, key string, fallback float64) float64 {
	if m == nil {
		return fallback
	}
	v, ok := m[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}
