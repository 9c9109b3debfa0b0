// Package geom provides the axis-aligned rectangle arithmetic used by the layout solver.
package geom

import (
	"image"
	"math"
)

// Point is a position in canvas pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between two points.
func (p Point) Dist(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Rect is an axis-aligned bounding box with a top-left origin.
// A rect with non-positive width or height is empty.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// R is shorthand for building a Rect.
func R(x, y, w, h float64) Rect {
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// Right returns the exclusive right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// TopLeft returns the origin of the rect.
func (r Rect) TopLeft() Point { return Point{X: r.X, Y: r.Y} }

// Empty reports whether the rect covers no area.
// NaN dimensions count as empty.
func (r Rect) Empty() bool {
	return !(r.Width > 0) || !(r.Height > 0)
}

// MoveTo returns the rect translated so that its top-left is p.
func (r Rect) MoveTo(p Point) Rect {
	r.X, r.Y = p.X, p.Y
	return r
}

// Overlaps reports whether the half-open extents of r and o intersect on both axes.
// Touching edges and empty rects never overlap.
func (r Rect) Overlaps(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.Right() && o.X < r.Right() &&
		r.Y < o.Bottom() && o.Y < r.Bottom()
}

// Intersect returns the overlapping region of r and o, or the zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	if !r.Overlaps(o) {
		return Rect{}
	}
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.Right(), o.Right())
	y1 := math.Min(r.Bottom(), o.Bottom())
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Contains reports whether o lies fully inside r, allowing tol pixels of slack on each edge.
func (r Rect) Contains(o Rect, tol float64) bool {
	if r.Empty() {
		return false
	}
	return o.X >= r.X-tol && o.Y >= r.Y-tol &&
		o.Right() <= r.Right()+tol && o.Bottom() <= r.Bottom()+tol
}

// Inset shrinks the rect by d on every side. Negative d grows it.
func (r Rect) Inset(d float64) Rect {
	return Rect{X: r.X + d, Y: r.Y + d, Width: r.Width - 2*d, Height: r.Height - 2*d}
}

// Expand grows the rect by d on every side.
func (r Rect) Expand(d float64) Rect {
	return r.Inset(-d)
}

// Fits reports whether a w×h box can be placed inside r at all.
func (r Rect) Fits(w, h float64) bool {
	return !r.Empty() && w <= r.Width && h <= r.Height
}

// ClampTopLeft moves p so that a w×h box starting there stays inside r.
// When the box is wider or taller than r the box is pinned to r's top-left on that axis.
func (r Rect) ClampTopLeft(p Point, w, h float64) Point {
	return Point{
		X: clamp(p.X, r.X, r.Right()-w),
		Y: clamp(p.Y, r.Y, r.Bottom()-h),
	}
}

// Bounds returns the integer image.Rectangle covering r.
func (r Rect) Bounds() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.Right())), int(math.Ceil(r.Bottom())),
	)
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
