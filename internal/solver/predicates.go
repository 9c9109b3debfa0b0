// Package solver keeps text boxes legible over a slide background.
//
// Every function here is pure: inputs are value snapshots of rectangles and a
// read-only mask, and no state survives between calls. Callers apply the
// returned coordinates to their own objects.
package solver

import (
	"math"

	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/mask"
)

// DefaultMaskStride is the sampling stride in mask pixels. It bounds the cost of a
// mask probe while still catching solid regions a few pixels wide.
const DefaultMaskStride = 4

// containEps absorbs float noise when checking containment in the allowed rect.
const containEps = 1e-6

// RectsOverlap reports whether a and b share any area. Touching edges do not count.
func RectsOverlap(a, b geom.Rect) bool {
	return a.Overlaps(b)
}

// AABBIntersectsMask reports whether aabb covers any solid mask pixel.
// The mask is stretched linearly over imageRect. Boxes that miss imageRect,
// invalid masks and empty image rects never intersect.
func AABBIntersectsMask(aabb, imageRect geom.Rect, m *mask.Mask, stride int) bool {
	if !m.Valid() || imageRect.Empty() {
		return false
	}
	clip := aabb.Intersect(imageRect)
	if clip.Empty() {
		return false
	}
	if stride <= 0 {
		stride = DefaultMaskStride
	}

	sx := float64(m.Width) / imageRect.Width
	sy := float64(m.Height) / imageRect.Height
	x0, x1 := maskSpan(clip.X-imageRect.X, clip.Right()-imageRect.X, sx, m.Width)
	y0, y1 := maskSpan(clip.Y-imageRect.Y, clip.Bottom()-imageRect.Y, sy, m.Height)

	for my := y0; my < y1; my = nextSample(my, y1, stride) {
		for mx := x0; mx < x1; mx = nextSample(mx, x1, stride) {
			if m.Solid(mx, my) {
				return true
			}
		}
	}
	return false
}

// maskSpan maps the canvas interval [lo, hi) relative to the image origin into
// a half-open mask pixel range clamped to [0, size).
func maskSpan(lo, hi, scale float64, size int) (int, int) {
	a := int(math.Floor(lo * scale))
	b := int(math.Ceil(hi * scale))
	a = max(0, min(a, size-1))
	b = max(a+1, min(b, size))
	return a, b
}

// nextSample advances v by stride but always lands on the last index of the span once.
func nextSample(v, end, stride int) int {
	n := v + stride
	if n >= end && v < end-1 {
		return end - 1
	}
	return n
}

// Silhouette is the background photo's footprint on the canvas.
// Without a valid mask the whole Rect is treated as solid.
type Silhouette struct {
	Rect   geom.Rect
	Mask   *mask.Mask
	Stride int
}

// HasMask reports whether per-pixel collision is available.
func (s Silhouette) HasMask() bool {
	return s.Mask.Valid()
}

// Blocks reports whether aabb sits on the silhouette.
func (s Silhouette) Blocks(aabb geom.Rect) bool {
	if s.Rect.Empty() {
		return false
	}
	if !s.HasMask() {
		return RectsOverlap(aabb, s.Rect)
	}
	return AABBIntersectsMask(aabb, s.Rect, s.Mask, s.Stride)
}

// Violation is a bit set of broken placement rules.
type Violation uint8

const (
	// ViolationOutside means the box leaves the allowed rect.
	ViolationOutside Violation = 1 << iota
	// ViolationSilhouette means the box covers the background subject.
	ViolationSilhouette
	// ViolationObstacle means the box touches another item within padding.
	ViolationObstacle
)

// Has reports whether v includes flag.
func (v Violation) Has(flag Violation) bool {
	return v&flag != 0
}

// Strings lists the violated rules for API responses.
func (v Violation) Strings() []string {
	out := []string{}
	if v.Has(ViolationOutside) {
		out = append(out, "outside")
	}
	if v.Has(ViolationSilhouette) {
		out = append(out, "silhouette")
	}
	if v.Has(ViolationObstacle) {
		out = append(out, "obstacle")
	}
	return out
}

// Constraints bundles everything a single box is checked against.
type Constraints struct {
	Allowed    geom.Rect
	Silhouette Silhouette
	Obstacles  []geom.Rect
	// Padding is the minimum separation kept from each obstacle.
	Padding float64
}

// Check returns the rules box breaks. An empty allowed rect rejects every box.
func (c Constraints) Check(box geom.Rect) Violation {
	var v Violation
	if !c.Allowed.Contains(box, containEps) {
		v |= ViolationOutside
	}
	if c.Silhouette.Blocks(box) {
		v |= ViolationSilhouette
	}
	for _, o := range c.Obstacles {
		if o.Empty() {
			continue
		}
		if RectsOverlap(box, o.Expand(c.Padding)) {
			v |= ViolationObstacle
			break
		}
	}
	return v
}

// Valid reports whether box satisfies every rule.
func (c Constraints) Valid(box geom.Rect) bool {
	return c.Check(box) == 0
}
