package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/kyiku/slide-textguard-back/internal/geom"
)

// Search defaults.
const (
	DefaultStepPx      = 4
	DefaultMaxRadiusPx = 480

	// MinStepPx is the finest lattice a search may walk.
	MinStepPx = 0.5
	// MaxRings bounds MaxRadiusPx/StepPx, which keeps one search under
	// about π·MaxRings² candidate checks.
	MaxRings = 2048
)

// ErrInvalidSearch is returned by SearchOptions.Validate.
var ErrInvalidSearch = errors.New("invalid search options")

// tieEps treats distances closer than this as equal.
const tieEps = 1e-9

// Status describes how a search ended.
type Status int

const (
	// StatusUnchanged means the starting position was already valid.
	StatusUnchanged Status = iota
	// StatusMoved means a nearer valid position was found.
	StatusMoved
	// StatusNotFound means nothing valid exists within the search radius.
	StatusNotFound
	// StatusTooLarge means the box cannot fit inside the allowed rect at all.
	StatusTooLarge
	// StatusNoRoom means the allowed rect is empty.
	StatusNoRoom
)

var statusNames = map[Status]string{
	StatusUnchanged: "unchanged",
	StatusMoved:     "moved",
	StatusNotFound:  "not_found",
	StatusTooLarge:  "too_large",
	StatusNoRoom:    "no_room",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the status name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SearchOptions tunes the grid and the search bound.
type SearchOptions struct {
	StepPx      float64
	MaxRadiusPx float64
}

// Validate checks that the step is not finer than MinStepPx, the radius covers
// at least one step and the search stays within MaxRings rings.
func (o SearchOptions) Validate() error {
	switch {
	case !(o.StepPx >= MinStepPx):
		return fmt.Errorf("%w: step %v is below %v", ErrInvalidSearch, o.StepPx, MinStepPx)
	case !(o.MaxRadiusPx >= o.StepPx):
		return fmt.Errorf("%w: radius %v is smaller than step %v", ErrInvalidSearch, o.MaxRadiusPx, o.StepPx)
	case o.MaxRadiusPx/o.StepPx > MaxRings:
		return fmt.Errorf("%w: radius %v needs more than %d rings of %v", ErrInvalidSearch, o.MaxRadiusPx, MaxRings, o.StepPx)
	}
	return nil
}

// withDefaults fills unset fields and clamps the rest into the Validate bounds.
func (o SearchOptions) withDefaults() SearchOptions {
	if !(o.StepPx > 0) {
		o.StepPx = DefaultStepPx
	}
	o.StepPx = math.Max(o.StepPx, MinStepPx)
	if !(o.MaxRadiusPx > 0) {
		o.MaxRadiusPx = DefaultMaxRadiusPx
	}
	o.MaxRadiusPx = math.Min(o.MaxRadiusPx, o.StepPx*MaxRings)
	return o
}

// Placement is the outcome of a single-box search.
type Placement struct {
	TopLeft geom.Point
	Status  Status
	// Evaluated counts the candidate positions tested, including the start.
	Evaluated int
}

// Found reports whether TopLeft is a valid position.
func (p Placement) Found() bool {
	return p.Status == StatusUnchanged || p.Status == StatusMoved
}

// FindNearestValidTopLeft returns the closest valid top-left for a w×h box starting
// at start, or false when no valid position exists within the search radius.
func FindNearestValidTopLeft(start geom.Point, w, h float64, c Constraints, opts SearchOptions) (geom.Point, bool) {
	p := Search(start, w, h, c, opts)
	return p.TopLeft, p.Found()
}

// Search runs the expanding-ring search and reports why it stopped.
//
// Candidates are lattice offsets (i*step, j*step) from start. Ring k holds the
// offsets with (k-1)² < i²+j² ≤ k², so rings grow in true Euclidean distance and
// the whole search evaluates O((R/step)²) candidates. Each candidate is clamped
// into the allowed rect before testing. The first ring with a valid candidate
// wins; within it the smallest distance, then |dx|, then |dy|, then scan order.
func Search(start geom.Point, w, h float64, c Constraints, opts SearchOptions) Placement {
	opts = opts.withDefaults()

	if c.Allowed.Empty() {
		return Placement{TopLeft: start, Status: StatusNoRoom}
	}
	if !c.Allowed.Fits(w, h) {
		return Placement{TopLeft: start, Status: StatusTooLarge}
	}

	box := geom.R(start.X, start.Y, w, h)
	if c.Valid(box) {
		return Placement{TopLeft: start, Status: StatusUnchanged, Evaluated: 1}
	}

	evaluated := 1
	rings := int(math.Floor(opts.MaxRadiusPx / opts.StepPx))
	for k := 1; k <= rings; k++ {
		var best candidate
		found := false

		eachRingOffset(k, func(i, j int) {
			p := geom.Point{
				X: start.X + float64(i)*opts.StepPx,
				Y: start.Y + float64(j)*opts.StepPx,
			}
			p = c.Allowed.ClampTopLeft(p, w, h)
			evaluated++
			if !c.Valid(box.MoveTo(p)) {
				return
			}
			cand := newCandidate(p, start)
			if !found || cand.less(best) {
				best = cand
				found = true
			}
		})

		if found {
			return Placement{TopLeft: best.p, Status: StatusMoved, Evaluated: evaluated}
		}
	}

	return Placement{TopLeft: start, Status: StatusNotFound, Evaluated: evaluated}
}

type candidate struct {
	p      geom.Point
	dist   float64
	dx, dy float64
}

func newCandidate(p, origin geom.Point) candidate {
	return candidate{
		p:    p,
		dist: p.Dist(origin),
		dx:   math.Abs(p.X - origin.X),
		dy:   math.Abs(p.Y - origin.Y),
	}
}

// less orders by distance, |dx|, |dy|. Equal candidates keep scan order.
func (c candidate) less(o candidate) bool {
	if math.Abs(c.dist-o.dist) > tieEps {
		return c.dist < o.dist
	}
	if math.Abs(c.dx-o.dx) > tieEps {
		return c.dx < o.dx
	}
	if math.Abs(c.dy-o.dy) > tieEps {
		return c.dy < o.dy
	}
	return false
}

// eachRingOffset calls fn for every lattice offset in ring k, rows top to bottom
// and columns left to right.
func eachRingOffset(k int, fn func(i, j int)) {
	for j := -k; j <= k; j++ {
		imax := isqrt(k*k - j*j)
		imin := 0
		if inner := (k-1)*(k-1) - j*j; inner >= 0 {
			imin = isqrt(inner) + 1
		}
		if imin > imax {
			continue
		}
		for i := -imax; i <= -imin; i++ {
			fn(i, j)
		}
		for i := max(imin, 1); i <= imax; i++ {
			fn(i, j)
		}
	}
}

// isqrt returns floor(sqrt(n)) for n >= 0.
func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	r := int(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}
