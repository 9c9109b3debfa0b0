package solver

import (
	"github.com/kyiku/slide-textguard-back/internal/geom"
)

// Side names one of the four slots next to an obstacle.
type Side int

const (
	SideRight Side = iota
	SideLeft
	SideBelow
	SideAbove
)

func (s Side) String() string {
	switch s {
	case SideRight:
		return "right"
	case SideLeft:
		return "left"
	case SideBelow:
		return "below"
	case SideAbove:
		return "above"
	}
	return "unknown"
}

// PushOutPolicy picks the slot used when two slots are equally close.
type PushOutPolicy struct {
	Prefer Side
}

// DefaultPushOutPolicy prefers the slot to the right of the obstacle.
var DefaultPushOutPolicy = PushOutPolicy{Prefer: SideRight}

func (p PushOutPolicy) order() []Side {
	sides := []Side{p.Prefer}
	for _, s := range []Side{SideRight, SideLeft, SideBelow, SideAbove} {
		if s != p.Prefer {
			sides = append(sides, s)
		}
	}
	return sides
}

// PushOut moves box to the nearest slot hugging one of obstacle's four sides.
// Each slot is clamped into allowed (when non-empty). Slots that still overlap
// the obstacle after clamping are only used when no slot clears it.
func PushOut(box, obstacle, allowed geom.Rect, policy PushOutPolicy) (geom.Point, Side) {
	origin := box.TopLeft()

	type slot struct {
		side  Side
		p     geom.Point
		dist  float64
		clear bool
	}
	var best *slot

	for _, side := range policy.order() {
		p := slotFor(side, box, obstacle)
		if !allowed.Empty() {
			p = allowed.ClampTopLeft(p, box.Width, box.Height)
		}
		s := slot{
			side:  side,
			p:     p,
			dist:  p.Dist(origin),
			clear: !RectsOverlap(box.MoveTo(p), obstacle),
		}
		switch {
		case best == nil:
		case s.clear && !best.clear:
		case s.clear == best.clear && s.dist < best.dist-tieEps:
		default:
			continue
		}
		best = &s
	}
	return best.p, best.side
}

func slotFor(side Side, box, obstacle geom.Rect) geom.Point {
	switch side {
	case SideLeft:
		return geom.Point{X: obstacle.X - box.Width, Y: box.Y}
	case SideBelow:
		return geom.Point{X: box.X, Y: obstacle.Bottom()}
	case SideAbove:
		return geom.Point{X: box.X, Y: obstacle.Y - box.Height}
	default:
		return geom.Point{X: obstacle.Right(), Y: box.Y}
	}
}
