package solver

import (
	"github.com/kyiku/slide-textguard-back/internal/geom"
)

// Enforcement defaults.
const (
	DefaultTextPaddingPx = 2
	// MaxEnforcePasses is the most sweeps a single Enforce call runs.
	MaxEnforcePasses = 16
	// MoveEpsilon is the smallest shift reported as a move.
	MoveEpsilon = 0.5
)

// Item is one text line as seen by the enforcer.
type Item struct {
	ID   string
	Rect geom.Rect
	// Editing items receive direct input. They are never moved but still block others.
	Editing bool
}

// Correction records what the enforcer decided for a single item.
type Correction struct {
	ID           string     `json:"id"`
	Moved        bool       `json:"moved"`
	TopLeft      geom.Point `json:"top_left"`
	StillInvalid bool       `json:"still_invalid"`
	Status       Status     `json:"status"`
}

// EnforceOptions carries the shared constraints for a sweep.
type EnforceOptions struct {
	Allowed       geom.Rect
	Silhouette    Silhouette
	Search        SearchOptions
	TextPaddingPx float64
	// MaxPasses bounds the number of sweeps. One pass is the single left-to-right
	// sweep; extra passes rerun it on the corrected layout while items are still invalid.
	MaxPasses int
}

// Report is the full outcome of Enforce.
type Report struct {
	// Corrections lists only items that moved or could not be fixed, in input order.
	Corrections []Correction
	// Layout holds every item's rect after enforcement, in input order.
	Layout []geom.Rect
	Passes int
}

// EnforceSequential sweeps items in order and returns the corrections.
func EnforceSequential(items []Item, opts EnforceOptions) []Correction {
	return Enforce(items, opts).Corrections
}

// Enforce runs the sequential sweep.
//
// Item i is checked against the already corrected rects of items before it and
// the original rects of items after it. Earlier items are never revisited within
// a pass.
// Editing items are skipped but block everyone.
func Enforce(items []Item, opts EnforceOptions) Report {
	if opts.MaxPasses < 1 {
		opts.MaxPasses = 1
	}
	opts.MaxPasses = min(opts.MaxPasses, MaxEnforcePasses)

	initial := make([]geom.Rect, len(items))
	for i, it := range items {
		initial[i] = it.Rect
	}
	layout := append([]geom.Rect(nil), initial...)
	status := make([]Status, len(items))
	invalid := make([]bool, len(items))

	passes := 0
	for passes < opts.MaxPasses {
		passes++
		moved, stuck := sweep(items, layout, status, invalid, opts)
		// Every item the sweep settled is valid against the final layout, so only
		// stuck items can benefit from another pass, and only if something moved.
		if stuck == 0 || moved == 0 {
			break
		}
	}

	var out []Correction
	for i, it := range items {
		if it.Editing {
			continue
		}
		shifted := layout[i].TopLeft().Dist(initial[i].TopLeft()) > MoveEpsilon
		if !shifted && !invalid[i] {
			continue
		}
		out = append(out, Correction{
			ID:           it.ID,
			Moved:        shifted,
			TopLeft:      layout[i].TopLeft(),
			StillInvalid: invalid[i],
			Status:       status[i],
		})
	}

	return Report{Corrections: out, Layout: layout, Passes: passes}
}

// sweep runs one pass over items, updating layout in place. It returns how many
// items moved and how many remain invalid.
//
// Editing items and already swept items must be avoided. Later items, still at
// their pass-start rects, only restrict where a moving item may land: an item that
// is valid against everything else keeps its place and the later item yields.
func sweep(items []Item, layout []geom.Rect, status []Status, invalid []bool, opts EnforceOptions) (int, int) {
	original := append([]geom.Rect(nil), layout...)
	fixed := make([]geom.Rect, 0, len(items))
	all := make([]geom.Rect, 0, len(items))
	moved, stuck := 0, 0

	for i, it := range items {
		if it.Editing {
			continue
		}

		fixed, all = fixed[:0], all[:0]
		for j, other := range items {
			switch {
			case j == i:
			case j < i || other.Editing:
				fixed = append(fixed, layout[j])
				all = append(all, layout[j])
			default:
				all = append(all, original[j])
			}
		}

		c := Constraints{
			Allowed:    opts.Allowed,
			Silhouette: opts.Silhouette,
			Obstacles:  fixed,
			Padding:    opts.TextPaddingPx,
		}
		cur := layout[i]
		if c.Valid(cur) {
			status[i] = StatusUnchanged
			invalid[i] = false
			continue
		}

		c.Obstacles = all
		p := Search(cur.TopLeft(), cur.Width, cur.Height, c, opts.Search)
		status[i] = p.Status
		if !p.Found() {
			invalid[i] = true
			stuck++
			continue
		}
		invalid[i] = false
		if p.TopLeft.Dist(cur.TopLeft()) > MoveEpsilon {
			layout[i] = cur.MoveTo(p.TopLeft)
			moved++
		}
	}
	return moved, stuck
}
