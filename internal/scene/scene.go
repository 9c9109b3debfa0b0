// Package scene is the self-contained description of a layout problem used by
// the stateless solve API and the layout-check command.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/mask"
	"github.com/kyiku/slide-textguard-back/internal/solver"
)

// ErrInvalidScene is returned when a scene cannot be solved as given.
var ErrInvalidScene = errors.New("invalid scene")

// Item is one text box in a scene.
type Item struct {
	ID      string    `json:"id"`
	Rect    geom.Rect `json:"rect"`
	Editing bool      `json:"editing,omitempty"`
}

// Query asks for the nearest valid position of a single box.
type Query struct {
	Start  geom.Point `json:"start"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
}

// Overrides replace solver settings for one scene. Zero values keep the defaults.
// The merged settings must pass the same checks as the service configuration.
type Overrides struct {
	StepPx        float64  `json:"step_px,omitempty"`
	MaxRadiusPx   float64  `json:"max_radius_px,omitempty"`
	TextPaddingPx *float64 `json:"text_padding_px,omitempty"`
	MaskStride    int      `json:"mask_stride,omitempty"`
	MaxPasses     int      `json:"max_passes,omitempty"`
}

// Scene is an allowed region, an optional background silhouette and the boxes on it.
type Scene struct {
	Allowed   geom.Rect     `json:"allowed"`
	Image     geom.Rect     `json:"image"`
	Mask      *mask.Payload `json:"mask,omitempty"`
	Obstacles []geom.Rect   `json:"obstacles,omitempty"`
	Items     []Item        `json:"items,omitempty"`
	Query     *Query        `json:"query,omitempty"`
	Overrides
}

// Decode reads a JSON scene.
func Decode(r io.Reader) (Scene, error) {
	var s Scene
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Scene{}, fmt.Errorf("failed to decode scene: %w", err)
	}
	return s, nil
}

// LoadFile reads a JSON scene from path.
func LoadFile(path string) (Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scene{}, fmt.Errorf("failed to open scene: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// ValidateItems checks that every item has a unique id and a positive size.
func (s Scene) ValidateItems() error {
	seen := make(map[string]bool, len(s.Items))
	for i, it := range s.Items {
		if it.ID == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidScene, i)
		}
		if seen[it.ID] {
			return fmt.Errorf("%w: duplicate item id %q", ErrInvalidScene, it.ID)
		}
		seen[it.ID] = true
		if it.Rect.Empty() {
			return fmt.Errorf("%w: item %q has no area", ErrInvalidScene, it.ID)
		}
	}
	return nil
}

// ValidateQuery checks the single-box query.
func (s Scene) ValidateQuery() error {
	if s.Query == nil {
		return fmt.Errorf("%w: query is required", ErrInvalidScene)
	}
	if !(s.Query.Width > 0) || !(s.Query.Height > 0) {
		return fmt.Errorf("%w: query size %vx%v", ErrInvalidScene, s.Query.Width, s.Query.Height)
	}
	return nil
}

// Settings applies the scene's overrides on top of base and checks the result.
func (s Scene) Settings(base controller.Settings) (controller.Settings, error) {
	if s.StepPx != 0 {
		base.Search.StepPx = s.StepPx
	}
	if s.MaxRadiusPx != 0 {
		base.Search.MaxRadiusPx = s.MaxRadiusPx
	}
	if s.TextPaddingPx != nil {
		base.TextPaddingPx = *s.TextPaddingPx
	}
	if s.MaskStride != 0 {
		base.MaskStride = s.MaskStride
	}
	if s.MaxPasses != 0 {
		base.MaxPasses = s.MaxPasses
	}

	if err := base.Search.Validate(); err != nil {
		return controller.Settings{}, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	switch {
	case !(base.TextPaddingPx >= 0):
		return controller.Settings{}, fmt.Errorf("%w: text padding %v", ErrInvalidScene, base.TextPaddingPx)
	case base.MaskStride < 1:
		return controller.Settings{}, fmt.Errorf("%w: mask stride %d", ErrInvalidScene, base.MaskStride)
	case base.MaxPasses < 1 || base.MaxPasses > solver.MaxEnforcePasses:
		return controller.Settings{}, fmt.Errorf("%w: max passes %d is outside 1..%d", ErrInvalidScene, base.MaxPasses, solver.MaxEnforcePasses)
	}
	return base, nil
}

// Silhouette builds the background footprint. A mask that cannot be decoded is
// dropped and the image rect is treated as solid; ok is false in that case.
// Masks larger than settings.MaxMaskDimension are downsampled.
func (s Scene) Silhouette(settings controller.Settings) (sil solver.Silhouette, ok bool) {
	sil = solver.Silhouette{Rect: s.Image, Stride: settings.MaskStride}
	if s.Mask == nil {
		return sil, true
	}
	m, err := mask.Decode(*s.Mask)
	if err != nil {
		return sil, false
	}
	sil.Mask = m.Fit(settings.MaxMaskDimension)
	return sil, true
}

// Constraints returns the constraints for the query box.
func (s Scene) Constraints(settings controller.Settings, sil solver.Silhouette) solver.Constraints {
	return solver.Constraints{
		Allowed:    s.Allowed,
		Silhouette: sil,
		Obstacles:  s.Obstacles,
		Padding:    settings.TextPaddingPx,
	}
}

// EnforceOptions returns the enforcer options for the scene's items.
func (s Scene) EnforceOptions(settings controller.Settings, sil solver.Silhouette) solver.EnforceOptions {
	return solver.EnforceOptions{
		Allowed:       s.Allowed,
		Silhouette:    sil,
		Search:        settings.Search,
		TextPaddingPx: settings.TextPaddingPx,
		MaxPasses:     settings.MaxPasses,
	}
}

// SolverItems converts the scene's items in order.
func (s Scene) SolverItems() []solver.Item {
	out := make([]solver.Item, len(s.Items))
	for i, it := range s.Items {
		out[i] = solver.Item{ID: it.ID, Rect: it.Rect, Editing: it.Editing}
	}
	return out
}

// Nearest runs the single-box search for the scene's query.
func (s Scene) Nearest(base controller.Settings) (solver.Placement, bool, error) {
	if err := s.ValidateQuery(); err != nil {
		return solver.Placement{}, false, err
	}
	settings, err := s.Settings(base)
	if err != nil {
		return solver.Placement{}, false, err
	}
	sil, maskOK := s.Silhouette(settings)
	q := s.Query
	p := solver.Search(q.Start, q.Width, q.Height, s.Constraints(settings, sil), settings.Search)
	return p, maskOK, nil
}

// Enforce runs the sequential enforcer over the scene's items.
func (s Scene) Enforce(base controller.Settings) (solver.Report, bool, error) {
	if err := s.ValidateItems(); err != nil {
		return solver.Report{}, false, err
	}
	settings, err := s.Settings(base)
	if err != nil {
		return solver.Report{}, false, err
	}
	sil, maskOK := s.Silhouette(settings)
	return solver.Enforce(s.SolverItems(), s.EnforceOptions(settings, sil)), maskOK, nil
}
