// Package controller drives interactive text placement on a single canvas.
//
// A Controller is not safe for concurrent use. The session store serializes
// every call for a canvas.
package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/logging"
	"github.com/kyiku/slide-textguard-back/internal/mask"
	"github.com/kyiku/slide-textguard-back/internal/model"
	"github.com/kyiku/slide-textguard-back/internal/solver"
)

var (
	// ErrItemNotFound is returned when an operation names an unknown item.
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidSize is returned when a resize asks for a non-positive size.
	ErrInvalidSize = errors.New("invalid item size")
)

// Skip reasons reported by Reflow.
const (
	SkipReasonLocked = "locked"
	SkipReasonCommit = "commit"
)

// Persister receives item placements whenever a move is accepted.
type Persister interface {
	SaveItem(ctx context.Context, canvasID string, p model.ItemPlacement) error
}

// Settings tunes the solver for one canvas.
type Settings struct {
	Search        solver.SearchOptions
	TextPaddingPx float64
	MaskStride    int
	MaxPasses     int
	PushOut       solver.PushOutPolicy
	// MaxMaskDimension bounds the mask kept for a background. Zero keeps masks as given.
	MaxMaskDimension int
}

// DefaultSettings returns the solver defaults.
func DefaultSettings() Settings {
	return Settings{
		Search: solver.SearchOptions{
			StepPx:      solver.DefaultStepPx,
			MaxRadiusPx: solver.DefaultMaxRadiusPx,
		},
		TextPaddingPx:    solver.DefaultTextPaddingPx,
		MaskStride:       solver.DefaultMaskStride,
		MaxPasses:        1,
		PushOut:          solver.DefaultPushOutPolicy,
		MaxMaskDimension: mask.DefaultMaxDimension,
	}
}

// SkipToken is returned by a commit. Passing it to the next Reflow makes that
// reflow a no-op so the committed position is not immediately overridden.
type SkipToken struct {
	itemID string
}

// Armed reports whether the token suppresses a reflow.
func (t SkipToken) Armed() bool {
	return t.itemID != ""
}

// ItemID returns the committed item the token was issued for.
func (t SkipToken) ItemID() string {
	return t.itemID
}

// ItemUpdate is the visible state of one item after an operation.
type ItemUpdate struct {
	ID         string          `json:"id"`
	Rect       geom.Rect       `json:"rect"`
	MaxWidth   float64         `json:"maxWidth"`
	State      model.ItemState `json:"state"`
	Invalid    bool            `json:"invalid"`
	Violations []string        `json:"violations"`
	PushedOut  string          `json:"pushed_out,omitempty"`
}

// ReflowResult is the outcome of a global enforcement request.
type ReflowResult struct {
	Skipped     bool                `json:"skipped"`
	Reason      string              `json:"reason,omitempty"`
	Passes      int                 `json:"passes"`
	Corrections []solver.Correction `json:"corrections"`
	Items       []ItemUpdate        `json:"items"`
}

// Controller applies pointer, edit and layout events to a canvas.
type Controller struct {
	canvas    *model.Canvas
	settings  Settings
	persister Persister
	logger    *log.Logger
}

// New creates a Controller. persister may be nil.
func New(canvas *model.Canvas, settings Settings, persister Persister, logger *log.Logger) *Controller {
	return &Controller{
		canvas:    canvas,
		settings:  settings,
		persister: persister,
		logger:    logging.OrDefault(logger).With("canvas", canvas.ID),
	}
}

// Canvas returns the controlled canvas.
func (c *Controller) Canvas() *model.Canvas {
	return c.canvas
}

// Settings returns the solver settings.
func (c *Controller) Settings() Settings {
	return c.settings
}

// Items returns the state of every item in list order.
func (c *Controller) Items() []ItemUpdate {
	out := make([]ItemUpdate, len(c.canvas.Items))
	for i, it := range c.canvas.Items {
		out[i] = updateOf(it)
	}
	return out
}

// Item returns the state of one item.
func (c *Controller) Item(id string) (ItemUpdate, error) {
	it, err := c.item(id)
	if err != nil {
		return ItemUpdate{}, err
	}
	return updateOf(it), nil
}

// UpsertItem adds or replaces an item and re-checks it. Nothing is moved.
func (c *Controller) UpsertItem(id string, rect geom.Rect, maxWidth float64) (ItemUpdate, error) {
	if rect.Width <= 0 || rect.Height <= 0 {
		return ItemUpdate{}, fmt.Errorf("%w: %vx%v", ErrInvalidSize, rect.Width, rect.Height)
	}
	it := c.canvas.UpsertItem(id, rect, maxWidth)
	c.refresh()
	return updateOf(it), nil
}

// RemoveItem deletes an item and re-checks the rest.
func (c *Controller) RemoveItem(id string) error {
	if !c.canvas.RemoveItem(id) {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	c.refresh()
	return nil
}

// BeginDrag marks an idle item as dragged.
func (c *Controller) BeginDrag(id string) error {
	it, err := c.item(id)
	if err != nil {
		return err
	}
	return it.TransitionTo(model.StateDragging)
}

// DragTo moves a dragged item to p.
//
// The position is clamped into the allowed rect. With an image mask the item is
// only flagged when it overlaps the silhouette. Without one it is pushed out of
// the image rect right away, unless the layout is locked.
func (c *Controller) DragTo(id string, p geom.Point) (ItemUpdate, error) {
	it, err := c.item(id)
	if err != nil {
		return ItemUpdate{}, err
	}
	if it.State != model.StateDragging {
		return ItemUpdate{}, fmt.Errorf("%w: %s is %s", model.ErrInvalidTransition, id, it.State)
	}
	side := c.place(it, p)
	u := updateOf(it)
	u.PushedOut = side
	return u, nil
}

// Resize changes an item's box, keeping its top-left corner subject to the same
// rules as a drag. The new width becomes the item's max width.
//
// Resizing a dragged or edited item is live, like DragTo, and returns an unarmed
// token. Resizing an idle item is a commit of its own: it is snapped like a
// release and the returned token must be passed to the next Reflow.
func (c *Controller) Resize(ctx context.Context, id string, width, height float64) (ItemUpdate, SkipToken, error) {
	if !(width > 0) || !(height > 0) {
		return ItemUpdate{}, SkipToken{}, fmt.Errorf("%w: %vx%v", ErrInvalidSize, width, height)
	}
	it, err := c.item(id)
	if err != nil {
		return ItemUpdate{}, SkipToken{}, err
	}
	it.Rect.Width = width
	it.Rect.Height = height
	it.MaxWidth = width
	side := c.place(it, it.Rect.TopLeft())

	if it.Held() {
		u := updateOf(it)
		u.PushedOut = side
		return u, SkipToken{}, nil
	}
	u, token := c.commit(ctx, it)
	u.PushedOut = side
	return u, token, nil
}

// Release ends a drag. An invalid item is snapped to the nearest valid position
// with a single search. The returned token must be passed to the next Reflow.
func (c *Controller) Release(ctx context.Context, id string) (ItemUpdate, SkipToken, error) {
	it, err := c.item(id)
	if err != nil {
		return ItemUpdate{}, SkipToken{}, err
	}
	if err := it.TransitionTo(model.StateIdle); err != nil {
		return ItemUpdate{}, SkipToken{}, err
	}
	u, token := c.commit(ctx, it)
	return u, token, nil
}

// commit snaps an invalid idle item with a single search, persists it and
// issues the skip token for the next Reflow.
func (c *Controller) commit(ctx context.Context, it *model.TextItem) (ItemUpdate, SkipToken) {
	c.check(it)
	if it.Invalid && !c.canvas.Locked {
		cons := c.constraintsFor(it.ID)
		p := solver.Search(it.Rect.TopLeft(), it.Rect.Width, it.Rect.Height, cons, c.settings.Search)
		if p.Found() {
			it.Rect = it.Rect.MoveTo(p.TopLeft)
		} else {
			c.logger.Debug("no valid position on commit", "item", it.ID, "status", p.Status)
		}
		c.check(it)
	}

	c.persist(ctx, it)
	return updateOf(it), SkipToken{itemID: it.ID}
}

// BeginEditing marks an idle item as receiving text input.
func (c *Controller) BeginEditing(id string) error {
	it, err := c.item(id)
	if err != nil {
		return err
	}
	return it.TransitionTo(model.StateEditing)
}

// EndEditing returns an edited item to idle and re-checks it.
func (c *Controller) EndEditing(id string) (ItemUpdate, error) {
	it, err := c.item(id)
	if err != nil {
		return ItemUpdate{}, err
	}
	if err := it.TransitionTo(model.StateIdle); err != nil {
		return ItemUpdate{}, err
	}
	c.check(it)
	return updateOf(it), nil
}

// Reflow runs the sequential enforcer over every item.
// It does nothing while the layout is locked or when token is armed.
func (c *Controller) Reflow(ctx context.Context, token SkipToken) ReflowResult {
	switch {
	case c.canvas.Locked:
		c.refresh()
		return c.skipped(SkipReasonLocked)
	case token.Armed():
		c.logger.Debug("reflow skipped after commit", "item", token.ItemID())
		c.refresh()
		return c.skipped(SkipReasonCommit)
	}
	return c.enforce(ctx)
}

// Realign runs the enforcer even while the layout is locked.
func (c *Controller) Realign(ctx context.Context) ReflowResult {
	return c.enforce(ctx)
}

// SetBackground replaces the image object and reflows.
// An empty rect removes the image. A malformed mask is dropped and the image
// rect is treated as fully opaque.
func (c *Controller) SetBackground(ctx context.Context, rect geom.Rect, m *mask.Mask) ReflowResult {
	if rect.Empty() {
		c.canvas.SetImage(nil)
		return c.Reflow(ctx, SkipToken{})
	}
	if m != nil && !m.Valid() {
		c.logger.Warn("dropping malformed mask", "width", m.Width, "height", m.Height, "bytes", len(m.Data))
		m = nil
	}
	if m != nil {
		m = m.Fit(c.settings.MaxMaskDimension)
	}
	c.canvas.SetImage(&model.ImageObject{Rect: rect, Mask: m})
	return c.Reflow(ctx, SkipToken{})
}

// SetLocked turns layout lock on or off. Locking stops every automatic move;
// drags are still clamped into the allowed rect.
func (c *Controller) SetLocked(locked bool) {
	c.canvas.Locked = locked
}

func (c *Controller) enforce(ctx context.Context) ReflowResult {
	items := make([]solver.Item, len(c.canvas.Items))
	for i, it := range c.canvas.Items {
		items[i] = solver.Item{ID: it.ID, Rect: it.Rect, Editing: it.Held()}
	}

	report := solver.Enforce(items, solver.EnforceOptions{
		Allowed:       c.canvas.Allowed(),
		Silhouette:    c.silhouette(),
		Search:        c.settings.Search,
		TextPaddingPx: c.settings.TextPaddingPx,
		MaxPasses:     c.settings.MaxPasses,
	})

	for i, it := range c.canvas.Items {
		if !it.Held() {
			it.Rect = report.Layout[i]
		}
	}
	c.refresh()

	for _, corr := range report.Corrections {
		if !corr.Moved {
			continue
		}
		if it, ok := c.canvas.Item(corr.ID); ok {
			c.persist(ctx, it)
		}
	}

	if len(report.Corrections) > 0 {
		c.logger.Info("layout corrected", "corrections", len(report.Corrections), "passes", report.Passes)
	}

	return ReflowResult{
		Passes:      report.Passes,
		Corrections: report.Corrections,
		Items:       c.Items(),
	}
}

func (c *Controller) skipped(reason string) ReflowResult {
	return ReflowResult{Skipped: true, Reason: reason, Items: c.Items()}
}

// place clamps p into the allowed rect, applies push-out and re-checks the item.
// It returns the push-out side, or "" when none was applied.
func (c *Controller) place(it *model.TextItem, p geom.Point) string {
	allowed := c.canvas.Allowed()
	if !allowed.Empty() {
		p = allowed.ClampTopLeft(p, it.Rect.Width, it.Rect.Height)
	}
	it.Rect = it.Rect.MoveTo(p)

	side := ""
	sil := c.silhouette()
	if !c.canvas.Locked && !sil.HasMask() && sil.Blocks(it.Rect) {
		q, s := solver.PushOut(it.Rect, sil.Rect, allowed, c.settings.PushOut)
		it.Rect = it.Rect.MoveTo(q)
		side = s.String()
	}
	c.check(it)
	return side
}

func (c *Controller) silhouette() solver.Silhouette {
	return solver.Silhouette{
		Rect:   c.canvas.ImageRect(),
		Mask:   c.canvas.ImageMask(),
		Stride: c.settings.MaskStride,
	}
}

func (c *Controller) constraintsFor(id string) solver.Constraints {
	return solver.Constraints{
		Allowed:    c.canvas.Allowed(),
		Silhouette: c.silhouette(),
		Obstacles:  c.canvas.Others(id),
		Padding:    c.settings.TextPaddingPx,
	}
}

func (c *Controller) check(it *model.TextItem) {
	v := c.constraintsFor(it.ID).Check(it.Rect)
	it.Invalid = v != 0
	it.Violations = v.Strings()
}

func (c *Controller) refresh() {
	for _, it := range c.canvas.Items {
		c.check(it)
	}
}

func (c *Controller) persist(ctx context.Context, it *model.TextItem) {
	if c.persister == nil {
		return
	}
	if err := c.persister.SaveItem(ctx, c.canvas.ID, it.Placement()); err != nil {
		c.logger.Warn("failed to persist placement", "item", it.ID, "err", err)
	}
}

func (c *Controller) item(id string) (*model.TextItem, error) {
	it, ok := c.canvas.Item(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return it, nil
}

func updateOf(it *model.TextItem) ItemUpdate {
	return ItemUpdate{
		ID:         it.ID,
		Rect:       it.Rect,
		MaxWidth:   it.MaxWidth,
		State:      it.State,
		Invalid:    it.Invalid,
		Violations: it.Violations,
	}
}
