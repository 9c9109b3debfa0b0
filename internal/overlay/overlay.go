// Package overlay draws a debug view of a canvas: the allowed region, the
// background silhouette and every text box, with invalid boxes highlighted.
package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"

	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/mask"
	"github.com/kyiku/slide-textguard-back/internal/model"
)

// DefaultMaxDimension is the largest overlay side in pixels, after scaling.
const DefaultMaxDimension = 8192

// Render errors.
var (
	ErrEmptyCanvas = errors.New("canvas has no area to draw")
	ErrTooLarge    = errors.New("canvas is too large to draw")
)

// Palette holds the overlay colors.
type Palette struct {
	Background colorful.Color
	Allowed    colorful.Color
	Image      colorful.Color
	Silhouette colorful.Color
	Valid      colorful.Color
	Invalid    colorful.Color
}

// DefaultPalette is used when a Renderer is created without one.
var DefaultPalette = Palette{
	Background: colorful.Color{R: 1, G: 1, B: 1},
	Allowed:    colorful.Color{R: 0.2, G: 0.4, B: 0.9},
	Image:      colorful.Color{R: 0.75, G: 0.75, B: 0.75},
	Silhouette: colorful.Color{R: 0.35, G: 0.35, B: 0.35},
	Valid:      colorful.Color{R: 0.15, G: 0.7, B: 0.35},
	Invalid:    colorful.Color{R: 0.9, G: 0.15, B: 0.15},
}

// Renderer draws canvases.
type Renderer struct {
	palette Palette
	scale   float64
	maxDim  int
}

// NewRenderer creates a Renderer. scale <= 0 means 1.
func NewRenderer(palette Palette, scale float64) *Renderer {
	if scale <= 0 {
		scale = 1
	}
	return &Renderer{palette: palette, scale: scale, maxDim: DefaultMaxDimension}
}

// WithMaxDimension sets the largest overlay side. n <= 0 keeps the default.
func (r *Renderer) WithMaxDimension(n int) *Renderer {
	if n > 0 {
		r.maxDim = n
	}
	return r
}

// WithinBounds reports whether drawing rect needs no side longer than maxDim
// pixels, measuring from the canvas origin as Render does.
func WithinBounds(rect geom.Rect, maxDim int) bool {
	limit := float64(maxDim)
	return rect.Width <= limit && rect.Height <= limit &&
		rect.Right() <= limit && rect.Bottom() <= limit
}

// stateColor returns the outline color for an item.
// Held items are drawn halfway between valid and invalid so they stand out while moving.
func (r *Renderer) stateColor(it *model.TextItem) colorful.Color {
	switch {
	case it.Invalid:
		return r.palette.Invalid
	case it.Held():
		return r.palette.Valid.BlendLab(r.palette.Invalid, 0.5).Clamped()
	}
	return r.palette.Valid
}

// Render draws c and returns the drawing context.
func (r *Renderer) Render(c *model.Canvas) (*gg.Context, error) {
	if c.Content.Empty() {
		return nil, ErrEmptyCanvas
	}
	limit := float64(r.maxDim) / r.scale
	if !WithinBounds(c.Content, int(limit)) {
		return nil, fmt.Errorf("%w: content %vx%v", ErrTooLarge, c.Content.Right(), c.Content.Bottom())
	}
	if img := c.Image; img != nil && !(img.Rect.Width <= limit && img.Rect.Height <= limit) {
		return nil, fmt.Errorf("%w: image %vx%v", ErrTooLarge, img.Rect.Width, img.Rect.Height)
	}
	w := int(math.Ceil(c.Content.Right() * r.scale))
	h := int(math.Ceil(c.Content.Bottom() * r.scale))
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyCanvas
	}

	dc := gg.NewContext(w, h)
	dc.Scale(r.scale, r.scale)
	setColor(dc, r.palette.Background, 1)
	dc.Clear()

	if img := c.Image; img != nil && !img.Rect.Empty() {
		setColor(dc, r.palette.Image, 0.35)
		drawRect(dc, img.Rect)
		dc.Fill()
		if img.Mask.Valid() {
			r.drawMask(dc, img.Rect, img.Mask)
		}
	}

	allowed := c.Allowed()
	if !allowed.Empty() {
		setColor(dc, r.palette.Allowed, 1)
		dc.SetLineWidth(1)
		dc.SetDash(6, 4)
		drawRect(dc, allowed)
		dc.Stroke()
		dc.SetDash()
	}

	dc.SetLineWidth(2)
	for _, it := range c.Items {
		col := r.stateColor(it)
		setColor(dc, col, 0.2)
		drawRect(dc, it.Rect)
		dc.Fill()
		setColor(dc, col, 1)
		drawRect(dc, it.Rect)
		dc.Stroke()
	}

	return dc, nil
}

// PNG renders c and encodes it as PNG.
func (r *Renderer) PNG(c *model.Canvas) ([]byte, error) {
	dc, err := r.Render(c)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// drawMask tints the mask's solid pixels and stretches them over the image rect.
func (r *Renderer) drawMask(dc *gg.Context, rect geom.Rect, m *mask.Mask) {
	dst := image.Rect(0, 0, int(math.Round(rect.Width*r.scale)), int(math.Round(rect.Height*r.scale)))
	if dst.Empty() {
		return
	}
	scaled := image.NewAlpha(dst)
	draw.NearestNeighbor.Scale(scaled, dst, m.Alpha(), m.Alpha().Bounds(), draw.Src, nil)

	tinted := image.NewNRGBA(dst)
	draw.DrawMask(tinted, dst, image.NewUniform(r.palette.Silhouette), image.Point{}, scaled, image.Point{}, draw.Over)

	// The context is scaled; draw the pre-scaled tint in device space.
	dc.Push()
	dc.Identity()
	dc.DrawImage(tinted, int(math.Round(rect.X*r.scale)), int(math.Round(rect.Y*r.scale)))
	dc.Pop()
}

func drawRect(dc *gg.Context, rect geom.Rect) {
	dc.DrawRectangle(rect.X, rect.Y, rect.Width, rect.Height)
}

func setColor(dc *gg.Context, c colorful.Color, alpha float64) {
	dc.SetRGBA(c.R, c.G, c.B, alpha)
}
