package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/mask"
)

// ImageObject is the foreground image text must avoid.
type ImageObject struct {
	Rect geom.Rect
	// Mask is the alpha silhouette scaled to Rect. Nil means the whole rect is opaque.
	Mask *mask.Mask
}

// Canvas mirrors one slide of the editor.
type Canvas struct {
	ID             string
	Content        geom.Rect
	ContentPadding float64
	Image          *ImageObject
	Items          []*TextItem
	Locked         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewCanvas creates a Canvas with a fresh ID.
func NewCanvas(content geom.Rect, padding float64) *Canvas {
	now := time.Now()
	return &Canvas{
		ID:             uuid.New().String(),
		Content:        content,
		ContentPadding: padding,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Allowed returns the region text items must stay inside.
func (c *Canvas) Allowed() geom.Rect {
	return c.Content.Inset(c.ContentPadding)
}

// Item looks up an item by ID.
func (c *Canvas) Item(id string) (*TextItem, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// UpsertItem replaces the geometry of an existing item or appends a new idle one.
// List order is the enforcement order and is preserved on update.
func (c *Canvas) UpsertItem(id string, rect geom.Rect, maxWidth float64) *TextItem {
	c.touch()
	if it, ok := c.Item(id); ok {
		it.Rect = rect
		it.MaxWidth = rect.Width
		if maxWidth > 0 {
			it.MaxWidth = maxWidth
		}
		return it
	}

	it := NewTextItem(id, rect)
	if maxWidth > 0 {
		it.MaxWidth = maxWidth
	}
	c.Items = append(c.Items, it)
	return it
}

// RemoveItem deletes an item. It returns false if the item does not exist.
func (c *Canvas) RemoveItem(id string) bool {
	for i, it := range c.Items {
		if it.ID == id {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.touch()
			return true
		}
	}
	return false
}

// SetImage replaces the image object wholesale. A nil image clears it.
func (c *Canvas) SetImage(img *ImageObject) {
	c.Image = img
	c.touch()
}

// ImageRect returns the image rect, or an empty rect when there is no image.
func (c *Canvas) ImageRect() geom.Rect {
	if c.Image == nil {
		return geom.Rect{}
	}
	return c.Image.Rect
}

// ImageMask returns the image mask if one is set.
func (c *Canvas) ImageMask() *mask.Mask {
	if c.Image == nil {
		return nil
	}
	return c.Image.Mask
}

// Others returns the rects of every item except id, in list order.
func (c *Canvas) Others(id string) []geom.Rect {
	out := make([]geom.Rect, 0, len(c.Items))
	for _, it := range c.Items {
		if it.ID != id {
			out = append(out, it.Rect)
		}
	}
	return out
}

// Snapshot returns a deep copy of the canvas for read-only use outside the session lock.
func (c *Canvas) Snapshot() *Canvas {
	cp := *c
	if c.Image != nil {
		img := *c.Image
		cp.Image = &img
	}
	cp.Items = make([]*TextItem, len(c.Items))
	for i, it := range c.Items {
		item := *it
		item.Violations = append([]string(nil), it.Violations...)
		cp.Items[i] = &item
	}
	return &cp
}

func (c *Canvas) touch() {
	c.UpdatedAt = time.Now()
}
