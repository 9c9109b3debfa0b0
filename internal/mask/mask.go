// Package mask provides the opacity bitmap describing a background photo's silhouette.
package mask

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// DefaultMaxDimension is the largest mask side kept by default. Bigger masks are
// downsampled with Fit.
const DefaultMaxDimension = 1024

// Errors returned while decoding a mask.
var (
	ErrInvalidDimensions = errors.New("mask dimensions must be positive")
	ErrSizeMismatch      = errors.New("mask data length does not match width*height")
)

// Mask is a row-major bitmap with one byte per pixel.
// Zero is walkable; any other value is solid.
type Mask struct {
	Width  int
	Height int
	Data   []byte
}

// Payload is the wire form produced by the background-removal service.
type Payload struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   string `json:"data"` // base64, one byte per pixel
}

// New wraps data as a Mask after checking that it matches the declared size.
func New(width, height int, data []byte) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d", ErrSizeMismatch, len(data), width, height)
	}
	return &Mask{Width: width, Height: height, Data: data}, nil
}

// Decode turns a base64 payload into a Mask.
func Decode(p Payload) (*Mask, error) {
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask data: %w", err)
	}
	return New(p.Width, p.Height, data)
}

// Encode returns the wire form of m.
func (m *Mask) Encode() Payload {
	return Payload{
		Width:  m.Width,
		Height: m.Height,
		Data:   base64.StdEncoding.EncodeToString(m.Data),
	}
}

// Valid reports whether m can be sampled. A nil mask is not valid.
func (m *Mask) Valid() bool {
	return m != nil && m.Width > 0 && m.Height > 0 && len(m.Data) == m.Width*m.Height
}

// At returns the raw byte at mask pixel (x, y). Out-of-range pixels read as 0.
func (m *Mask) At(x, y int) byte {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Data[y*m.Width+x]
}

// Solid reports whether mask pixel (x, y) is blocked.
func (m *Mask) Solid(x, y int) bool {
	return m.At(x, y) != 0
}

// Alpha exposes the mask as an *image.Alpha sharing the same backing bytes.
func (m *Mask) Alpha() *image.Alpha {
	return &image.Alpha{
		Pix:    m.Data,
		Stride: m.Width,
		Rect:   image.Rect(0, 0, m.Width, m.Height),
	}
}

// FromImage builds a mask from an image's alpha channel.
// Pixels whose alpha exceeds threshold become solid (255).
func FromImage(img image.Image, threshold uint8) *Mask {
	b := img.Bounds()
	m := &Mask{Width: b.Dx(), Height: b.Dy(), Data: make([]byte, b.Dx()*b.Dy())}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			a := color.AlphaModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Alpha).A
			if a > threshold {
				m.Data[y*m.Width+x] = 255
			}
		}
	}
	return m
}

// Fit downsamples m so that neither side exceeds maxDim, keeping the aspect ratio.
// Masks already within bounds are returned as is.
func (m *Mask) Fit(maxDim int) *Mask {
	if maxDim <= 0 || (m.Width <= maxDim && m.Height <= maxDim) {
		return m
	}
	w, h := m.Width, m.Height
	if w >= h {
		h = max(1, h*maxDim/w)
		w = maxDim
	} else {
		w = max(1, w*maxDim/h)
		h = maxDim
	}
	return m.Resample(w, h)
}

// Resample scales m to w×h with nearest-neighbour sampling so solid pixels stay binary.
func (m *Mask) Resample(w, h int) *Mask {
	dst := image.NewAlpha(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), m.Alpha(), m.Alpha().Bounds(), draw.Src, nil)
	return &Mask{Width: w, Height: h, Data: dst.Pix}
}
