package models

import (
	"image"
)

// BoundingBox holds normalized fractions of the page, each in [0,1].
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

func (b BoundingBox) Width() float64  { return b.Right - b.Left }
func (b BoundingBox) Height() float64 { return b.Bottom - b.Top }

// IsDegenerate reports a box with zero width or height.
func (b BoundingBox) IsDegenerate() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// RenderSurface is one rendered page. Width and Height are logical (layout)
// pixels; the backing raster is scaled by DevicePixelRatio.
type RenderSurface struct {
	DocumentID       string      `json:"documentId"`
	PageIndex        int         `json:"pageIndex"`
	Width            float64     `json:"width"`
	Height           float64     `json:"height"`
	OffsetY          float64     `json:"offsetY"`
	BackingWidth     int         `json:"backingWidth"`
	BackingHeight    int         `json:"backingHeight"`
	Scale            float64     `json:"scale"`
	DevicePixelRatio float64     `json:"devicePixelRatio"`
	Image            image.Image `json:"-"`
}

// OverlayRegion is a chunk's box placed on one rendered page, in logical pixels.
type OverlayRegion struct {
	ChunkID   string  `json:"chunkId"`
	PageIndex int     `json:"pageIndex"`
	Left      float64 `json:"left"`
	Top       float64 `json:"top"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

func (r OverlayRegion) Right() float64  { return r.Left + r.Width }
func (r OverlayRegion) Bottom() float64 { return r.Top + r.Height }

// Contains reports whether the logical point lies inside the region, edges included.
func (r OverlayRegion) Contains(x, y float64) bool {
	return x >= r.Left && x <= r.Right() && y >= r.Top && y <= r.Bottom()
}
