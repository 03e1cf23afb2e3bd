// Package geometry places chunk bounding boxes onto rendered page surfaces.
package geometry

import (
	"image"
	"math"

	"github.com/feichai0017/document-viewer/internal/models"
)

// PlaceOverlay converts the boxes of every chunk shown on pageIndex into
// logical pixel regions on surface. Chunks without a page are placed on every
// page. Degenerate boxes are placed too. Region order follows chunk order.
func PlaceOverlay(chunks []models.Chunk, surface models.RenderSurface, pageIndex int) []models.OverlayRegion {
	regions := make([]models.OverlayRegion, 0, len(chunks))
	for _, chunk := range chunks {
		if !chunk.OnPage(pageIndex) {
			continue
		}
		regions = append(regions, place(chunk, surface.Width, surface.Height, pageIndex))
	}
	return regions
}

// PlaceAll places every surface in order and returns the regions per page.
func PlaceAll(chunks []models.Chunk, surfaces []models.RenderSurface) map[int][]models.OverlayRegion {
	out := make(map[int][]models.OverlayRegion, len(surfaces))
	for _, s := range surfaces {
		out[s.PageIndex] = PlaceOverlay(chunks, s, s.PageIndex)
	}
	return out
}

func place(chunk models.Chunk, width, height float64, pageIndex int) models.OverlayRegion {
	left, right := normalize(chunk.Box.Left, width), normalize(chunk.Box.Right, width)
	top, bottom := normalize(chunk.Box.Top, height), normalize(chunk.Box.Bottom, height)
	if right < left {
		left, right = right, left
	}
	if bottom < top {
		top, bottom = bottom, top
	}
	return models.OverlayRegion{
		ChunkID:   chunk.ID,
		PageIndex: pageIndex,
		Left:      left,
		Top:       top,
		Width:     right - left,
		Height:    bottom - top,
	}
}

// normalize maps a [0,1] fraction onto a pixel extent.
func normalize(fraction, extent float64) float64 {
	if math.IsNaN(fraction) {
		return 0
	}
	return math.Max(0, math.Min(1, fraction)) * extent
}

// HitTest returns the smallest region containing the logical point. Nested
// regions (a table inside a text block) resolve to the innermost one.
func HitTest(regions []models.OverlayRegion, x, y float64) (models.OverlayRegion, bool) {
	var (
		best  models.OverlayRegion
		found bool
	)
	for _, r := range regions {
		if !r.Contains(x, y) {
			continue
		}
		if !found || r.Width*r.Height < best.Width*best.Height {
			best, found = r, true
		}
	}
	return best, found
}

// ToBacking converts a logical region to device pixels on the surface's
// backing raster. The result is clipped to the raster bounds.
func ToBacking(region models.OverlayRegion, surface models.RenderSurface) image.Rectangle {
	sx, sy := 1.0, 1.0
	if surface.Width > 0 {
		sx = float64(surface.BackingWidth) / surface.Width
	}
	if surface.Height > 0 {
		sy = float64(surface.BackingHeight) / surface.Height
	}
	rect := image.Rect(
		int(math.Floor(region.Left*sx)),
		int(math.Floor(region.Top*sy)),
		int(math.Ceil(region.Right()*sx)),
		int(math.Ceil(region.Bottom()*sy)),
	)
	return rect.Intersect(image.Rect(0, 0, surface.BackingWidth, surface.BackingHeight))
}
