package geometry

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/document-viewer/internal/models"
)

var (
	regionTint = color.NRGBA{R: 37, G: 99, B: 235, A: 255}
	activeTint = color.NRGBA{R: 245, G: 158, B: 11, A: 255}
)

const (
	regionOpacity = 0.12
	activeOpacity = 0.35
)

// DrawHighlights composites translucent region boxes onto the surface's page
// raster. The region matching activeID is drawn last, in the active tint.
// It returns nil when the surface holds no raster.
func DrawHighlights(surface models.RenderSurface, regions []models.OverlayRegion, activeID string) *image.NRGBA {
	if surface.Image == nil {
		return nil
	}
	dst := imaging.Clone(surface.Image)
	var active []image.Rectangle
	for _, r := range regions {
		rect := ToBacking(r, surface)
		if rect.Empty() {
			continue
		}
		if activeID != "" && r.ChunkID == activeID {
			active = append(active, rect)
			continue
		}
		dst = tint(dst, rect, regionTint, regionOpacity)
	}
	for _, rect := range active {
		dst = tint(dst, rect, activeTint, activeOpacity)
	}
	return dst
}

func tint(dst *image.NRGBA, rect image.Rectangle, c color.NRGBA, opacity float64) *image.NRGBA {
	patch := imaging.New(rect.Dx(), rect.Dy(), c)
	return imaging.Overlay(dst, patch, rect.Min, opacity)
}
