package geometry

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-viewer/internal/models"
)

func surface(page int, width, height, dpr float64) models.RenderSurface {
	return models.RenderSurface{
		PageIndex:        page,
		Width:            width,
		Height:           height,
		BackingWidth:     int(width * dpr),
		BackingHeight:    int(height * dpr),
		DevicePixelRatio: dpr,
	}
}

func TestPlaceOverlay_FiltersByPage(t *testing.T) {
	chunks := []models.Chunk{
		{ID: "t1", Kind: models.KindTable, Page: models.PageOf(0), Box: models.BoundingBox{Left: 0.1, Top: 0.1, Right: 0.9, Bottom: 0.3}},
		{ID: "x1", Kind: models.KindText, Page: models.PageOf(1), Box: models.BoundingBox{Left: 0, Top: 0, Right: 1, Bottom: 1}},
		{ID: "m1", Kind: models.KindMarginalia, Box: models.BoundingBox{Left: 0.9, Top: 0, Right: 1, Bottom: 0.05}},
	}

	page0 := PlaceOverlay(chunks, surface(0, 800, 1000, 1), 0)
	page1 := PlaceOverlay(chunks, surface(1, 800, 1000, 1), 1)

	ids := func(rs []models.OverlayRegion) []string {
		out := make([]string, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.ChunkID)
		}
		return out
	}
	assert.Equal(t, []string{"t1", "m1"}, ids(page0))
	assert.Equal(t, []string{"x1", "m1"}, ids(page1))
}

func TestPlaceOverlay_Coordinates(t *testing.T) {
	chunks := []models.Chunk{
		{ID: "t1", Page: models.PageOf(0), Box: models.BoundingBox{Left: 0.1, Top: 0.1, Right: 0.9, Bottom: 0.3}},
	}
	regions := PlaceOverlay(chunks, surface(0, 800, 1000, 2), 0)
	require.Len(t, regions, 1)

	r := regions[0]
	assert.InDelta(t, 80, r.Left, 1e-9)
	assert.InDelta(t, 100, r.Top, 1e-9)
	assert.InDelta(t, 640, r.Width, 1e-9)
	assert.InDelta(t, 200, r.Height, 1e-9)
}

func TestPlaceOverlay_OrderedEdgesAcrossScales(t *testing.T) {
	boxes := []models.BoundingBox{
		{Left: 0, Top: 0, Right: 1, Bottom: 1},
		{Left: 0.333, Top: 0.127, Right: 0.334, Bottom: 0.9},
		{Left: 0.5, Top: 0.5, Right: 0.5, Bottom: 0.5},
		{Left: 0.7, Top: 0.2, Right: 0.3, Bottom: 0.1},
	}
	for _, dpr := range []float64{1, 1.25, 1.5, 2, 3} {
		for _, width := range []float64{317, 612.5, 1024} {
			s := surface(0, width, width*1.294, dpr)
			for _, box := range boxes {
				regions := PlaceOverlay([]models.Chunk{{ID: "c", Page: models.PageOf(0), Box: box}}, s, 0)
				require.Len(t, regions, 1)
				r := regions[0]
				assert.LessOrEqual(t, r.Left, r.Right())
				assert.LessOrEqual(t, r.Top, r.Bottom())

				rect := ToBacking(r, s)
				assert.LessOrEqual(t, rect.Min.X, rect.Max.X)
				assert.LessOrEqual(t, rect.Min.Y, rect.Max.Y)
			}
		}
	}
}

func TestPlaceOverlay_DegenerateStillPlaced(t *testing.T) {
	chunks := []models.Chunk{{ID: "d", Page: models.PageOf(0), Box: models.BoundingBox{Left: 0.5, Top: 0.2, Right: 0.5, Bottom: 0.4}}}
	regions := PlaceOverlay(chunks, surface(0, 100, 100, 1), 0)
	require.Len(t, regions, 1)
	assert.Zero(t, regions[0].Width)
	assert.True(t, regions[0].Contains(50, 30))
}

func TestHitTest_Innermost(t *testing.T) {
	regions := []models.OverlayRegion{
		{ChunkID: "outer", Left: 0, Top: 0, Width: 100, Height: 100},
		{ChunkID: "inner", Left: 10, Top: 10, Width: 20, Height: 20},
	}
	r, ok := HitTest(regions, 15, 15)
	require.True(t, ok)
	assert.Equal(t, "inner", r.ChunkID)

	r, ok = HitTest(regions, 50, 50)
	require.True(t, ok)
	assert.Equal(t, "outer", r.ChunkID)

	_, ok = HitTest(regions, 150, 50)
	assert.False(t, ok)
}

func TestDrawHighlights(t *testing.T) {
	s := surface(0, 50, 50, 2)
	s.Image = imaging.New(100, 100, color.White)
	regions := []models.OverlayRegion{
		{ChunkID: "a", Left: 0, Top: 0, Width: 10, Height: 10},
		{ChunkID: "b", Left: 25, Top: 25, Width: 10, Height: 10},
	}

	out := DrawHighlights(s, regions, "b")
	require.NotNil(t, out)
	assert.Equal(t, image.Rect(0, 0, 100, 100), out.Bounds())

	untouched := out.NRGBAAt(99, 0)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, untouched)
	assert.NotEqual(t, untouched, out.NRGBAAt(5, 5))
	assert.NotEqual(t, out.NRGBAAt(5, 5), out.NRGBAAt(60, 60))

	s.Image = nil
	assert.Nil(t, DrawHighlights(s, regions, ""))
}
