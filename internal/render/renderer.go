// Package render turns document sources into stacked page surfaces sized to
// a container width and device pixel ratio.
package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

// Source is the raw file behind a document.
type Source struct {
	DocumentID string
	Data       []byte
}

// Fingerprint identifies the bytes so a replaced file is re-rendered.
func (s Source) Fingerprint() string {
	sum := sha256.Sum256(s.Data)
	return hex.EncodeToString(sum[:8])
}

type renderKey struct {
	fingerprint string
	width       float64
	dpr         float64
}

type renderResult struct {
	key      renderKey
	surfaces []models.RenderSurface
}

// Renderer produces one RenderSurface per page. Calls are serialized, and a
// repeated call with identical inputs returns the previous surfaces.
type Renderer struct {
	mu      sync.Mutex
	decoder Decoder
	logger  logger.Logger
	last    map[string]*renderResult
	failed  map[string]*models.DecodeError
}

func NewRenderer(decoder Decoder, log logger.Logger) *Renderer {
	if decoder == nil {
		decoder = NewSniffDecoder()
	}
	return &Renderer{
		decoder: decoder,
		logger:  log.Named("renderer"),
		last:    make(map[string]*renderResult),
		failed:  make(map[string]*models.DecodeError),
	}
}

// Render decodes src and rasterizes every page at containerWidth. Scale is
// containerWidth / native page width; the backing raster is further
// multiplied by dpr. A decode failure is terminal for the document: the same
// *models.DecodeError is returned until Forget is called.
func (r *Renderer) Render(ctx context.Context, src Source, containerWidth, dpr float64) ([]models.RenderSurface, error) {
	if containerWidth <= 0 || math.IsNaN(containerWidth) || math.IsInf(containerWidth, 0) {
		return nil, fmt.Errorf("invalid container width %v", containerWidth)
	}
	if dpr <= 0 || math.IsNaN(dpr) || math.IsInf(dpr, 0) {
		dpr = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if derr, ok := r.failed[src.DocumentID]; ok {
		return nil, derr
	}

	key := renderKey{fingerprint: src.Fingerprint(), width: containerWidth, dpr: dpr}
	if prev, ok := r.last[src.DocumentID]; ok && prev.key == key {
		return cloneSurfaces(prev.surfaces), nil
	}

	source, err := r.decoder.Decode(src.Data)
	if err != nil {
		return nil, r.fail(src.DocumentID, err)
	}
	defer source.Close()

	surfaces := make([]models.RenderSurface, 0, source.PageCount())
	offset := 0.0
	for i := 0; i < source.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		surface, err := renderPage(source, i, containerWidth, dpr)
		if err != nil {
			return nil, r.fail(src.DocumentID, err)
		}
		surface.DocumentID = src.DocumentID
		surface.OffsetY = offset
		offset += surface.Height
		surfaces = append(surfaces, surface)
	}

	r.last[src.DocumentID] = &renderResult{key: key, surfaces: surfaces}
	r.logger.Debug("Rendered document",
		logger.DocumentID(src.DocumentID),
		logger.Int("pages", len(surfaces)),
		logger.Float64("width", containerWidth),
		logger.Float64("dpr", dpr),
	)
	return cloneSurfaces(surfaces), nil
}

func renderPage(source PageSource, index int, containerWidth, dpr float64) (models.RenderSurface, error) {
	nativeW, nativeH, err := source.PageSize(index)
	if err != nil {
		return models.RenderSurface{}, err
	}
	if nativeW <= 0 || nativeH <= 0 {
		return models.RenderSurface{}, fmt.Errorf("page %d has empty bounds", index)
	}

	scale := containerWidth / nativeW
	height := nativeH * scale
	backingW := int(math.Max(1, math.Round(containerWidth*dpr)))
	backingH := int(math.Max(1, math.Round(height*dpr)))

	img, err := source.RenderPage(index, scale*dpr)
	if err != nil {
		return models.RenderSurface{}, err
	}
	if b := img.Bounds(); b.Dx() != backingW || b.Dy() != backingH {
		img = imaging.Resize(img, backingW, backingH, imaging.Linear)
	}

	return models.RenderSurface{
		PageIndex:        index,
		Width:            containerWidth,
		Height:           height,
		BackingWidth:     backingW,
		BackingHeight:    backingH,
		Scale:            scale,
		DevicePixelRatio: dpr,
		Image:            img,
	}, nil
}

// Fail records a decode failure found outside Render, such as a source file
// rejected before decoding. Render returns it until Forget is called.
func (r *Renderer) Fail(documentID string, err error) *models.DecodeError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fail(documentID, err)
}

// Failure returns the recorded decode failure for a document, if any.
func (r *Renderer) Failure(documentID string) (*models.DecodeError, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	derr, ok := r.failed[documentID]
	return derr, ok
}

func (r *Renderer) fail(documentID string, err error) *models.DecodeError {
	derr := &models.DecodeError{DocumentID: documentID, Err: err}
	r.failed[documentID] = derr
	delete(r.last, documentID)
	r.logger.Warn("Document preview unavailable", logger.DocumentID(documentID), logger.Error(err))
	return derr
}

// Forget drops cached surfaces and any recorded decode failure for a document.
func (r *Renderer) Forget(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.last, documentID)
	delete(r.failed, documentID)
}

// Surfaces returns the most recent successful render for a document.
func (r *Renderer) Surfaces(documentID string) ([]models.RenderSurface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.last[documentID]
	if !ok {
		return nil, false
	}
	return cloneSurfaces(prev.surfaces), true
}

func cloneSurfaces(in []models.RenderSurface) []models.RenderSurface {
	out := make([]models.RenderSurface, len(in))
	copy(out, in)
	return out
}
