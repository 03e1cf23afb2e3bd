package document

import (
	"context"

	"github.com/feichai0017/document-viewer/internal/crossview"
	"github.com/feichai0017/document-viewer/internal/geometry"
	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/internal/render"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

// PagesUpdate carries the surfaces of one re-render of the preview.
type PagesUpdate struct {
	DocumentID string                 `json:"documentId"`
	Pages      []models.RenderSurface `json:"pages,omitempty"`
	Err        error                  `json:"-"`
}

// Resize reports a new preview container size. A document swap renders at
// once; a resize of the document already shown is debounced. The result is
// delivered to SubscribePages subscribers.
func (s *DocumentService) Resize(ctx context.Context, documentID string, width, dpr float64) error {
	if _, ok := s.reconciler.State(documentID); !ok {
		return &models.StaleReferenceError{DocumentID: documentID}
	}
	if derr, failed := s.renderer.Failure(documentID); failed {
		return derr
	}
	if s.resizer.DocumentID() == documentID {
		s.resizer.Resize(width, dpr)
		return nil
	}
	data, err := s.source(ctx, documentID)
	if err != nil {
		return err
	}
	s.resizer.SetSource(render.Source{DocumentID: documentID, Data: data}, width, dpr)
	return nil
}

// onResized runs for every render the resize controller makes. Results for
// a document that lost the selection are dropped.
func (s *DocumentService) onResized(documentID string, surfaces []models.RenderSurface, err error) {
	if _, ok := s.reconciler.State(documentID); !ok {
		s.logger.Debug("Dropping render for stale document", logger.DocumentID(documentID))
		return
	}
	if err != nil {
		s.logger.Warn("Resize render failed", logger.DocumentID(documentID), logger.Error(err))
	} else if doc, ok := s.reconciler.Document(documentID); ok {
		s.session.Load(doc, surfaces)
	}
	s.publishPages(PagesUpdate{DocumentID: documentID, Pages: surfaces, Err: err})
}

// SubscribePages registers fn for preview re-renders and returns its
// unsubscribe function.
func (s *DocumentService) SubscribePages(fn func(PagesUpdate)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextPageSub
	s.nextPageSub++
	s.pageSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.pageSubs, id)
	}
}

func (s *DocumentService) publishPages(u PagesUpdate) {
	s.mu.Lock()
	subs := make([]func(PagesUpdate), 0, len(s.pageSubs))
	for _, fn := range s.pageSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(u)
	}
}

// Pointer resolves a point on a rendered page to the innermost chunk under
// it and forwards the interaction to the session. A hover that misses every
// region clears the highlight; a missed click does nothing.
func (s *DocumentService) Pointer(ctx context.Context, documentID string, pageIndex int, x, y float64, kind crossview.InteractionType) (string, error) {
	surface, doc, err := s.surface(documentID, pageIndex)
	if err != nil {
		return "", err
	}
	var regions []models.OverlayRegion
	if doc != nil {
		regions = geometry.PlaceOverlay(doc.Chunks, surface, pageIndex)
	}
	hit, found := geometry.HitTest(regions, x, y)

	in := crossview.Interaction{DocumentID: documentID, Source: crossview.PanelOverlay, Type: kind, ChunkID: hit.ChunkID}
	if !found {
		switch kind {
		case crossview.InteractionHover:
			in.Type = crossview.InteractionLeave
		case crossview.InteractionClick:
			return "", nil
		}
	}
	if !s.session.Handle(in) {
		return "", &models.StaleReferenceError{DocumentID: documentID}
	}
	return hit.ChunkID, nil
}
