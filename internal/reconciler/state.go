package reconciler

import (
	"sync"

	"github.com/feichai0017/document-viewer/internal/labels"
)

// DocumentState is the mutable view state of the selected document. It is
// created on selection and handed to the renderer, synchronizer and exporter
// instead of living in package globals.
type DocumentState struct {
	DocumentID string
	Labels     *labels.Allocator

	mu             sync.Mutex
	rendering      bool
	lastRenderedID string
	overdue        bool
}

func NewDocumentState(documentID string) *DocumentState {
	return &DocumentState{
		DocumentID: documentID,
		Labels:     labels.NewAllocator(),
	}
}

// BeginRender claims the rendering flag. It returns false while another
// render of this document is in flight.
func (s *DocumentState) BeginRender() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rendering {
		return false
	}
	s.rendering = true
	return true
}

// EndRender releases the flag and records what was rendered.
func (s *DocumentState) EndRender(renderedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rendering = false
	if renderedID != "" {
		s.lastRenderedID = renderedID
	}
}

func (s *DocumentState) Rendering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendering
}

func (s *DocumentState) LastRenderedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRenderedID
}

// Overdue reports that processing ran past the advisory poll limit.
func (s *DocumentState) Overdue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overdue
}

func (s *DocumentState) markOverdue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overdue {
		return false
	}
	s.overdue = true
	return true
}
