package crossview

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/feichai0017/document-viewer/internal/geometry"
	"github.com/feichai0017/document-viewer/internal/labels"
	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

const (
	defaultViewportHeight = 720
	sectionLineHeight     = 20
	sectionPadding        = 24
)

// Session binds a Synchronizer to the document currently on screen.
type Session struct {
	ID string

	mu     sync.Mutex
	sync   *Synchronizer
	logger logger.Logger
}

func NewSession(log logger.Logger) *Session {
	id := uuid.New().String()
	log = log.With(logger.String("sessionId", id))
	return &Session{
		ID:     id,
		sync:   NewSynchronizer("", log),
		logger: log,
	}
}

func (s *Session) Synchronizer() *Synchronizer { return s.sync }

func (s *Session) DocumentID() string { return s.sync.DocumentID() }

// Load shows doc with the given rendered pages. Swapping to another
// document resets every view first.
func (s *Session) Load(doc *models.Document, surfaces []models.RenderSurface) {
	if doc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sync.DocumentID() != doc.ID {
		s.logger.Info("Document swapped, resetting views", logger.DocumentID(doc.ID))
		s.sync.Reset(doc.ID)
	}
	s.sync.SetRegions(geometry.PlaceAll(doc.Chunks, surfaces))
	sections, content := EstimateSections(doc)
	s.sync.Layout(sections, defaultViewportHeight, content)
}

// Layout replaces the estimated section geometry with what the client measured.
func (s *Session) Layout(documentID string, sections []Section, viewportHeight, contentHeight float64) bool {
	if s.stale(documentID) {
		return false
	}
	s.sync.Layout(sections, viewportHeight, contentHeight)
	return true
}

// Handle forwards an interaction unless it targets a document that is no
// longer on screen.
func (s *Session) Handle(in Interaction) bool {
	if s.stale(in.DocumentID) {
		s.logger.Debug("Dropping interaction for stale document",
			logger.DocumentID(in.DocumentID),
			logger.ChunkID(in.ChunkID),
		)
		return false
	}
	s.sync.Handle(in)
	return true
}

// AddAnswer resolves the citations of a chat answer and appends them as chips.
func (s *Session) AddAnswer(answer *models.ChatAnswer, doc *models.Document, alloc *labels.Allocator) []models.Citation {
	if answer == nil || s.stale(answer.DocumentID) {
		return nil
	}
	chips := ResolveCitations(answer, doc, alloc)
	s.sync.AddCitations(chips...)
	return chips
}

func (s *Session) stale(documentID string) bool {
	return documentID != "" && documentID != s.sync.DocumentID()
}

// EstimateSections stacks one section per chunk, sized by its line count,
// until the client reports real geometry.
func EstimateSections(doc *models.Document) ([]Section, float64) {
	sections := make([]Section, 0, len(doc.Chunks))
	top := 0.0
	for _, c := range doc.Chunks {
		lines := strings.Count(strings.TrimSpace(c.Content), "\n") + 1
		height := float64(lines*sectionLineHeight + sectionPadding)
		sections = append(sections, Section{ChunkID: c.ID, Top: top, Height: height})
		top += height
	}
	return sections, top
}
