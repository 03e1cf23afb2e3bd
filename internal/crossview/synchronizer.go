// Package crossview keeps the overlay, structured-text and citation views of
// one document highlighting the same chunk.
package crossview

import (
	"sort"
	"sync"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

type Panel string

const (
	PanelOverlay    Panel = "overlay"
	PanelStructured Panel = "structured"
	PanelChat       Panel = "chat"
)

type EventType string

const (
	EventHighlight EventType = "highlight"
	EventScroll    EventType = "scroll"
	EventReset     EventType = "reset"
)

// ScrollSmooth is the only scroll behavior the synchronizer requests.
const ScrollSmooth = "smooth"

type Event struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"documentId"`
	ChunkID    string    `json:"chunkId,omitempty"`
	Panel      Panel     `json:"panel,omitempty"`
	ScrollTop  float64   `json:"scrollTop,omitempty"`
	Behavior   string    `json:"behavior,omitempty"`
}

type InteractionType string

const (
	InteractionHover InteractionType = "hover"
	InteractionLeave InteractionType = "leave"
	InteractionClick InteractionType = "click"
)

// Interaction is a pointer event reported by one of the panels.
type Interaction struct {
	DocumentID string          `json:"documentId"`
	Source     Panel           `json:"source"`
	Type       InteractionType `json:"type"`
	ChunkID    string          `json:"chunkId"`
}

// Synchronizer joins the three views on chunk identity. Operations on an
// identity no view knows are no-ops.
type Synchronizer struct {
	mu         sync.Mutex
	documentID string
	overlay    *OverlayView
	sections   *SectionView
	citations  *CitationView
	active     string
	logger     logger.Logger

	subscribers map[int]func(Event)
	nextSub     int
}

func NewSynchronizer(documentID string, log logger.Logger) *Synchronizer {
	return &Synchronizer{
		documentID:  documentID,
		overlay:     newOverlayView(),
		sections:    newSectionView(),
		citations:   newCitationView(),
		logger:      log.Named("crossview"),
		subscribers: make(map[int]func(Event)),
	}
}

func (s *Synchronizer) DocumentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentID
}

// SetRegions installs freshly placed overlay regions.
func (s *Synchronizer) SetRegions(byPage map[int][]models.OverlayRegion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay.SetRegions(byPage)
	s.syncActiveLocked()
}

// Layout installs the structured-text panel geometry.
func (s *Synchronizer) Layout(sections []Section, viewportHeight, contentHeight float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections.Layout(sections, viewportHeight, contentHeight)
	s.syncActiveLocked()
}

// AddCitations appends chips to the chat transcript.
func (s *Synchronizer) AddCitations(chips ...models.Citation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.citations.Append(chips...)
	s.syncActiveLocked()
}

func (s *Synchronizer) Citations() []models.Citation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.citations.Chips()
}

// Highlight makes chunkID the single active chunk in every view that knows
// it. An empty ID clears all highlights. It reports whether anything changed.
func (s *Synchronizer) Highlight(chunkID string) bool {
	s.mu.Lock()
	if chunkID != "" && !s.knownLocked(chunkID) {
		s.mu.Unlock()
		s.logger.Debug("Ignoring highlight of unknown chunk", logger.ChunkID(chunkID))
		return false
	}
	changed := s.setActiveLocked(chunkID)
	ev := Event{Type: EventHighlight, DocumentID: s.documentID, ChunkID: chunkID}
	s.mu.Unlock()

	if changed {
		s.publish(ev)
	}
	return changed
}

// Focus highlights chunkID and centers its section in the structured-text
// panel. No other panel is scrolled. Unknown sections are ignored.
func (s *Synchronizer) Focus(chunkID string) bool {
	s.mu.Lock()
	target, ok := s.sections.centerOn(chunkID)
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("Ignoring focus of unknown section", logger.ChunkID(chunkID))
		return false
	}
	changed := s.setActiveLocked(chunkID)
	s.sections.scrollTop = target
	highlight := Event{Type: EventHighlight, DocumentID: s.documentID, ChunkID: chunkID}
	scroll := Event{
		Type:       EventScroll,
		DocumentID: s.documentID,
		ChunkID:    chunkID,
		Panel:      PanelStructured,
		ScrollTop:  target,
		Behavior:   ScrollSmooth,
	}
	s.mu.Unlock()

	if changed {
		s.publish(highlight)
	}
	s.publish(scroll)
	return true
}

// Handle dispatches a panel interaction. Hover from any panel is equivalent.
func (s *Synchronizer) Handle(in Interaction) {
	switch in.Type {
	case InteractionHover:
		s.Highlight(in.ChunkID)
	case InteractionLeave:
		s.Highlight("")
	case InteractionClick:
		s.Highlight(in.ChunkID)
		s.Focus(in.ChunkID)
	default:
		s.logger.Debug("Unknown interaction", logger.String("type", string(in.Type)))
	}
}

// Reset clears every view and rebinds the synchronizer to documentID.
func (s *Synchronizer) Reset(documentID string) {
	s.mu.Lock()
	s.documentID = documentID
	s.overlay = newOverlayView()
	s.sections = newSectionView()
	s.citations = newCitationView()
	s.active = ""
	s.mu.Unlock()

	s.publish(Event{Type: EventReset, DocumentID: documentID})
}

// Active returns the active chunk, or "" when nothing is highlighted.
func (s *Synchronizer) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Synchronizer) State() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := ViewState{
		DocumentID:     s.documentID,
		Active:         s.active,
		OverlayActive:  s.overlay.Active(),
		SectionActive:  s.sections.Active(),
		CitationActive: s.citations.Active(),
		SectionScroll:  s.sections.ScrollTop(),
	}
	if s.citations.active != "" {
		for i, c := range s.citations.chips {
			if c.ChunkID == s.citations.active {
				state.ActiveChips = append(state.ActiveChips, i)
			}
		}
	}
	if s.overlay.active != "" {
		seen := make(map[int]bool)
		for _, r := range s.overlay.Regions(s.overlay.active) {
			if !seen[r.PageIndex] {
				seen[r.PageIndex] = true
				state.HighlightedPages = append(state.HighlightedPages, r.PageIndex)
			}
		}
		sort.Ints(state.HighlightedPages)
	}
	return state
}

// Subscribe registers fn for every event; the returned func unregisters it.
func (s *Synchronizer) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Synchronizer) publish(ev Event) {
	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Synchronizer) knownLocked(chunkID string) bool {
	return s.overlay.Has(chunkID) || s.sections.Has(chunkID) || s.citations.Has(chunkID)
}

func (s *Synchronizer) setActiveLocked(chunkID string) bool {
	changed := s.active != chunkID
	s.active = chunkID
	s.overlay.setActive(chunkID)
	s.sections.setActive(chunkID)
	s.citations.setActive(chunkID)
	return changed
}

// syncActiveLocked re-applies the active chunk after a view was replaced,
// dropping it if no view knows it anymore.
func (s *Synchronizer) syncActiveLocked() {
	if s.active != "" && !s.knownLocked(s.active) {
		s.active = ""
	}
	s.setActiveLocked(s.active)
}
