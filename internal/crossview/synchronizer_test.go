package crossview

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-viewer/internal/labels"
	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func twoPageDoc() *models.Document {
	return &models.Document{
		ID:       "doc",
		Status:   models.StatusComplete,
		Pages:    2,
		Filename: "report.pdf",
		Chunks: []models.Chunk{
			{ID: "tbl", Kind: models.KindTable, Page: models.PageOf(0), Box: models.BoundingBox{Left: 0.1, Top: 0.1, Right: 0.9, Bottom: 0.3}, Content: "| a | b |\n|---|---|\n| 1 | 2 |"},
			{ID: "txt", Kind: models.KindText, Page: models.PageOf(1), Box: models.BoundingBox{Left: 0, Top: 0, Right: 1, Bottom: 1}, Content: "Body text"},
		},
	}
}

func twoSurfaces() []models.RenderSurface {
	return []models.RenderSurface{
		{DocumentID: "doc", PageIndex: 0, Width: 600, Height: 800, DevicePixelRatio: 1},
		{DocumentID: "doc", PageIndex: 1, Width: 600, Height: 800, OffsetY: 800, DevicePixelRatio: 1},
	}
}

func newSynced(t *testing.T) (*Synchronizer, *recorder) {
	t.Helper()
	s := NewSynchronizer("doc", logger.NewTestLogger())
	s.SetRegions(map[int][]models.OverlayRegion{
		0: {{ChunkID: "a", PageIndex: 0, Width: 10, Height: 10}, {ChunkID: "both", PageIndex: 0, Width: 5, Height: 5}},
		1: {{ChunkID: "b", PageIndex: 1, Width: 10, Height: 10}, {ChunkID: "both", PageIndex: 1, Width: 5, Height: 5}},
	})
	s.Layout([]Section{
		{ChunkID: "a", Top: 0, Height: 100},
		{ChunkID: "b", Top: 100, Height: 100},
		{ChunkID: "c", Top: 900, Height: 100},
	}, 400, 1000)
	s.AddCitations(models.Citation{ChunkID: "a"}, models.Citation{ChunkID: "b"}, models.Citation{ChunkID: "a"})

	rec := &recorder{}
	s.Subscribe(rec.record)
	return s, rec
}

func TestHighlight_SingleActiveAcrossViews(t *testing.T) {
	s, _ := newSynced(t)

	require.True(t, s.Highlight("a"))
	state := s.State()
	assert.Equal(t, "a", state.OverlayActive)
	assert.Equal(t, "a", state.SectionActive)
	assert.Equal(t, "a", state.CitationActive)
	assert.Equal(t, []int{0, 2}, state.ActiveChips)
	assert.Equal(t, []int{0}, state.HighlightedPages)

	s.Highlight("b")
	state = s.State()
	assert.Equal(t, "b", state.OverlayActive)
	assert.Equal(t, "b", state.SectionActive)
	assert.Equal(t, []int{1}, state.ActiveChips)
}

func TestHighlight_EmptyClearsEverything(t *testing.T) {
	s, rec := newSynced(t)
	s.Highlight("a")
	s.Highlight("")

	state := s.State()
	assert.Empty(t, state.Active)
	assert.Empty(t, state.OverlayActive)
	assert.Empty(t, state.SectionActive)
	assert.Empty(t, state.CitationActive)
	assert.Empty(t, state.ActiveChips)

	events := rec.ofType(EventHighlight)
	require.Len(t, events, 2)
	assert.Equal(t, "", events[1].ChunkID)
}

func TestHighlight_UnknownIsNoop(t *testing.T) {
	s, rec := newSynced(t)
	s.Highlight("a")

	assert.False(t, s.Highlight("missing"))
	assert.Equal(t, "a", s.Active())
	assert.Len(t, rec.ofType(EventHighlight), 1)
}

func TestHighlight_PartialViewMembership(t *testing.T) {
	s, _ := newSynced(t)

	// "c" has a section but no overlay region or chip
	require.True(t, s.Highlight("c"))
	state := s.State()
	assert.Equal(t, "c", state.SectionActive)
	assert.Empty(t, state.OverlayActive)
	assert.Empty(t, state.CitationActive)

	s.Highlight("both")
	assert.Equal(t, []int{0, 1}, s.State().HighlightedPages)
}

func TestFocus_CentersOnlyStructuredPanel(t *testing.T) {
	s, rec := newSynced(t)

	require.True(t, s.Focus("b"))
	scrolls := rec.ofType(EventScroll)
	require.Len(t, scrolls, 1)
	assert.Equal(t, PanelStructured, scrolls[0].Panel)
	assert.Equal(t, ScrollSmooth, scrolls[0].Behavior)
	// section center 150 minus half the 400px viewport, clamped at 0
	assert.Equal(t, 0.0, scrolls[0].ScrollTop)

	s.Focus("c")
	// center 950 - 200 = 750 exceeds max 600
	assert.Equal(t, 600.0, s.State().SectionScroll)

	for _, ev := range rec.ofType(EventScroll) {
		assert.NotEqual(t, PanelOverlay, ev.Panel)
	}
}

func TestFocus_UnknownSectionIsNoop(t *testing.T) {
	s, rec := newSynced(t)
	s.Highlight("a")

	assert.False(t, s.Focus("both"))
	assert.False(t, s.Focus("gone"))
	assert.Equal(t, "a", s.Active())
	assert.Empty(t, rec.ofType(EventScroll))
}

func TestHandle_HoverSourcesAreEquivalent(t *testing.T) {
	for _, src := range []Panel{PanelOverlay, PanelStructured, PanelChat} {
		s, _ := newSynced(t)
		s.Handle(Interaction{Source: src, Type: InteractionHover, ChunkID: "b"})
		assert.Equal(t, "b", s.Active(), string(src))

		s.Handle(Interaction{Source: src, Type: InteractionLeave})
		assert.Empty(t, s.Active(), string(src))
	}
}

func TestHandle_ClickFocuses(t *testing.T) {
	s, rec := newSynced(t)
	s.Handle(Interaction{Source: PanelChat, Type: InteractionClick, ChunkID: "c"})
	assert.Equal(t, "c", s.Active())
	assert.Len(t, rec.ofType(EventScroll), 1)
}

func TestSession_EndToEndTwoPages(t *testing.T) {
	doc := twoPageDoc()
	alloc := labels.NewAllocator()
	alloc.Preassign(doc.Chunks)
	assert.Equal(t, map[string]string{"tbl": "Table 1", "txt": "Text 1"}, alloc.Snapshot())

	sess := NewSession(logger.NewTestLogger())
	sess.Load(doc, twoSurfaces())

	sy := sess.Synchronizer()
	require.True(t, sess.Handle(Interaction{DocumentID: "doc", Source: PanelOverlay, Type: InteractionHover, ChunkID: "tbl"}))

	state := sy.State()
	assert.Equal(t, "tbl", state.SectionActive)
	assert.Equal(t, "tbl", state.OverlayActive)
	assert.Equal(t, []int{0}, state.HighlightedPages)
}

func TestSession_SwapResetsAndDropsStale(t *testing.T) {
	sess := NewSession(logger.NewTestLogger())
	rec := &recorder{}
	sess.Synchronizer().Subscribe(rec.record)

	sess.Load(twoPageDoc(), twoSurfaces())
	sess.Handle(Interaction{DocumentID: "doc", Type: InteractionHover, ChunkID: "txt"})

	other := &models.Document{ID: "other", Chunks: []models.Chunk{{ID: "o1", Kind: models.KindChart}}}
	sess.Load(other, []models.RenderSurface{{DocumentID: "other", Width: 100, Height: 100}})

	assert.Empty(t, sess.Synchronizer().Active())
	assert.Len(t, rec.ofType(EventReset), 2)

	// a late click from the previous document
	assert.False(t, sess.Handle(Interaction{DocumentID: "doc", Type: InteractionClick, ChunkID: "txt"}))
	assert.Empty(t, sess.Synchronizer().Active())

	assert.True(t, sess.Handle(Interaction{DocumentID: "other", Type: InteractionHover, ChunkID: "o1"}))
	assert.Equal(t, "o1", sess.Synchronizer().Active())
}

func TestResolveCitations_NoDeduplication(t *testing.T) {
	doc := twoPageDoc()
	alloc := labels.NewAllocator()
	answer := &models.ChatAnswer{
		DocumentID: "doc",
		Sources: []models.Citation{
			{ChunkID: "tbl"},
			{ChunkID: "txt", Title: "Body"},
			{ChunkID: "tbl"},
			{ChunkID: "unknown", Title: "Appendix", Page: models.PageOf(4)},
			{ChunkID: "unknown2"},
		},
	}

	chips := ResolveCitations(answer, doc, alloc)
	require.Len(t, chips, 5)
	assert.Equal(t, "Table 1 · Page 1", chips[0].Display)
	assert.Equal(t, models.KindTable, chips[0].Kind)
	assert.Equal(t, "Text 1 · Page 2", chips[1].Display)
	assert.Equal(t, chips[0].Display, chips[2].Display)
	assert.Equal(t, "Appendix · Page 5", chips[3].Display)
	assert.Equal(t, "Source 5", chips[4].Display)
}
