package crossview

import (
	"math"

	"github.com/feichai0017/document-viewer/internal/models"
)

// OverlayView holds the placed regions of every rendered page, keyed by
// chunk identity. A page-independent chunk owns one region per page.
type OverlayView struct {
	regions map[string][]models.OverlayRegion
	active  string
}

func newOverlayView() *OverlayView {
	return &OverlayView{regions: make(map[string][]models.OverlayRegion)}
}

// SetRegions replaces the placed regions, e.g. after a re-render.
func (v *OverlayView) SetRegions(byPage map[int][]models.OverlayRegion) {
	v.regions = make(map[string][]models.OverlayRegion)
	for _, regions := range byPage {
		for _, region := range regions {
			v.regions[region.ChunkID] = append(v.regions[region.ChunkID], region)
		}
	}
	if _, ok := v.regions[v.active]; !ok {
		v.active = ""
	}
}

func (v *OverlayView) Has(chunkID string) bool {
	_, ok := v.regions[chunkID]
	return ok
}

func (v *OverlayView) Regions(chunkID string) []models.OverlayRegion {
	return v.regions[chunkID]
}

func (v *OverlayView) Active() string { return v.active }

func (v *OverlayView) setActive(chunkID string) {
	if v.Has(chunkID) {
		v.active = chunkID
		return
	}
	v.active = ""
}

// Section is one structured-text block as laid out by the client.
type Section struct {
	ChunkID string  `json:"chunkId"`
	Top     float64 `json:"top"`
	Height  float64 `json:"height"`
}

// SectionView is the structured-text panel. It is the only panel that owns
// a scroll position.
type SectionView struct {
	sections       []Section
	index          map[string]int
	viewportHeight float64
	contentHeight  float64
	scrollTop      float64
	active         string
}

func newSectionView() *SectionView {
	return &SectionView{index: make(map[string]int)}
}

// Layout records the client-reported geometry of the panel. The content
// height is at least the bottom of the lowest section.
func (v *SectionView) Layout(sections []Section, viewportHeight, contentHeight float64) {
	v.sections = append(v.sections[:0:0], sections...)
	v.index = make(map[string]int, len(sections))
	for i, s := range v.sections {
		if _, dup := v.index[s.ChunkID]; !dup {
			v.index[s.ChunkID] = i
		}
		if end := s.Top + s.Height; end > contentHeight {
			contentHeight = end
		}
	}
	v.viewportHeight = math.Max(0, viewportHeight)
	v.contentHeight = contentHeight
	v.scrollTop = v.clamp(v.scrollTop)
	if !v.Has(v.active) {
		v.active = ""
	}
}

func (v *SectionView) Has(chunkID string) bool {
	_, ok := v.index[chunkID]
	return ok
}

func (v *SectionView) Active() string     { return v.active }
func (v *SectionView) ScrollTop() float64 { return v.scrollTop }

func (v *SectionView) setActive(chunkID string) {
	if v.Has(chunkID) {
		v.active = chunkID
		return
	}
	v.active = ""
}

// centerOn returns the scroll offset that vertically centers the section.
func (v *SectionView) centerOn(chunkID string) (float64, bool) {
	i, ok := v.index[chunkID]
	if !ok {
		return 0, false
	}
	s := v.sections[i]
	target := s.Top + s.Height/2 - v.viewportHeight/2
	return v.clamp(target), true
}

func (v *SectionView) clamp(top float64) float64 {
	max := v.contentHeight - v.viewportHeight
	if max < 0 {
		max = 0
	}
	return math.Min(math.Max(top, 0), max)
}

// CitationView lists the chips of the chat transcript. The same chunk may be
// cited more than once; every matching chip lights up together.
type CitationView struct {
	chips  []models.Citation
	active string
}

func newCitationView() *CitationView { return &CitationView{} }

func (v *CitationView) Append(chips ...models.Citation) {
	v.chips = append(v.chips, chips...)
}

func (v *CitationView) Chips() []models.Citation {
	return append([]models.Citation(nil), v.chips...)
}

func (v *CitationView) Has(chunkID string) bool {
	for _, c := range v.chips {
		if c.ChunkID == chunkID {
			return true
		}
	}
	return false
}

func (v *CitationView) Active() string { return v.active }

func (v *CitationView) setActive(chunkID string) {
	if v.Has(chunkID) {
		v.active = chunkID
		return
	}
	v.active = ""
}

// ViewState is a snapshot of all three views, served to the front end.
type ViewState struct {
	DocumentID       string  `json:"documentId"`
	Active           string  `json:"active,omitempty"`
	OverlayActive    string  `json:"overlayActive,omitempty"`
	SectionActive    string  `json:"sectionActive,omitempty"`
	CitationActive   string  `json:"citationActive,omitempty"`
	ActiveChips      []int   `json:"activeChips,omitempty"`
	HighlightedPages []int   `json:"highlightedPages,omitempty"`
	SectionScroll    float64 `json:"sectionScroll"`
}
