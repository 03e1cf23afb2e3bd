// Package labels assigns stable ordinal labels ("Table 1", "Text 3") to chunks.
package labels

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/feichai0017/document-viewer/internal/models"
)

// Allocator hands out per-kind, 1-based ordinals keyed by chunk identity.
// A chunk keeps its first label until Reset, whatever kind later callers pass.
type Allocator struct {
	mu       sync.Mutex
	counters map[models.ChunkKind]int
	labels   map[string]string
	title    cases.Caser
}

func NewAllocator() *Allocator {
	return &Allocator{
		counters: make(map[models.ChunkKind]int),
		labels:   make(map[string]string),
		title:    cases.Title(language.English),
	}
}

// Reset clears counters and cached labels for a new document.
func (a *Allocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters = make(map[models.ChunkKind]int)
	a.labels = make(map[string]string)
}

// LabelFor returns the label of chunkID, assigning the next ordinal of kind on
// first sight.
func (a *Allocator) LabelFor(kind models.ChunkKind, chunkID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.labelFor(kind, chunkID)
}

func (a *Allocator) labelFor(kind models.ChunkKind, chunkID string) string {
	if label, ok := a.labels[chunkID]; ok {
		return label
	}
	kind = normalizeKind(kind)
	a.counters[kind]++
	label := fmt.Sprintf("%s %d", a.title.String(strings.ReplaceAll(string(kind), "_", " ")), a.counters[kind])
	a.labels[chunkID] = label
	return label
}

// Lookup returns a previously assigned label without assigning one.
func (a *Allocator) Lookup(chunkID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	label, ok := a.labels[chunkID]
	return label, ok
}

// Preassign labels every chunk in document order in one pass, so no view
// ever shows a label that changes later.
func (a *Allocator) Preassign(chunks []models.Chunk) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range chunks {
		a.labelFor(c.Kind, c.ID)
	}
}

// Snapshot returns a copy of the identity to label map.
func (a *Allocator) Snapshot() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.labels))
	for k, v := range a.labels {
		out[k] = v
	}
	return out
}

func normalizeKind(kind models.ChunkKind) models.ChunkKind {
	k := models.ChunkKind(strings.ToLower(strings.TrimSpace(string(kind))))
	if k == "" {
		return models.KindText
	}
	return k
}
