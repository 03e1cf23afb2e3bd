package labels

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/document-viewer/internal/models"
)

func TestLabelFor_Deterministic(t *testing.T) {
	a := NewAllocator()
	first := a.LabelFor(models.KindTable, "c1")
	second := a.LabelFor(models.KindTable, "c1")
	assert.Equal(t, "Table 1", first)
	assert.Equal(t, first, second)
}

func TestLabelFor_KindOnlyOnFirstAssignment(t *testing.T) {
	a := NewAllocator()
	assert.Equal(t, "Table 1", a.LabelFor(models.KindTable, "c1"))
	assert.Equal(t, "Table 1", a.LabelFor(models.KindText, "c1"))
	assert.Equal(t, "Text 1", a.LabelFor(models.KindText, "c2"))
	assert.Equal(t, "Table 2", a.LabelFor(models.KindTable, "c3"))
}

func TestReset_RestartsNumbering(t *testing.T) {
	a := NewAllocator()
	a.LabelFor(models.KindTable, "c0")
	a.LabelFor(models.KindTable, "c1")
	a.Reset()
	assert.Equal(t, "Table 1", a.LabelFor(models.KindTable, "c1"))
	_, ok := a.Lookup("c0")
	assert.False(t, ok)
}

func TestPreassign_DocumentOrder(t *testing.T) {
	a := NewAllocator()
	a.Preassign([]models.Chunk{
		{ID: "a", Kind: models.KindText},
		{ID: "b", Kind: models.KindTable},
		{ID: "c", Kind: models.KindText},
		{ID: "d", Kind: models.KindMarginalia},
		{ID: "e", Kind: "figure_caption"},
		{ID: "f", Kind: ""},
	})
	assert.Equal(t, map[string]string{
		"a": "Text 1",
		"b": "Table 1",
		"c": "Text 2",
		"d": "Marginalia 1",
		"e": "Figure Caption 1",
		"f": "Text 3",
	}, a.Snapshot())
}

func TestLabelFor_ConcurrentCallersAgree(t *testing.T) {
	a := NewAllocator()
	var wg sync.WaitGroup
	results := make([]string, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.LabelFor(models.KindChart, "same")
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, "Chart 1", r)
	}
}
