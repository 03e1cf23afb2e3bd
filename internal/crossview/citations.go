package crossview

import (
	"fmt"

	"github.com/feichai0017/document-viewer/internal/labels"
	"github.com/feichai0017/document-viewer/internal/models"
)

// ResolveCitations fills kind, label and display text for every source of
// answer, in order. Sources that resolve to the same display string stay
// separate chips.
func ResolveCitations(answer *models.ChatAnswer, doc *models.Document, alloc *labels.Allocator) []models.Citation {
	if answer == nil {
		return nil
	}
	out := make([]models.Citation, 0, len(answer.Sources))
	for i, src := range answer.Sources {
		c := src
		if chunk, ok := doc.Chunk(c.ChunkID); ok {
			c.Kind = chunk.Kind
			if c.Page == nil && chunk.Page != nil {
				c.Page = models.PageOf(*chunk.Page)
			}
			if alloc != nil {
				c.Label = alloc.LabelFor(chunk.Kind, chunk.ID)
			}
		}
		if c.Label == "" {
			c.Label = c.Title
		}
		if c.Label == "" {
			c.Label = fmt.Sprintf("Source %d", i+1)
		}
		c.Display = displayFor(c)
		out = append(out, c)
	}
	return out
}

func displayFor(c models.Citation) string {
	if c.Page == nil {
		return c.Label
	}
	return fmt.Sprintf("%s · Page %d", c.Label, *c.Page+1)
}
