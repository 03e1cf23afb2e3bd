// Package export turns a structured document back into portable artifacts:
// markdown-style text, standalone HTML, a paginated raster PDF and a
// narrative report PDF.
package export

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/feichai0017/document-viewer/internal/labels"
	"github.com/feichai0017/document-viewer/internal/models"
)

var titleCaser = cases.Title(language.English)

// ToPortableText renders doc as markdown text: a header, a table of
// contents and one numbered section per chunk in document order. Tables are
// rendered as grids.
func ToPortableText(doc *models.Document, alloc *labels.Allocator) string {
	if doc == nil {
		return ""
	}
	if alloc == nil {
		alloc = labels.NewAllocator()
	}
	alloc.Preassign(doc.Chunks)
	tables := tablesByID(doc)

	var b strings.Builder
	name := doc.Filename
	if name == "" {
		name = doc.ID
	}
	fmt.Fprintf(&b, "# Document Export: %s\n\n", name)
	fmt.Fprintf(&b, "Sections: %d  \nTables: %d  \nPages: %d\n\n", len(doc.Chunks), countTables(doc), doc.Pages)

	b.WriteString("## Table of Contents\n\n")
	for i, c := range doc.Chunks {
		fmt.Fprintf(&b, "%d. **%s** - Page %s (%s)\n", i+1, alloc.LabelFor(c.Kind, c.ID), pageLabel(c.Page), kindTitle(c.Kind))
	}
	b.WriteString("\n---\n\n")

	for i, c := range doc.Chunks {
		label := alloc.LabelFor(c.Kind, c.ID)
		fmt.Fprintf(&b, "## %d. %s: %s\n\n", i+1, label, SectionTitle(c))
		fmt.Fprintf(&b, "Page Reference: %s\n\n", pageReference(c.Page))

		if c.Kind == models.KindTable {
			table, ok := tables[c.ID]
			if !ok {
				table = ParseTable(c.Content)
			}
			writeGrid(&b, table)
			continue
		}
		b.WriteString(contentMarkdown(c))
		b.WriteString("\n\n")
	}
	return b.String()
}

// writeGrid renders a header row, a separator and every data row, followed
// by the row count.
func writeGrid(b *strings.Builder, t models.Table) {
	if len(t.Header) == 0 {
		b.WriteString("_No tabular data detected._\n\n")
		return
	}
	b.WriteString("| " + strings.Join(escapeCells(t.Header), " | ") + " |\n")
	seps := make([]string, len(t.Header))
	for i := range seps {
		seps[i] = "---"
	}
	b.WriteString("| " + strings.Join(seps, " | ") + " |\n")
	for _, row := range padRows(t.Rows, len(t.Header)) {
		b.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}
	fmt.Fprintf(b, "\nTotal Rows: %d\n\n", len(t.Rows))
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(NormalizeText(c), "|", `\|`)
	}
	return out
}

// contentMarkdown returns the chunk content as markdown, converting HTML
// fragments.
func contentMarkdown(c models.Chunk) string {
	content := strings.TrimSpace(c.Content)
	if content == "" {
		content = strings.TrimSpace(c.Text)
	}
	if !looksLikeHTML(content) {
		return content
	}
	converted, err := md.NewConverter("", true, nil).ConvertString(content)
	if err != nil {
		return NormalizeText(content)
	}
	return strings.TrimSpace(converted)
}

func looksLikeHTML(s string) bool {
	i := strings.Index(s, "<")
	return i >= 0 && strings.Contains(s[i:], ">") && strings.Contains(s, "</")
}

// SectionTitle derives a display title for a chunk from its content.
func SectionTitle(c models.Chunk) string {
	content := c.Content
	if c.Kind == models.KindTable {
		if title := InferTableTitle(content); title != "" {
			return title
		}
	} else if title := inferTitle(contentMarkdown(c), 10); title != "" {
		return title
	}

	plain := NormalizeText(c.Text)
	if plain == "" && c.Kind != models.KindTable {
		plain = NormalizeText(contentMarkdown(c))
	}
	if first := strings.TrimSpace(strings.SplitN(plain, ".", 2)[0]); len(first) > 10 && len(first) < 100 {
		return first
	}
	return kindTitle(c.Kind) + " Section"
}

func kindTitle(kind models.ChunkKind) string {
	if kind == "" {
		kind = models.KindText
	}
	return titleCaser.String(strings.ReplaceAll(string(kind), "_", " "))
}

func pageLabel(page *int) string {
	if page == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *page+1)
}

func pageReference(page *int) string {
	if page == nil {
		return "N/A"
	}
	return fmt.Sprintf("Page %d", *page+1)
}

func tablesByID(doc *models.Document) map[string]models.Table {
	out := make(map[string]models.Table, len(doc.Tables))
	for _, t := range doc.Tables {
		if t.ID != "" && len(t.Header) > 0 {
			out[t.ID] = t
		}
	}
	return out
}

func countTables(doc *models.Document) int {
	n := 0
	for _, c := range doc.Chunks {
		if c.Kind == models.KindTable {
			n++
		}
	}
	return n
}
