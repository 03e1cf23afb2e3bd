package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/feichai0017/document-viewer/internal/labels"
	"github.com/feichai0017/document-viewer/internal/models"
)

// A4 at 96 CSS pixels per inch.
const a4WidthPx = 794

const structuredCSS = `body{font-family:Helvetica,Arial,sans-serif;margin:0;background:#fff;color:#1f2937}
main{width:%dpx;padding:32px;box-sizing:border-box}
section.chunk{padding:12px 0;border-bottom:1px solid #e5e7eb}
section.chunk h2{font-size:15px;margin:0 0 6px}
.page-ref{font-size:12px;color:#6b7280;margin-bottom:8px}
table{border-collapse:collapse;width:100%%;font-size:12px}
th,td{border:1px solid #d1d5db;padding:4px 6px;text-align:left}
th{background:#f3f4f6}
img{max-width:100%%}`

var structuredMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

// StructuredHTML renders the structured view as a standalone page with one
// section per chunk, tagged with its chunk identity.
func StructuredHTML(doc *models.Document, alloc *labels.Allocator) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("failed to render structured view: %w", models.ErrNotReady)
	}
	if alloc == nil {
		alloc = labels.NewAllocator()
	}
	alloc.Preassign(doc.Chunks)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(doc.Filename))
	fmt.Fprintf(&b, "<style>"+structuredCSS+"</style>", a4WidthPx)
	b.WriteString("</head><body><main>\n")

	if len(doc.Chunks) == 0 && doc.StructuredText != "" {
		body, err := renderMarkdown(doc.StructuredText)
		if err != nil {
			return "", err
		}
		b.WriteString(body)
	}

	for _, c := range doc.Chunks {
		fmt.Fprintf(&b, `<section class="chunk chunk-%s" data-chunk-id="%s"`, html.EscapeString(string(c.Kind)), html.EscapeString(c.ID))
		if c.Page != nil {
			fmt.Fprintf(&b, ` data-page="%d"`, *c.Page)
		}
		b.WriteString(">\n")
		fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(alloc.LabelFor(c.Kind, c.ID)))
		fmt.Fprintf(&b, "<div class=\"page-ref\">Page Reference: %s</div>\n", pageReference(c.Page))

		body, err := renderMarkdown(c.Content)
		if err != nil {
			return "", err
		}
		b.WriteString(body)
		b.WriteString("</section>\n")
	}
	b.WriteString("</main></body></html>\n")
	return b.String(), nil
}

func renderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := structuredMarkdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}
