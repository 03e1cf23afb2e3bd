package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

const (
	reportFont       = "Helvetica"
	reportFontSize   = 10.0
	reportLineHeight = 5.0
	reportMargin     = 15.0
)

// ReportPDF lays out a markdown report (headings, paragraphs, lists, code
// and GFM tables) as an A4 PDF.
func (e *Exporter) ReportPDF(title, markdown string) ([]byte, error) {
	src := []byte(markdown)
	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	root := md.Parser().Parse(text.NewReader(src))

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(title, true)
	doc.SetMargins(reportMargin, reportMargin, reportMargin)
	doc.SetAutoPageBreak(true, reportMargin)
	doc.AliasNbPages("")
	doc.SetFooterFunc(func() {
		doc.SetY(-12)
		doc.SetFont(reportFont, "I", 8)
		doc.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", doc.PageNo()), "", 0, "C", false, 0, "")
	})
	doc.AddPage()
	doc.SetFont(reportFont, "", reportFontSize)

	r := &reportWriter{pdf: doc, src: src, latin1: encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())}
	if err := ast.Walk(root, r.walk); err != nil {
		return nil, &models.ExportError{Op: "report", Err: err}
	}
	if err := doc.Error(); err != nil {
		return nil, &models.ExportError{Op: "report", Err: err}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		e.logger.Error("Failed to write report", logger.Error(err))
		return nil, &models.ExportError{Op: "report", Err: err}
	}
	e.logger.Info("Report rendered", logger.String("title", title), logger.Int("pages", doc.PageNo()))
	return buf.Bytes(), nil
}

type reportWriter struct {
	pdf       *fpdf.Fpdf
	src       []byte
	latin1    *encoding.Encoder
	bold      bool
	italic    bool
	listDepth int
}

func (r *reportWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			r.pdf.SetFont(reportFont, "B", headingSize(node.Level))
		} else {
			r.pdf.Ln(7)
			r.applyFont()
		}
	case *ast.TextBlock:
		if !entering {
			r.pdf.Ln(reportLineHeight)
		}
	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(reportLineHeight + 1)
		}
	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.src)))
			if node.SoftLineBreak() {
				r.write(" ")
			}
			if node.HardLineBreak() {
				r.pdf.Ln(reportLineHeight)
			}
		}
	case *ast.String:
		if entering {
			r.write(string(node.Value))
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.applyFont()
	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", reportFontSize-1)
			r.write(inlineText(node, r.src))
			r.applyFont()
		}
		return ast.WalkSkipChildren, nil
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			r.codeBlock(n.Lines())
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			r.listDepth++
		} else {
			r.listDepth--
			if r.listDepth == 0 {
				r.pdf.Ln(2)
			}
		}
	case *ast.ListItem:
		if entering {
			r.pdf.SetX(reportMargin + float64(r.listDepth)*5)
			r.write("- ")
		}
	case *ast.ThematicBreak:
		if entering {
			r.pdf.Ln(2)
			y := r.pdf.GetY()
			r.pdf.Line(reportMargin, y, 210-reportMargin, y)
			r.pdf.Ln(3)
		}
	case *extast.Table:
		if entering {
			r.table(node)
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func headingSize(level int) float64 {
	switch level {
	case 1:
		return 16
	case 2:
		return 13
	case 3:
		return 11.5
	default:
		return reportFontSize + 0.5
	}
}

func (r *reportWriter) applyFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(reportFont, style, reportFontSize)
}

// write emits text in the core-font encoding. Runes outside latin-1 become '?'.
func (r *reportWriter) write(s string) {
	r.pdf.Write(reportLineHeight, r.encode(s))
}

func (r *reportWriter) encode(s string) string {
	out, err := r.latin1.String(s)
	if err != nil {
		return s
	}
	return strings.ReplaceAll(out, "\x1a", "?")
}

func (r *reportWriter) codeBlock(lines *text.Segments) {
	r.pdf.Ln(1)
	r.pdf.SetFont("Courier", "", reportFontSize-1)
	r.pdf.SetFillColor(245, 245, 245)
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(r.src)), "\n")
		r.pdf.MultiCell(0, reportLineHeight-0.5, r.encode(line), "", "L", true)
	}
	r.pdf.SetFillColor(255, 255, 255)
	r.applyFont()
	r.pdf.Ln(2)
}

func (r *reportWriter) table(n *extast.Table) {
	var rows [][]string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *extast.TableHeader, *extast.TableRow:
			rows = append(rows, cellTexts(child, r.src))
		}
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	cols := len(rows[0])
	width := (210 - 2*reportMargin) / float64(cols)
	r.pdf.Ln(2)
	for i, row := range rows {
		style, fill := "", false
		if i == 0 {
			style, fill = "B", true
			r.pdf.SetFillColor(230, 230, 230)
		}
		r.pdf.SetFont(reportFont, style, 8)
		for j := 0; j < cols; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			cell = r.encode(cell)
			for r.pdf.GetStringWidth(cell) > width-2 && len(cell) > 3 {
				cell = cell[:len(cell)-4] + "..."
			}
			r.pdf.CellFormat(width, 6, cell, "1", 0, "L", fill, 0, "")
		}
		r.pdf.Ln(-1)
	}
	r.pdf.SetFillColor(255, 255, 255)
	r.applyFont()
	r.pdf.Ln(3)
}
