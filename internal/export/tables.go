package export

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/feichai0017/document-viewer/internal/models"
)

var (
	multiSpace    = regexp.MustCompile(`\s{2,}`)
	separatorLine = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?\s*$`)
	numberedTitle = regexp.MustCompile(`^\d+[.)]\s+[A-Z]`)
	whitespace    = regexp.MustCompile(`\s+`)
)

const (
	maxHeaderCell = 50
	maxTitleRunes = 100
	// colspan wider than this is treated as malformed markup
	maxColspan = 1000
)

// ParseTable extracts a grid from a table chunk. HTML tables are tried
// first, then GFM tables, then pipe-delimited lines, then columns separated
// by two or more spaces.
func ParseTable(raw string) models.Table {
	var rows [][]string
	var header []string

	switch {
	case strings.Contains(strings.ToLower(raw), "<table"):
		header, rows = parseHTMLTable(raw)
	case looksLikeGFM(raw):
		header, rows = parseGFMTable(raw)
	}
	if len(header) == 0 && len(rows) == 0 {
		rows = parsePipeLines(raw)
	}
	if len(rows) == 0 {
		rows = parseSpacedColumns(raw)
	}

	header, rows = inferHeader(header, rows)
	return models.Table{
		Title:  InferTableTitle(raw),
		Header: header,
		Rows:   padRows(rows, len(header)),
	}
}

func parseHTMLTable(raw string) ([]string, [][]string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, nil
	}
	table := doc.Find("table").First()

	var header []string
	var rows [][]string
	table.Find("thead tr").First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		header = appendCell(header, cell)
	})

	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.ParentsFiltered("thead").Length() > 0 {
			return
		}
		var row []string
		allTH := true
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			if goquery.NodeName(cell) != "th" {
				allTH = false
			}
			row = appendCell(row, cell)
		})
		if len(row) == 0 {
			return
		}
		if len(header) == 0 && len(rows) == 0 && allTH {
			header = row
			return
		}
		rows = append(rows, row)
	})
	return header, rows
}

// appendCell adds the cell text and pads blanks for its extra colspan.
func appendCell(row []string, cell *goquery.Selection) []string {
	row = append(row, NormalizeText(cell.Text()))
	if span, err := strconv.Atoi(cell.AttrOr("colspan", "1")); err == nil {
		span = min(span, maxColspan)
		for i := 1; i < span; i++ {
			row = append(row, "")
		}
	}
	return row
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func looksLikeGFM(raw string) bool {
	for _, line := range strings.Split(raw, "\n") {
		if strings.Contains(line, "|") && strings.Contains(line, "-") && separatorLine.MatchString(line) {
			return true
		}
	}
	return false
}

func parseGFMTable(raw string) ([]string, [][]string) {
	src := []byte(raw)
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	root := md.Parser().Parse(text.NewReader(src))

	var header []string
	var rows [][]string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *extast.TableHeader:
			if header == nil {
				header = cellTexts(node, src)
			}
			return ast.WalkSkipChildren, nil
		case *extast.TableRow:
			rows = append(rows, cellTexts(node, src))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return header, rows
}

func cellTexts(row ast.Node, src []byte) []string {
	var cells []string
	for c := row.FirstChild(); c != nil; c = c.NextSibling() {
		if _, ok := c.(*extast.TableCell); ok {
			cells = append(cells, NormalizeText(inlineText(c, src)))
		}
	}
	return cells
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func parsePipeLines(raw string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "|") || separatorLine.MatchString(line) {
			continue
		}
		line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
		parts := strings.Split(line, "|")
		row := make([]string, 0, len(parts))
		for _, p := range parts {
			row = append(row, NormalizeText(p))
		}
		rows = append(rows, row)
	}
	return rows
}

func parseSpacedColumns(raw string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := multiSpace.Split(line, -1)
		if len(parts) < 2 {
			continue
		}
		row := make([]string, 0, len(parts))
		for _, p := range parts {
			row = append(row, NormalizeText(p))
		}
		rows = append(rows, row)
	}
	return rows
}

// inferHeader promotes the first row to the header when it reads like one,
// otherwise it synthesizes column names.
func inferHeader(header []string, rows [][]string) ([]string, [][]string) {
	if len(header) > 0 {
		return header, rows
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 && isHeaderRow(rows[0]) {
		return rows[0], rows[1:]
	}

	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	if width == 2 {
		return []string{"Field", "Value"}, rows
	}
	header = make([]string, width)
	for i := range header {
		header[i] = fmt.Sprintf("Column %d", i+1)
	}
	return header, rows
}

func isHeaderRow(row []string) bool {
	for _, cell := range row {
		if cell == "" || len(cell) >= maxHeaderCell || strings.IndexFunc(cell, unicode.IsDigit) >= 0 {
			return false
		}
	}
	return true
}

func padRows(rows [][]string, width int) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		switch {
		case len(r) < width:
			r = append(r, make([]string, width-len(r))...)
		case len(r) > width && width > 0:
			r = r[:width]
		}
		out = append(out, r)
	}
	return out
}

// InferTableTitle looks for a heading-like line above or inside a table
// chunk. It returns "" when none is found.
func InferTableTitle(raw string) string {
	if strings.Contains(strings.ToLower(raw), "<table") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			if caption := NormalizeText(doc.Find("caption").First().Text()); caption != "" {
				return caption
			}
		}
	}
	return inferTitle(raw, 10)
}

func inferTitle(raw string, maxLines int) string {
	lines := strings.Split(raw, "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "<") || strings.Contains(line, "|") {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if title := strings.TrimSpace(strings.TrimLeft(line, "#")); title != "" && len(title) < 150 {
				return title
			}
		}
		if strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") && len(line) > 4 {
			if title := strings.TrimSpace(strings.Trim(line, "*")); len(title) < 150 {
				return title
			}
		}
		if numberedTitle.MatchString(line) {
			return truncateRunes(line, maxTitleRunes)
		}
		if len(line) > 3 && len(line) < 150 && (isUpper(line) || isTitleCase(line)) {
			return line
		}
	}
	return ""
}

func isUpper(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0 && strings.ToUpper(s) == s
}

func isTitleCase(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 8 {
		return false
	}
	for _, w := range words {
		r := []rune(w)
		if unicode.IsLetter(r[0]) && !unicode.IsUpper(r[0]) {
			return false
		}
	}
	return true
}

// NormalizeText collapses whitespace (including non-breaking spaces) and
// trims the result.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
