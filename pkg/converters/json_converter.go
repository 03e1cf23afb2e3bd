package converters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/feichai0017/document-viewer/internal/models"
)

// WireDocument is a document record as the extraction service sends it. The
// list endpoint omits most payload fields; the detail endpoint fills them.
type WireDocument struct {
	DocumentID       string                 `json:"document_id"`
	Filename         string                 `json:"filename"`
	Status           string                 `json:"status"`
	Message          string                 `json:"message,omitempty"`
	Progress         float64                `json:"progress,omitempty"`
	UploadTime       string                 `json:"upload_time,omitempty"`
	DocumentMarkdown string                 `json:"document_markdown,omitempty"`
	DetectedChunks   []WireChunk            `json:"detected_chunks,omitempty"`
	Tables           []WireTable            `json:"tables,omitempty"`
	Summary          string                 `json:"summary,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

type WireChunk struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Text     string   `json:"text,omitempty"`
	Markdown string   `json:"markdown,omitempty"`
	Page     *int     `json:"page"`
	Box      *WireBox `json:"box"`
	ParentID string   `json:"parent_id,omitempty"`
}

type WireBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// WireTable rows arrive either as cell lists or as header-keyed objects.
type WireTable struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Header []string          `json:"header"`
	Rows   []json.RawMessage `json:"rows"`
	Page   *int              `json:"page"`
	Box    *WireBox          `json:"box"`
}

// WireStatus is the body of the status endpoint.
type WireStatus struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

type WireChatRequest struct {
	DocumentID string `json:"document_id"`
	Query      string `json:"query"`
}

type WireChatResponse struct {
	DocumentID string       `json:"document_id"`
	Query      string       `json:"query"`
	Answer     string       `json:"answer"`
	Sources    []WireSource `json:"sources"`
	Source     string       `json:"source"`
}

type WireSource struct {
	ChunkID string `json:"chunk_id"`
	Title   string `json:"title"`
	Page    *int   `json:"page"`
	Text    string `json:"text"`
}

// DocumentConverter maps wire records onto the viewer's model.
type DocumentConverter interface {
	Convert(w *WireDocument) (*models.Document, error)
}

// JSONConverter implements DocumentConverter for the JSON API.
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Convert(w *WireDocument) (*models.Document, error) {
	if w == nil || w.DocumentID == "" {
		return nil, fmt.Errorf("document record without document_id")
	}

	doc := &models.Document{
		ID:             w.DocumentID,
		Filename:       w.Filename,
		Status:         ConvertStatus(w.Status),
		StatusMessage:  w.Message,
		Progress:       w.Progress,
		StructuredText: w.DocumentMarkdown,
		Summary:        w.Summary,
		Metadata:       w.Metadata,
		UploadedAt:     parseUploadTime(w.UploadTime),
	}

	maxPage := -1
	for _, wc := range w.DetectedChunks {
		chunk := ConvertChunk(wc)
		if chunk.Page != nil && *chunk.Page > maxPage {
			maxPage = *chunk.Page
		}
		doc.Chunks = append(doc.Chunks, chunk)
	}
	for _, wt := range w.Tables {
		doc.Tables = append(doc.Tables, ConvertTable(wt))
	}
	doc.Pages = pageCount(w.Metadata, maxPage)
	return doc, nil
}

// DecodeDocument decodes one wire record.
func (c *JSONConverter) DecodeDocument(data []byte) (*models.Document, error) {
	var w WireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return c.Convert(&w)
}

// DecodeList decodes the list endpoint, which returns a bare array.
// Records without an identity are skipped.
func (c *JSONConverter) DecodeList(data []byte) ([]models.Document, error) {
	var ws []WireDocument
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to decode document list: %w", err)
	}
	out := make([]models.Document, 0, len(ws))
	for i := range ws {
		doc, err := c.Convert(&ws[i])
		if err != nil {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

// ConvertStatus maps the service's status vocabulary onto the lifecycle.
func ConvertStatus(s string) models.DocumentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "complete", "completed", "done":
		return models.StatusComplete
	case "failed", "error":
		return models.StatusError
	case "processing", "running", "in_progress":
		return models.StatusProcessing
	default:
		return models.StatusQueued
	}
}

// ConvertChunk keeps the raw markdown as content and the cleaned text alongside.
func ConvertChunk(wc WireChunk) models.Chunk {
	content := wc.Markdown
	if content == "" {
		content = wc.Text
	}
	chunk := models.Chunk{
		ID:       wc.ID,
		Kind:     ConvertKind(wc.Type),
		Page:     wc.Page,
		Content:  content,
		Text:     wc.Text,
		ParentID: wc.ParentID,
	}
	if wc.Box != nil {
		chunk.Box = models.BoundingBox{Left: wc.Box.Left, Top: wc.Box.Top, Right: wc.Box.Right, Bottom: wc.Box.Bottom}
	}
	return chunk
}

func ConvertKind(t string) models.ChunkKind {
	switch k := strings.ToLower(strings.TrimSpace(t)); k {
	case "":
		return models.KindText
	case "marginal", "margin":
		return models.KindMarginalia
	case "figure", "image":
		return models.KindChart
	default:
		return models.ChunkKind(k)
	}
}

func ConvertTable(wt WireTable) models.Table {
	t := models.Table{
		ID:     wt.ID,
		Title:  wt.Title,
		Header: append([]string(nil), wt.Header...),
		Page:   wt.Page,
	}
	if wt.Box != nil {
		t.Box = models.BoundingBox{Left: wt.Box.Left, Top: wt.Box.Top, Right: wt.Box.Right, Bottom: wt.Box.Bottom}
	}
	for _, raw := range wt.Rows {
		if row, ok := decodeRow(raw, &t.Header); ok {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

// decodeRow accepts a list of cells or an object keyed by header. Object
// keys missing from the header extend it in sorted order.
func decodeRow(raw json.RawMessage, header *[]string) ([]string, bool) {
	var list []interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		row := make([]string, len(list))
		for i, v := range list {
			row[i] = cellString(v)
		}
		return row, true
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	known := make(map[string]bool, len(*header))
	for _, h := range *header {
		known[h] = true
	}
	var extra []string
	for k := range obj {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	*header = append(*header, extra...)

	row := make([]string, len(*header))
	for i, h := range *header {
		row[i] = cellString(obj[h])
	}
	return row, true
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// pageCount prefers explicit metadata and falls back to the highest chunk page.
func pageCount(meta map[string]interface{}, maxPage int) int {
	for _, key := range []string{"page_count", "pages", "num_pages"} {
		if v, ok := meta[key].(float64); ok && v > 0 {
			return int(v)
		}
	}
	return maxPage + 1
}

func parseUploadTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ConvertChatResponse maps a chat reply; citations are resolved later
// against the current document.
func ConvertChatResponse(w *WireChatResponse) *models.ChatAnswer {
	answer := &models.ChatAnswer{
		DocumentID: w.DocumentID,
		Query:      w.Query,
		Answer:     w.Answer,
		Source:     w.Source,
		Sources:    make([]models.Citation, 0, len(w.Sources)),
	}
	for _, s := range w.Sources {
		answer.Sources = append(answer.Sources, models.Citation{
			ChunkID: s.ChunkID,
			Title:   s.Title,
			Page:    s.Page,
			Text:    s.Text,
		})
	}
	return answer
}
