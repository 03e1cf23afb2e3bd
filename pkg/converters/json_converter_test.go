package converters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-viewer/internal/models"
)

const detailJSON = `{
  "document_id": "d1",
  "filename": "statement.pdf",
  "status": "completed",
  "upload_time": "2024-03-01T10:00:00.123456",
  "document_markdown": "# Statement",
  "detected_chunks": [
    {"id": "c1", "type": "table", "text": "a b", "markdown": "| a | b |", "page": 0, "box": {"left": 0.1, "top": 0.1, "right": 0.9, "bottom": 0.3}},
    {"id": "c2", "type": "marginal", "text": "note", "page": 2, "box": null},
    {"id": "c3", "type": "text", "text": "floating", "page": null}
  ],
  "tables": [
    {"id": "t1", "title": "Totals", "header": ["Item"], "rows": [["Rent", 1200], {"Item": "Food", "Amount": 300.5}], "page": 0}
  ],
  "summary": "A statement"
}`

func TestDecodeDocument(t *testing.T) {
	doc, err := NewJSONConverter().DecodeDocument([]byte(detailJSON))
	require.NoError(t, err)

	assert.Equal(t, "d1", doc.ID)
	assert.Equal(t, models.StatusComplete, doc.Status)
	assert.True(t, doc.IsComplete())
	assert.Equal(t, 3, doc.Pages)
	assert.Equal(t, 2024, doc.UploadedAt.Year())

	require.Len(t, doc.Chunks, 3)
	assert.Equal(t, models.KindTable, doc.Chunks[0].Kind)
	assert.Equal(t, "| a | b |", doc.Chunks[0].Content)
	assert.Equal(t, "a b", doc.Chunks[0].Text)
	assert.Equal(t, 0.9, doc.Chunks[0].Box.Right)
	assert.Equal(t, models.KindMarginalia, doc.Chunks[1].Kind)
	assert.True(t, doc.Chunks[1].Box.IsDegenerate())
	assert.Nil(t, doc.Chunks[2].Page)
	assert.Equal(t, "floating", doc.Chunks[2].Content)

	require.Len(t, doc.Tables, 1)
	table := doc.Tables[0]
	assert.Equal(t, []string{"Item", "Amount"}, table.Header)
	assert.Equal(t, [][]string{{"Rent", "1200"}, {"Food", "300.5"}}, table.Rows)
}

func TestDecodeList_SkipsRecordsWithoutID(t *testing.T) {
	docs, err := NewJSONConverter().DecodeList([]byte(`[
		{"document_id": "a", "filename": "a.pdf", "status": "uploaded", "upload_time": "unknown"},
		{"filename": "orphan.pdf", "status": "processing"},
		{"document_id": "b", "filename": "b.pdf", "status": "error", "metadata": {"page_count": 4}}
	]`))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, models.StatusQueued, docs[0].Status)
	assert.False(t, docs[0].HasPayload())
	assert.True(t, docs[0].UploadedAt.IsZero())
	assert.Equal(t, 0, docs[0].Pages)
	assert.Equal(t, models.StatusError, docs[1].Status)
	assert.Equal(t, 4, docs[1].Pages)
}

func TestConvertStatus(t *testing.T) {
	cases := map[string]models.DocumentStatus{
		"uploaded":   models.StatusQueued,
		"pending":    models.StatusQueued,
		"queued":     models.StatusQueued,
		"processing": models.StatusProcessing,
		"Complete":   models.StatusComplete,
		"completed":  models.StatusComplete,
		"failed":     models.StatusError,
		"error":      models.StatusError,
	}
	for in, want := range cases {
		assert.Equal(t, want, ConvertStatus(in), in)
	}
}

func TestConvertChatResponse(t *testing.T) {
	answer := ConvertChatResponse(&WireChatResponse{
		DocumentID: "d1",
		Query:      "total?",
		Answer:     "1200",
		Source:     "landing_ai",
		Sources: []WireSource{
			{ChunkID: "c1", Title: "Totals", Page: models.PageOf(0)},
			{ChunkID: "c1", Title: "Totals", Page: models.PageOf(0)},
		},
	})
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "c1", answer.Sources[1].ChunkID)
	assert.Equal(t, "landing_ai", answer.Source)
}
