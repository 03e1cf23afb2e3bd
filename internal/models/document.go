package models

import (
	"time"
)

// DocumentStatus is the processing lifecycle of a document record.
type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusComplete   DocumentStatus = "complete"
	StatusError      DocumentStatus = "error"
)

// IsTerminal reports whether no further status transitions are expected.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// ChunkKind classifies an extracted region.
type ChunkKind string

const (
	KindText       ChunkKind = "text"
	KindTable      ChunkKind = "table"
	KindChart      ChunkKind = "chart"
	KindMarginalia ChunkKind = "marginalia"
)

// Document is a processed (or processing) upload as seen by the viewer.
type Document struct {
	ID             string                 `json:"id"`
	Filename       string                 `json:"filename"`
	Status         DocumentStatus         `json:"status"`
	StatusMessage  string                 `json:"statusMessage,omitempty"`
	Progress       float64                `json:"progress"`
	Pages          int                    `json:"pages"`
	StructuredText string                 `json:"structuredText,omitempty"`
	Chunks         []Chunk                `json:"chunks,omitempty"`
	Tables         []Table                `json:"tables,omitempty"`
	Summary        string                 `json:"summary,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	UploadedAt     time.Time              `json:"uploadedAt,omitempty"`
}

// HasPayload reports whether the heavyweight part of the record is present.
// Status and payload travel independently, so a complete status alone is not enough.
func (d *Document) HasPayload() bool {
	if d == nil {
		return false
	}
	return len(d.Chunks) > 0 || d.StructuredText != ""
}

// IsComplete reports whether the record can be shown in full.
func (d *Document) IsComplete() bool {
	return d != nil && d.Status == StatusComplete && d.HasPayload()
}

// Chunk returns the chunk with the given identity.
func (d *Document) Chunk(id string) (*Chunk, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.Chunks {
		if d.Chunks[i].ID == id {
			return &d.Chunks[i], true
		}
	}
	return nil, false
}

// Clone returns a copy that shares no slices or maps with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	if d.Chunks != nil {
		out.Chunks = make([]Chunk, len(d.Chunks))
		copy(out.Chunks, d.Chunks)
	}
	if d.Tables != nil {
		out.Tables = make([]Table, len(d.Tables))
		copy(out.Tables, d.Tables)
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Chunk is one structurally distinct region produced by the extraction service.
// Chunks are immutable once received.
type Chunk struct {
	ID       string      `json:"id"`
	Kind     ChunkKind   `json:"kind"`
	Page     *int        `json:"page,omitempty"`
	Box      BoundingBox `json:"box"`
	Content  string      `json:"content"`
	Text     string      `json:"text,omitempty"`
	ParentID string      `json:"parentId,omitempty"`
}

// OnPage reports whether the chunk is shown on the given page. Chunks without
// a page are shown everywhere.
func (c Chunk) OnPage(pageIndex int) bool {
	return c.Page == nil || *c.Page == pageIndex
}

// Table is a denormalized table extract.
type Table struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Header []string    `json:"header"`
	Rows   [][]string  `json:"rows"`
	Page   *int        `json:"page,omitempty"`
	Box    BoundingBox `json:"box"`
}

// PageOf is a helper for building *int page references.
func PageOf(i int) *int {
	return &i
}
