package models

import (
	"time"
)

// ExportFormat selects the output of an asynchronous export.
type ExportFormat string

const (
	ExportRaster ExportFormat = "raster"
	ExportReport ExportFormat = "report"
)

// ExportTask tracks one queued export.
type ExportTask struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"documentId"`
	Format      ExportFormat      `json:"format"`
	Status      ProcessingStatus  `json:"status"`
	Progress    float64           `json:"progress"`
	Error       string            `json:"error,omitempty"`
	Suggestion  string            `json:"suggestion,omitempty"`
	ArtifactKey string            `json:"artifactKey,omitempty"`
	Pages       int               `json:"pages,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	TaskPending   ProcessingStatus = "pending"
	TaskRunning   ProcessingStatus = "running"
	TaskCompleted ProcessingStatus = "completed"
	TaskFailed    ProcessingStatus = "failed"
	TaskCancelled ProcessingStatus = "cancelled"
)
