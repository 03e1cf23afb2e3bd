package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotReady       = errors.New("document is not complete")
	ErrStaleReference = errors.New("stale reference")
)

// DecodeError means the source file cannot be rendered. It is terminal for the
// document; the preview panel shows "preview unavailable".
type DecodeError struct {
	DocumentID string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("preview unavailable for document %s: %v", e.DocumentID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NetworkError is a failed collaborator call. Polling retries on the next tick.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StaleReferenceError names the chunk or document that is no longer current.
// Callers treat it as a silent no-op.
type StaleReferenceError struct {
	DocumentID string
	ChunkID    string
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("stale reference: document %q chunk %q", e.DocumentID, e.ChunkID)
}

func (e *StaleReferenceError) Is(target error) bool { return target == ErrStaleReference }

// ExportFallback is shown next to any raster export failure.
const ExportFallback = "use the plain-text export instead"

// ExportError is a rasterization or pagination failure.
type ExportError struct {
	Op  string
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s failed: %v (%s)", e.Op, e.Err, ExportFallback)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Suggestion returns the fallback the export panel offers.
func (e *ExportError) Suggestion() string { return ExportFallback }

// IsStale reports whether err should be swallowed as a stale reference.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleReference)
}
