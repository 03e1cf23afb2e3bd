package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

// DocumentValidator checks records and source files before they reach the views.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64
	AllowedTypes []string
	MaxPageCount int
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Hash     string `json:"hash"`
}

func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 100 * 1024 * 1024,
		AllowedTypes: []string{
			"application/pdf",
			"image/png",
			"image/jpeg",
			"image/gif",
			"image/bmp",
			"image/tiff",
		},
		MaxPageCount: 2000,
	}
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	return &DocumentValidator{logger: log.Named("validator"), config: config}
}

// Sanitize returns a copy of doc that is safe to place and label. Chunks
// without an identity and repeated identities are dropped. Box fractions are
// clamped to [0,1] and inverted edges swapped. Whatever Validate reports is
// logged once. The input is not modified.
func (v *DocumentValidator) Sanitize(doc *models.Document) *models.Document {
	if doc == nil {
		return nil
	}
	if res := v.Validate(doc); !res.IsValid {
		codes := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			codes = append(codes, e.Code)
		}
		v.logger.Warn("Repairing document record",
			logger.DocumentID(doc.ID),
			logger.Strings("issues", codes),
		)
	}

	out := doc.Clone()
	chunks := out.Chunks[:0]
	seen := make(map[string]bool, len(out.Chunks))
	for _, c := range out.Chunks {
		// first occurrence of an id wins
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Page != nil && (*c.Page < 0 || (out.Pages > 0 && *c.Page >= out.Pages)) {
			v.logger.Debug("Chunk page outside document",
				logger.DocumentID(out.ID),
				logger.ChunkID(c.ID),
				logger.Int("page", *c.Page),
			)
		}
		c.Box = NormalizeBox(c.Box)
		chunks = append(chunks, c)
	}
	out.Chunks = chunks
	for i := range out.Tables {
		out.Tables[i].Box = NormalizeBox(out.Tables[i].Box)
	}
	return out
}

// Validate reports problems with a record without changing it.
func (v *DocumentValidator) Validate(doc *models.Document) *ValidationResult {
	result := &ValidationResult{IsValid: true}
	if doc == nil || doc.ID == "" {
		result.add("MISSING_ID", "document has no id", "id")
		return result
	}
	seen := make(map[string]bool, len(doc.Chunks))
	for i, c := range doc.Chunks {
		field := fmt.Sprintf("chunks[%d]", i)
		switch {
		case c.ID == "":
			result.add("MISSING_CHUNK_ID", "chunk has no id", field)
		case seen[c.ID]:
			result.add("DUPLICATE_CHUNK_ID", fmt.Sprintf("chunk id %s appears more than once", c.ID), field)
		}
		seen[c.ID] = true
		if NormalizeBox(c.Box) != c.Box {
			result.add("INVALID_BOX", fmt.Sprintf("chunk %s box is out of range or inverted", c.ID), field+".box")
		}
	}
	return result
}

// ValidateSource checks the raw source bytes of a document.
func (v *DocumentValidator) ValidateSource(data []byte, pageCount int) *ValidationResult {
	mtype := mimetype.Detect(data)
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Size:     int64(len(data)),
			MimeType: mtype.String(),
			Hash:     calculateHash(data),
		},
	}

	if result.FileInfo.Size == 0 {
		result.add("EMPTY_FILE", "source file is empty", "size")
	}
	if result.FileInfo.Size > v.config.MaxFileSize {
		result.add("FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize), "size")
	}

	allowed := false
	for _, t := range v.config.AllowedTypes {
		if mtype.Is(t) {
			allowed = true
			break
		}
	}
	if !allowed && result.FileInfo.Size > 0 {
		result.add("INVALID_MIME_TYPE", fmt.Sprintf("Unsupported source type %s", mtype.String()), "mimeType")
	}
	if v.config.MaxPageCount > 0 && pageCount > v.config.MaxPageCount {
		result.add("TOO_MANY_PAGES",
			fmt.Sprintf("Document has %d pages, limit is %d", pageCount, v.config.MaxPageCount), "pages")
	}

	if !result.IsValid {
		v.logger.Warn("Source validation failed",
			logger.String("mimeType", result.FileInfo.MimeType),
			logger.Int("errors", len(result.Errors)),
		)
	}
	return result
}

func (r *ValidationResult) add(code, message, field string) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Code: code, Message: message, Field: field})
}

// NormalizeBox clamps every edge to [0,1] and swaps inverted edges.
// NaN edges become 0.
func NormalizeBox(b models.BoundingBox) models.BoundingBox {
	b.Left, b.Top = clamp01(b.Left), clamp01(b.Top)
	b.Right, b.Bottom = clamp01(b.Right), clamp01(b.Bottom)
	if b.Left > b.Right {
		b.Left, b.Right = b.Right, b.Left
	}
	if b.Top > b.Bottom {
		b.Top, b.Bottom = b.Bottom, b.Top
	}
	return b
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func calculateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
