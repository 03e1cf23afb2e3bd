package handlers

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-viewer/internal/crossview"
	"github.com/feichai0017/document-viewer/internal/service/document"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

const (
	defaultPageWidth = 800.0
	defaultDPR       = 1.0
)

type DocumentHandler struct {
	service document.DocumentViewer
	logger  logger.ContextLogger
}

func NewDocumentHandler(service document.DocumentViewer, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  logger.NewContextLogger(log.Named("documents")),
	}
}

// ListDocuments returns every known document in upload order.
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs := h.service.ListDocuments(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"total":     len(docs),
	})
}

// SelectDocument puts a document on screen and starts polling it.
func (h *DocumentHandler) SelectDocument(c *gin.Context) {
	view, err := h.service.SelectDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log(c), PanelPreview, "Failed to select document", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	view, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log(c), PanelPreview, "Failed to get document", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// RenderPages renders every page to the requested column width and device
// pixel ratio and returns the surface geometry.
func (h *DocumentHandler) RenderPages(c *gin.Context) {
	width, err := floatQuery(c, "width", defaultPageWidth)
	if err != nil {
		respondError(c, h.log(c), PanelPreview, "Invalid width", err)
		return
	}
	dpr, err := floatQuery(c, "dpr", defaultDPR)
	if err != nil {
		respondError(c, h.log(c), PanelPreview, "Invalid device pixel ratio", err)
		return
	}
	if width <= 0 || dpr <= 0 {
		respondError(c, h.log(c), PanelPreview, "Width and device pixel ratio must be positive", nil)
		return
	}

	surfaces, err := h.service.RenderPages(c.Request.Context(), c.Param("id"), width, dpr)
	if err != nil {
		respondError(c, h.log(c), PanelPreview, "Failed to render pages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documentId": c.Param("id"),
		"pages":      surfaces,
	})
}

func (h *DocumentHandler) Overlays(c *gin.Context) {
	page, ok := h.pageParam(c)
	if !ok {
		return
	}
	regions, err := h.service.Overlays(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		respondError(c, h.log(c), PanelPreview, "Failed to place overlays", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pageIndex": page,
		"regions":   regions,
	})
}

// PageImage streams the rendered page as PNG with the active highlight drawn in.
func (h *DocumentHandler) PageImage(c *gin.Context) {
	page, ok := h.pageParam(c)
	if !ok {
		return
	}
	img, err := h.service.PageImage(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		respondError(c, h.log(c), PanelPreview, "Failed to get page image", err)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		respondError(c, h.log(c), PanelPreview, "Failed to encode page image", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// PointerRequest is a pointer position in logical pixels of one page.
type PointerRequest struct {
	X    *float64                  `json:"x" binding:"required"`
	Y    *float64                  `json:"y" binding:"required"`
	Type crossview.InteractionType `json:"type"`
}

// Pointer resolves a pointer position to the chunk under it and highlights it.
func (h *DocumentHandler) Pointer(c *gin.Context) {
	page, ok := h.pageParam(c)
	if !ok {
		return
	}
	var req PointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.log(c), PanelPreview, "Invalid pointer request", fmt.Errorf("%v: %w", err, errBadRequest))
		return
	}
	switch req.Type {
	case "":
		req.Type = crossview.InteractionHover
	case crossview.InteractionHover, crossview.InteractionLeave, crossview.InteractionClick:
	default:
		respondError(c, h.log(c), PanelPreview, "Invalid pointer request", fmt.Errorf("type %q: %w", req.Type, errBadRequest))
		return
	}

	chunkID, err := h.service.Pointer(c.Request.Context(), c.Param("id"), page, *req.X, *req.Y, req.Type)
	if err != nil {
		respondError(c, h.log(c), PanelPreview, "Failed to resolve pointer", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunkId": chunkID})
}

func (h *DocumentHandler) Labels(c *gin.Context) {
	labels, err := h.service.Labels(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log(c), PanelPreview, "Failed to get labels", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"labels": labels})
}

func (h *DocumentHandler) pageParam(c *gin.Context) (int, bool) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil || page < 0 {
		respondError(c, h.log(c), PanelPreview, "Invalid page index", fmt.Errorf("page %q: %w", c.Param("page"), errBadRequest))
		return 0, false
	}
	return page, true
}

func (h *DocumentHandler) log(c *gin.Context) logger.Logger {
	return h.logger.FromContext(c.Request.Context())
}

func floatQuery(c *gin.Context, key string, def float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v: %w", key, raw, err, errBadRequest)
	}
	return v, nil
}
