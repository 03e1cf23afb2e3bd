package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/internal/service/document"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

type ExportHandler struct {
	service document.DocumentViewer
	logger  logger.ContextLogger
}

func NewExportHandler(service document.DocumentViewer, log logger.Logger) *ExportHandler {
	return &ExportHandler{
		service: service,
		logger:  logger.NewContextLogger(log.Named("exports")),
	}
}

// ExportText downloads the plain-text export. It works for any complete
// document and is the fallback when a raster export fails.
func (h *ExportHandler) ExportText(c *gin.Context) {
	documentID := c.Param("id")
	text, err := h.service.ExportText(c.Request.Context(), documentID)
	if err != nil {
		respondError(c, h.log(c), PanelExport, "Failed to export text", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.txt", documentID))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

func (h *ExportHandler) ExportHTML(c *gin.Context) {
	html, err := h.service.ExportHTML(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log(c), PanelExport, "Failed to export HTML", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// ExportRaster queues a paginated raster PDF of the structured view.
func (h *ExportHandler) ExportRaster(c *gin.Context) {
	h.enqueue(c, models.ExportRaster)
}

// GenerateReport queues the collaborator-written report rendered as PDF.
func (h *ExportHandler) GenerateReport(c *gin.Context) {
	h.enqueue(c, models.ExportReport)
}

func (h *ExportHandler) enqueue(c *gin.Context, format models.ExportFormat) {
	task, err := h.service.EnqueueExport(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		respondError(c, h.log(c), PanelExport, "Failed to queue export", err)
		return
	}
	h.log(c).Info("Export queued",
		logger.TaskID(task.ID),
		logger.DocumentID(task.DocumentID),
		logger.String("format", string(format)),
	)
	c.JSON(http.StatusAccepted, task)
}

func (h *ExportHandler) GetStatus(c *gin.Context) {
	task, err := h.service.GetExportStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		respondError(c, h.log(c), PanelExport, "Failed to get export status", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Download streams a completed export artifact.
func (h *ExportHandler) Download(c *gin.Context) {
	taskID := c.Param("taskId")
	rc, task, err := h.service.OpenArtifact(c.Request.Context(), taskID)
	if err != nil {
		if task != nil && task.Status == models.TaskFailed {
			c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{
				Panel:      PanelExport,
				Error:      task.Error,
				Message:    "Export failed",
				Suggestion: task.Suggestion,
			})
			return
		}
		respondError(c, h.log(c), PanelExport, "Failed to download export", err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s-%s.pdf", task.DocumentID, task.Format))
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.log(c).Warn("Failed to stream export", logger.TaskID(taskID), logger.Error(err))
	}
}

func (h *ExportHandler) log(c *gin.Context) logger.Logger {
	return h.logger.FromContext(c.Request.Context())
}
