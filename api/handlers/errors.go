package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/internal/service/document"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

// Panel names the part of the screen an error is shown in.
type Panel string

const (
	PanelPreview Panel = "preview"
	PanelChat    Panel = "chat"
	PanelExport  Panel = "export"
)

var errBadRequest = errors.New("bad request")

// ErrorResponse is rendered inline by the panel it names.
type ErrorResponse struct {
	Panel      Panel  `json:"panel"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		decodeErr  *models.DecodeError
		networkErr *models.NetworkError
		exportErr  *models.ExportError
	)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, errBadRequest), errors.Is(err, document.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &networkErr):
		return http.StatusBadGateway
	case errors.As(err, &exportErr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, log logger.Logger, panel Panel, message string, err error) {
	if err == nil {
		err = errBadRequest
	}
	if models.IsStale(err) {
		// the panel already moved on; nothing to show
		log.Debug("Dropping stale request",
			logger.String("path", c.Request.URL.Path),
			logger.String("panel", string(panel)),
			logger.Error(err),
		)
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	status := statusFor(err)
	resp := ErrorResponse{Panel: panel, Message: message, Error: err.Error()}
	var exportErr *models.ExportError
	if errors.As(err, &exportErr) {
		resp.Suggestion = exportErr.Suggestion()
	}

	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.String("panel", string(panel)),
		logger.Int("status", status),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}
	c.AbortWithStatusJSON(status, resp)
}
