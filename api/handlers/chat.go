package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-viewer/internal/service/document"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

type ChatRequest struct {
	Query string `json:"query" binding:"required"`
}

type ChatHandler struct {
	service document.DocumentViewer
	logger  logger.ContextLogger
}

func NewChatHandler(service document.DocumentViewer, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger.NewContextLogger(log.Named("chat")),
	}
}

// Ask sends a question about a document and returns the answer with its
// citations resolved to chips.
func (h *ChatHandler) Ask(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger.FromContext(c.Request.Context()), PanelChat, "Invalid chat request",
			fmt.Errorf("%v: %w", err, errBadRequest))
		return
	}
	answer, err := h.service.Chat(c.Request.Context(), c.Param("id"), req.Query)
	if err != nil {
		respondError(c, h.logger.FromContext(c.Request.Context()), PanelChat, "Chat failed", err)
		return
	}
	c.JSON(http.StatusOK, answer)
}
