package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-viewer/api/handlers"
	"github.com/feichai0017/document-viewer/api/middleware"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

// SetupRoutes registers every API route on r.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, allowedOrigins []string, log logger.Logger) {
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORS(allowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")

	docs := v1.Group("/documents")
	{
		docs.GET("", h.Document.ListDocuments)
		docs.GET("/:id", h.Document.GetDocument)
		docs.POST("/:id/select", h.Document.SelectDocument)
		docs.GET("/:id/pages", h.Document.RenderPages)
		docs.GET("/:id/pages/:page/overlays", h.Document.Overlays)
		docs.GET("/:id/pages/:page/image", h.Document.PageImage)
		docs.POST("/:id/pages/:page/pointer", h.Document.Pointer)
		docs.GET("/:id/labels", h.Document.Labels)

		docs.GET("/:id/export/text", h.Export.ExportText)
		docs.GET("/:id/export/html", h.Export.ExportHTML)
		docs.POST("/:id/export/raster", h.Export.ExportRaster)
		docs.POST("/:id/report", h.Export.GenerateReport)

		docs.POST("/:id/chat", h.Chat.Ask)
		docs.GET("/:id/sync", h.Sync.HandleWebSocket)
	}

	exports := v1.Group("/exports")
	{
		exports.GET("/:taskId", h.Export.GetStatus)
		exports.GET("/:taskId/download", h.Export.Download)
	}
}
