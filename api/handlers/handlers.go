package handlers

import (
	"github.com/feichai0017/document-viewer/internal/service/document"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
	Export   *ExportHandler
	Chat     *ChatHandler
	Sync     *SyncHandler
}

func NewHandlers(
	documentService document.DocumentViewer,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documentService, logger),
		Export:   NewExportHandler(documentService, logger),
		Chat:     NewChatHandler(documentService, logger),
		Sync:     NewSyncHandler(documentService, logger),
	}
}
