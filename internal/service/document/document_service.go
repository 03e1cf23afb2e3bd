package document

import (
	"context"
	"image"
	"io"

	"github.com/feichai0017/document-viewer/internal/crossview"
	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/internal/reconciler"
	"github.com/feichai0017/document-viewer/pkg/queue"
)

// Collaborator is everything the viewer needs from the extraction service.
type Collaborator interface {
	reconciler.Collaborator
	FetchFile(ctx context.Context, documentID string) ([]byte, error)
	GenerateReport(ctx context.Context, documentID string) (string, error)
	Chat(ctx context.Context, documentID, query string) (*models.ChatAnswer, error)
}

// DocumentViewer is the surface the API and the export worker use.
type DocumentViewer interface {
	Start(ctx context.Context) error
	Stop()

	ListDocuments(ctx context.Context) []models.Document
	SelectDocument(ctx context.Context, documentID string) (*DocumentView, error)
	GetDocument(ctx context.Context, documentID string) (*DocumentView, error)

	RenderPages(ctx context.Context, documentID string, width, dpr float64) ([]models.RenderSurface, error)
	Overlays(ctx context.Context, documentID string, pageIndex int) ([]models.OverlayRegion, error)
	PageImage(ctx context.Context, documentID string, pageIndex int) (image.Image, error)
	Labels(ctx context.Context, documentID string) (map[string]string, error)
	Resize(ctx context.Context, documentID string, width, dpr float64) error
	SubscribePages(fn func(PagesUpdate)) func()
	Pointer(ctx context.Context, documentID string, pageIndex int, x, y float64, kind crossview.InteractionType) (string, error)

	ExportText(ctx context.Context, documentID string) (string, error)
	ExportHTML(ctx context.Context, documentID string) (string, error)
	EnqueueExport(ctx context.Context, documentID string, format models.ExportFormat) (*models.ExportTask, error)
	GetExportStatus(ctx context.Context, taskID string) (*models.ExportTask, error)
	OpenArtifact(ctx context.Context, taskID string) (io.ReadCloser, *models.ExportTask, error)
	HandleExport(ctx context.Context, task *queue.Task) error
	CleanupExports(ctx context.Context) error

	Chat(ctx context.Context, documentID, query string) (*models.ChatAnswer, error)
	Session() *crossview.Session
	Subscribe(fn func(reconciler.Event)) func()
}
