package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cfg "github.com/feichai0017/document-viewer/config"
	"github.com/feichai0017/document-viewer/internal/crossview"
	"github.com/feichai0017/document-viewer/internal/export"
	"github.com/feichai0017/document-viewer/internal/geometry"
	"github.com/feichai0017/document-viewer/internal/labels"
	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/internal/reconciler"
	"github.com/feichai0017/document-viewer/internal/render"
	"github.com/feichai0017/document-viewer/internal/utils/validator"
	"github.com/feichai0017/document-viewer/pkg/client"
	"github.com/feichai0017/document-viewer/pkg/logger"
	"github.com/feichai0017/document-viewer/pkg/queue"
	"github.com/feichai0017/document-viewer/pkg/storage"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// DocumentView is what the API returns for one document.
type DocumentView struct {
	Document  *models.Document  `json:"document"`
	Labels    map[string]string `json:"labels,omitempty"`
	Selected  bool              `json:"selected"`
	Overdue   bool              `json:"overdue"`
	Rendering bool              `json:"rendering"`
	Polling   bool              `json:"polling"`
}

type ServiceConfig struct {
	QueuePriority   int
	ExportRetention time.Duration
	ArtifactPrefix  string
	MaxSources      int
	ResizeDebounce  time.Duration
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		QueuePriority:   2,
		ExportRetention: 72 * time.Hour,
		ArtifactPrefix:  "exports",
		MaxSources:      8,
		ResizeDebounce:  150 * time.Millisecond,
	}
}

type DocumentService struct {
	client     Collaborator
	reconciler *reconciler.Reconciler
	renderer   *render.Renderer
	resizer    *render.ResizeController
	exporter   *export.Exporter
	validator  *validator.DocumentValidator
	queue      queue.Queue
	storage    storage.Storage
	session    *crossview.Session
	logger     logger.Logger
	config     *ServiceConfig
	now        func() time.Time

	mu          sync.Mutex
	sources     map[string][]byte
	sourceOrder []string
	unsubscribe func()
	closers     []func()
	pageSubs    map[int]func(PagesUpdate)
	nextPageSub int
}

var (
	_ DocumentViewer           = (*DocumentService)(nil)
	_ Collaborator             = (*client.Client)(nil)
	_ reconciler.StatusChecker = (*client.Client)(nil)
)

func NewService(
	collaborator Collaborator,
	rec *reconciler.Reconciler,
	renderer *render.Renderer,
	exporter *export.Exporter,
	q queue.Queue,
	store storage.Storage,
	log logger.Logger,
	config *ServiceConfig,
) *DocumentService {
	if config == nil {
		config = DefaultServiceConfig()
	}
	log = log.Named("document")
	s := &DocumentService{
		client:     collaborator,
		reconciler: rec,
		renderer:   renderer,
		exporter:   exporter,
		validator:  validator.NewDocumentValidator(log, nil),
		queue:      q,
		storage:    store,
		session:    crossview.NewSession(log),
		logger:     log,
		config:     config,
		now:        time.Now,
		sources:    make(map[string][]byte),
		pageSubs:   make(map[int]func(PagesUpdate)),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.resizer = render.NewResizeController(ctx, renderer, config.ResizeDebounce, s.onResized)
	s.closers = []func(){cancel, s.resizer.Close}
	return s
}

// GetService wires a DocumentService from the process configuration.
func GetService(log logger.Logger) (*DocumentService, error) {
	appCfg := cfg.GetAppConfig()
	redisCfg := cfg.GetRedisConfig()

	c := client.NewClient(appCfg.CollaboratorURL, appCfg.CollaboratorAPIKey, log,
		client.WithTimeout(appCfg.CollaboratorTimeout))
	v := validator.NewDocumentValidator(log, nil)

	var closers []func()
	var cache reconciler.Cache = reconciler.NewMemoryCache()
	if appCfg.CacheBackend == "redis" {
		rc, err := reconciler.NewRedisCache(reconciler.RedisCacheConfig{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
			Prefix:   "docview:document:",
			TTL:      appCfg.CacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize document cache: %w", err)
		}
		cache = rc
		closers = append(closers, func() { rc.Close() })
	}

	rec := reconciler.New(c, reconciler.Config{
		PollInterval:    appCfg.PollInterval,
		MaxPollDuration: appCfg.MaxPollDuration,
		FetchTimeout:    appCfg.CollaboratorTimeout,
	}, log, reconciler.WithCache(cache), reconciler.WithSanitizer(v))

	store, err := storage.NewStorage(storage.StorageType(appCfg.StorageType), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	q, err := queue.NewAsynqQueue(&queue.QueueConfig{
		RedisAddr:     redisCfg.Addr,
		RedisPassword: redisCfg.Password,
		RedisDB:       redisCfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	closers = append(closers, func() { q.Close() })

	capturer := export.NewChromeCapturer(export.ChromeConfig{
		ExecPath:  appCfg.ChromePath,
		NoSandbox: appCfg.ChromeNoSandbox,
	}, log)
	closers = append(closers, capturer.Close)

	config := DefaultServiceConfig()
	config.ExportRetention = appCfg.ExportRetention
	if appCfg.ResizeDebounce > 0 {
		config.ResizeDebounce = appCfg.ResizeDebounce
	}

	svc := NewService(c, rec, render.NewRenderer(nil, log), export.NewExporter(capturer, log), q, store, log, config)
	svc.validator = v
	svc.closers = append(svc.closers, closers...)
	return svc, nil
}

// Start loads the document list and begins polling.
func (s *DocumentService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubscribe == nil {
		s.unsubscribe = s.reconciler.Subscribe(s.onEvent)
	}
	s.mu.Unlock()
	return s.reconciler.Start(ctx)
}

func (s *DocumentService) Stop() {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	s.reconciler.Stop()
	for _, fn := range closers {
		fn()
	}
}

// onEvent refreshes the on-screen views when the full payload of the shown
// document lands.
func (s *DocumentService) onEvent(ev reconciler.Event) {
	if ev.Type != reconciler.EventPayload || ev.DocumentID != s.session.DocumentID() {
		return
	}
	doc, ok := s.reconciler.Document(ev.DocumentID)
	if !ok {
		return
	}
	surfaces, _ := s.renderer.Surfaces(ev.DocumentID)
	s.session.Load(doc, surfaces)
}

func (s *DocumentService) ListDocuments(ctx context.Context) []models.Document {
	return reconciler.DedupeByFilename(s.reconciler.Summaries())
}

// SelectDocument makes documentID the one on screen. Views of the previous
// document are reset.
func (s *DocumentService) SelectDocument(ctx context.Context, documentID string) (*DocumentView, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document id is required: %w", models.ErrNotFound)
	}
	state := s.reconciler.Select(ctx, documentID)

	doc, ok := s.reconciler.Document(documentID)
	shown := doc
	if !ok || doc == nil {
		shown = &models.Document{ID: documentID, Status: models.StatusQueued}
	}
	surfaces, _ := s.renderer.Surfaces(documentID)
	s.session.Load(shown, surfaces)

	s.logger.Info("Document selected",
		logger.DocumentID(documentID),
		logger.String("status", string(shown.Status)),
		logger.Bool("complete", shown.IsComplete()),
	)
	return &DocumentView{
		Document:  doc,
		Labels:    state.Labels.Snapshot(),
		Selected:  true,
		Overdue:   state.Overdue(),
		Rendering: state.Rendering(),
		Polling:   s.reconciler.Polling(),
	}, nil
}

func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*DocumentView, error) {
	doc, ok := s.reconciler.Document(documentID)
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	view := &DocumentView{Document: doc, Polling: s.reconciler.Polling()}
	if state, ok := s.reconciler.State(documentID); ok {
		view.Selected = true
		view.Labels = state.Labels.Snapshot()
		view.Overdue = state.Overdue()
		view.Rendering = state.Rendering()
	}
	return view, nil
}

// RenderPages renders the selected document at the given container width.
// A result for a document that lost the selection mid-render is dropped.
func (s *DocumentService) RenderPages(ctx context.Context, documentID string, width, dpr float64) ([]models.RenderSurface, error) {
	state, ok := s.reconciler.State(documentID)
	if !ok {
		return nil, &models.StaleReferenceError{DocumentID: documentID}
	}
	if derr, failed := s.renderer.Failure(documentID); failed {
		return nil, derr
	}
	data, err := s.source(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if state.BeginRender() {
		defer state.EndRender(documentID)
	}
	surfaces, err := s.renderer.Render(ctx, render.Source{DocumentID: documentID, Data: data}, width, dpr)
	if err != nil {
		s.logger.Warn("Render failed", logger.DocumentID(documentID), logger.Error(err))
		return nil, err
	}

	if _, ok := s.reconciler.State(documentID); !ok {
		return nil, &models.StaleReferenceError{DocumentID: documentID}
	}
	if doc, ok := s.reconciler.Document(documentID); ok {
		s.session.Load(doc, surfaces)
	}
	return surfaces, nil
}

// source returns the file behind documentID. The first load fetches the
// file and the full record concurrently.
func (s *DocumentService) source(ctx context.Context, documentID string) ([]byte, error) {
	s.mu.Lock()
	data, ok := s.sources[documentID]
	s.mu.Unlock()
	if ok {
		return data, nil
	}

	var detail *models.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.client.FetchFile(gctx, documentID)
		if err != nil {
			return fmt.Errorf("failed to fetch source file: %w", err)
		}
		data = b
		return nil
	})
	g.Go(func() error {
		d, err := s.client.GetDocument(gctx, documentID)
		if err != nil {
			// the preview does not depend on the record; polling retries it
			s.logger.Warn("Detail fetch failed", logger.DocumentID(documentID), logger.Error(err))
			return nil
		}
		detail = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if detail != nil {
		s.reconciler.Apply(ctx, detail)
	}

	pages, err := render.CountPages(data)
	if err != nil {
		pages = 0
	}
	if res := s.validator.ValidateSource(data, pages); !res.IsValid {
		return nil, s.renderer.Fail(documentID, errors.New(res.Errors[0].Message))
	}
	s.logger.Debug("Source loaded",
		logger.DocumentID(documentID),
		logger.Int("bytes", len(data)),
		logger.Int("pages", pages),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[documentID]; !ok {
		s.sourceOrder = append(s.sourceOrder, documentID)
	}
	s.sources[documentID] = data
	for len(s.sourceOrder) > s.config.MaxSources {
		oldest := s.sourceOrder[0]
		s.sourceOrder = s.sourceOrder[1:]
		delete(s.sources, oldest)
		s.renderer.Forget(oldest)
	}
	return data, nil
}

func (s *DocumentService) surface(documentID string, pageIndex int) (models.RenderSurface, *models.Document, error) {
	if _, ok := s.reconciler.State(documentID); !ok {
		return models.RenderSurface{}, nil, &models.StaleReferenceError{DocumentID: documentID}
	}
	surfaces, ok := s.renderer.Surfaces(documentID)
	if !ok {
		return models.RenderSurface{}, nil, fmt.Errorf("document %s has not been rendered: %w", documentID, models.ErrNotReady)
	}
	if pageIndex < 0 || pageIndex >= len(surfaces) {
		return models.RenderSurface{}, nil, fmt.Errorf("page %d: %w", pageIndex, models.ErrNotFound)
	}
	doc, _ := s.reconciler.Document(documentID)
	return surfaces[pageIndex], doc, nil
}

// Overlays places the chunks of one rendered page.
func (s *DocumentService) Overlays(ctx context.Context, documentID string, pageIndex int) ([]models.OverlayRegion, error) {
	surface, doc, err := s.surface(documentID, pageIndex)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return []models.OverlayRegion{}, nil
	}
	return geometry.PlaceOverlay(doc.Chunks, surface, pageIndex), nil
}

// PageImage returns the page raster with the overlay boxes and the active
// chunk composited on top.
func (s *DocumentService) PageImage(ctx context.Context, documentID string, pageIndex int) (image.Image, error) {
	surface, doc, err := s.surface(documentID, pageIndex)
	if err != nil {
		return nil, err
	}
	var regions []models.OverlayRegion
	if doc != nil {
		regions = geometry.PlaceOverlay(doc.Chunks, surface, pageIndex)
	}
	active := ""
	if s.session.DocumentID() == documentID {
		active = s.session.Synchronizer().Active()
	}
	img := geometry.DrawHighlights(surface, regions, active)
	if img == nil {
		return nil, fmt.Errorf("page %d has no raster: %w", pageIndex, models.ErrNotReady)
	}
	return img, nil
}

func (s *DocumentService) Labels(ctx context.Context, documentID string) (map[string]string, error) {
	state, ok := s.reconciler.State(documentID)
	if !ok {
		return nil, &models.StaleReferenceError{DocumentID: documentID}
	}
	return state.Labels.Snapshot(), nil
}

// exportable returns a complete record and the allocator its labels come
// from. Documents that are not on screen get a fresh allocator, which
// yields the same labels for the same chunk order.
func (s *DocumentService) exportable(documentID string) (*models.Document, *labels.Allocator, error) {
	doc, ok := s.reconciler.Document(documentID)
	if !ok {
		return nil, nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	if !doc.IsComplete() {
		return nil, nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotReady)
	}
	return doc, s.allocatorFor(doc), nil
}

func (s *DocumentService) allocatorFor(doc *models.Document) *labels.Allocator {
	if state, ok := s.reconciler.State(doc.ID); ok {
		state.Labels.Preassign(doc.Chunks)
		return state.Labels
	}
	alloc := labels.NewAllocator()
	alloc.Preassign(doc.Chunks)
	return alloc
}

func (s *DocumentService) ExportText(ctx context.Context, documentID string) (string, error) {
	doc, alloc, err := s.exportable(documentID)
	if err != nil {
		return "", err
	}
	return export.ToPortableText(doc, alloc), nil
}

func (s *DocumentService) ExportHTML(ctx context.Context, documentID string) (string, error) {
	doc, alloc, err := s.exportable(documentID)
	if err != nil {
		return "", err
	}
	return export.StructuredHTML(doc, alloc)
}

func taskTypeFor(format models.ExportFormat) (string, error) {
	switch format {
	case models.ExportRaster:
		return queue.TaskTypeExportRaster, nil
	case models.ExportReport:
		return queue.TaskTypeExportReport, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// EnqueueExport queues an asynchronous export of a complete document.
func (s *DocumentService) EnqueueExport(ctx context.Context, documentID string, format models.ExportFormat) (*models.ExportTask, error) {
	taskType, err := taskTypeFor(format)
	if err != nil {
		return nil, err
	}
	doc, _, err := s.exportable(documentID)
	if err != nil {
		return nil, err
	}

	task := &queue.Task{
		ID:       uuid.New().String(),
		Type:     taskType,
		Priority: s.config.QueuePriority,
		Payload: map[string]interface{}{
			"documentId": documentID,
			"format":     string(format),
		},
		Metadata: map[string]string{
			"documentId": documentID,
			"filename":   doc.Filename,
		},
		CreatedAt: s.now(),
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.logger.Error("Failed to enqueue export",
			logger.DocumentID(documentID),
			logger.TaskID(task.ID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to enqueue export: %w", err)
	}

	s.logger.Info("Export queued",
		logger.DocumentID(documentID),
		logger.TaskID(task.ID),
		logger.String("format", string(format)),
	)
	return &models.ExportTask{
		ID:         task.ID,
		DocumentID: documentID,
		Format:     format,
		Status:     models.TaskPending,
		Metadata:   task.Metadata,
		CreatedAt:  task.CreatedAt,
	}, nil
}

func (s *DocumentService) GetExportStatus(ctx context.Context, taskID string) (*models.ExportTask, error) {
	st, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return nil, fmt.Errorf("export %s: %w", taskID, models.ErrNotFound)
		}
		return nil, err
	}
	return exportTaskFromStatus(st), nil
}

// OpenArtifact opens the stored result of a completed export.
func (s *DocumentService) OpenArtifact(ctx context.Context, taskID string) (io.ReadCloser, *models.ExportTask, error) {
	task, err := s.GetExportStatus(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task.Status != models.TaskCompleted || task.ArtifactKey == "" {
		return nil, task, fmt.Errorf("export %s is %s: %w", taskID, task.Status, models.ErrNotReady)
	}
	rc, err := s.storage.Get(ctx, task.ArtifactKey)
	if err != nil {
		return nil, task, fmt.Errorf("failed to open artifact: %w", err)
	}
	return rc, task, nil
}

// HandleExport runs one queued export and records its final status.
func (s *DocumentService) HandleExport(ctx context.Context, task *queue.Task) error {
	documentID := task.DocumentID()
	status := &queue.TaskStatus{
		TaskID:     task.ID,
		DocumentID: documentID,
		Type:       task.Type,
		Status:     string(models.TaskRunning),
		StartedAt:  s.now(),
	}
	if err := s.queue.SaveFinalStatus(ctx, status); err != nil {
		s.logger.Warn("Failed to save running status", logger.TaskID(task.ID), logger.Error(err))
	}

	s.logger.Info("Running export",
		logger.TaskID(task.ID),
		logger.DocumentID(documentID),
		logger.String("type", task.Type),
	)

	pdf, pages, err := s.runExport(ctx, task.Type, documentID)
	if err == nil {
		key := fmt.Sprintf("%s/%s/%s.pdf", s.config.ArtifactPrefix, documentID, task.ID)
		if _, err = s.storage.Store(ctx, bytes.NewReader(pdf), key); err == nil {
			status.ArtifactKey = key
		}
	}

	status.FinishedAt = s.now()
	if err != nil {
		status.Status = string(models.TaskFailed)
		status.Error = err.Error()
		var exportErr *models.ExportError
		if errors.As(err, &exportErr) {
			status.Suggestion = exportErr.Suggestion()
		}
		s.logger.Error("Export failed",
			logger.TaskID(task.ID),
			logger.DocumentID(documentID),
			logger.Error(err),
		)
	} else {
		status.Status = string(models.TaskCompleted)
		status.Progress = 1
		status.Pages = pages
		s.logger.Info("Export stored",
			logger.TaskID(task.ID),
			logger.String("key", status.ArtifactKey),
			logger.Int("pages", pages),
		)
	}
	if saveErr := s.queue.SaveFinalStatus(ctx, status); saveErr != nil {
		s.logger.Error("Failed to save final status", logger.TaskID(task.ID), logger.Error(saveErr))
	}
	return err
}

func (s *DocumentService) runExport(ctx context.Context, taskType, documentID string) ([]byte, int, error) {
	switch taskType {
	case queue.TaskTypeExportRaster:
		doc, err := s.loadForExport(ctx, documentID)
		if err != nil {
			return nil, 0, err
		}
		html, err := export.StructuredHTML(doc, s.allocatorFor(doc))
		if err != nil {
			return nil, 0, err
		}
		res, err := s.exporter.ToPaginatedRaster(ctx, html)
		if err != nil {
			return nil, 0, err
		}
		return res.PDF, res.Pages, nil

	case queue.TaskTypeExportReport:
		markdown, err := s.client.GenerateReport(ctx, documentID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to generate report: %w", err)
		}
		title := documentID
		if doc, ok := s.reconciler.Document(documentID); ok && doc.Filename != "" {
			title = doc.Filename
		}
		pdf, err := s.exporter.ReportPDF(title, markdown)
		if err != nil {
			return nil, 0, err
		}
		return pdf, 0, nil

	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, taskType)
	}
}

// loadForExport prefers the tracked record and falls back to the
// collaborator, which is the only source in the worker process.
func (s *DocumentService) loadForExport(ctx context.Context, documentID string) (*models.Document, error) {
	if doc, ok := s.reconciler.Document(documentID); ok && doc.IsComplete() {
		return doc, nil
	}
	doc, err := s.client.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if doc.ID == "" {
		doc.ID = documentID
	}
	doc = s.validator.Sanitize(doc)
	if !doc.IsComplete() {
		return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotReady)
	}
	return doc, nil
}

// CleanupExports removes artifacts older than the retention period.
func (s *DocumentService) CleanupExports(ctx context.Context) error {
	threshold := s.now().Add(-s.config.ExportRetention)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to clean up exports: %w", err)
	}
	return nil
}

// Chat asks a question about a complete document and resolves the
// citations of the answer against it. Citations for the document on screen
// are appended to the chat view.
func (s *DocumentService) Chat(ctx context.Context, documentID, query string) (*models.ChatAnswer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	doc, alloc, err := s.exportable(documentID)
	if err != nil {
		return nil, err
	}

	answer, err := s.client.Chat(ctx, documentID, query)
	if err != nil {
		return nil, err
	}
	if answer.DocumentID == "" {
		answer.DocumentID = documentID
	}

	if chips := s.session.AddAnswer(answer, doc, alloc); chips != nil {
		answer.Sources = chips
	} else {
		answer.Sources = crossview.ResolveCitations(answer, doc, alloc)
	}
	return answer, nil
}

func (s *DocumentService) Session() *crossview.Session {
	return s.session
}

func (s *DocumentService) Subscribe(fn func(reconciler.Event)) func() {
	return s.reconciler.Subscribe(fn)
}

func exportTaskFromStatus(st *queue.TaskStatus) *models.ExportTask {
	task := &models.ExportTask{
		ID:          st.TaskID,
		DocumentID:  st.DocumentID,
		Status:      models.ProcessingStatus(st.Status),
		Progress:    st.Progress,
		Error:       st.Error,
		Suggestion:  st.Suggestion,
		ArtifactKey: st.ArtifactKey,
		Pages:       st.Pages,
		CreatedAt:   st.StartedAt,
		UpdatedAt:   st.FinishedAt,
	}
	switch st.Type {
	case queue.TaskTypeExportRaster:
		task.Format = models.ExportRaster
	case queue.TaskTypeExportReport:
		task.Format = models.ExportReport
	}
	return task
}
