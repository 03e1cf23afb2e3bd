package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-viewer/internal/crossview"
	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/internal/reconciler"
	"github.com/feichai0017/document-viewer/internal/service/document"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

type fakeViewer struct {
	document.DocumentViewer

	docs      []models.Document
	surfaces  []models.RenderSurface
	renderErr error
	img       image.Image
	text      string
	exportErr error
	task      *models.ExportTask
	artifact  string
	openErr   error
	answer    *models.ChatAnswer
	chatErr   error
	session   *crossview.Session

	renderWidth, renderDPR float64
	queued                 []models.ExportFormat

	mu        sync.Mutex
	pageFn    func(document.PagesUpdate)
	resizes   []float64
	pointerID string
	pointers  []crossview.InteractionType
	pointErr  error
}

func (f *fakeViewer) ListDocuments(ctx context.Context) []models.Document { return f.docs }

func (f *fakeViewer) RenderPages(ctx context.Context, documentID string, width, dpr float64) ([]models.RenderSurface, error) {
	f.renderWidth, f.renderDPR = width, dpr
	return f.surfaces, f.renderErr
}

func (f *fakeViewer) PageImage(ctx context.Context, documentID string, pageIndex int) (image.Image, error) {
	return f.img, f.renderErr
}

func (f *fakeViewer) ExportText(ctx context.Context, documentID string) (string, error) {
	return f.text, f.exportErr
}

func (f *fakeViewer) EnqueueExport(ctx context.Context, documentID string, format models.ExportFormat) (*models.ExportTask, error) {
	f.queued = append(f.queued, format)
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return &models.ExportTask{ID: "t1", DocumentID: documentID, Format: format, Status: models.TaskPending}, nil
}

func (f *fakeViewer) OpenArtifact(ctx context.Context, taskID string) (io.ReadCloser, *models.ExportTask, error) {
	if f.openErr != nil {
		return nil, f.task, f.openErr
	}
	return io.NopCloser(strings.NewReader(f.artifact)), f.task, nil
}

func (f *fakeViewer) Chat(ctx context.Context, documentID, query string) (*models.ChatAnswer, error) {
	return f.answer, f.chatErr
}

func (f *fakeViewer) Session() *crossview.Session { return f.session }

func (f *fakeViewer) Subscribe(fn func(reconciler.Event)) func() { return func() {} }

func (f *fakeViewer) SubscribePages(fn func(document.PagesUpdate)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageFn = fn
	return func() {}
}

func (f *fakeViewer) Resize(ctx context.Context, documentID string, width, dpr float64) error {
	f.mu.Lock()
	f.resizes = append(f.resizes, width)
	fn := f.pageFn
	f.mu.Unlock()
	if f.renderErr != nil {
		return f.renderErr
	}
	fn(document.PagesUpdate{DocumentID: documentID, Pages: []models.RenderSurface{{PageIndex: 0, Width: width, Height: width * 4 / 3}}})
	return nil
}

func (f *fakeViewer) Pointer(ctx context.Context, documentID string, pageIndex int, x, y float64, kind crossview.InteractionType) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pointers = append(f.pointers, kind)
	return f.pointerID, f.pointErr
}

func newTestRouter(v *fakeViewer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandlers(v, logger.NewTestLogger())

	v1 := r.Group("/api/v1")
	v1.GET("/documents", h.Document.ListDocuments)
	v1.GET("/documents/:id/pages", h.Document.RenderPages)
	v1.GET("/documents/:id/pages/:page/overlays", h.Document.Overlays)
	v1.GET("/documents/:id/pages/:page/image", h.Document.PageImage)
	v1.POST("/documents/:id/pages/:page/pointer", h.Document.Pointer)
	v1.GET("/documents/:id/export/text", h.Export.ExportText)
	v1.POST("/documents/:id/export/raster", h.Export.ExportRaster)
	v1.POST("/documents/:id/report", h.Export.GenerateReport)
	v1.GET("/exports/:taskId/download", h.Export.Download)
	v1.POST("/documents/:id/chat", h.Chat.Ask)
	v1.GET("/documents/:id/sync", h.Sync.HandleWebSocket)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestListDocuments(t *testing.T) {
	r := newTestRouter(&fakeViewer{docs: []models.Document{{ID: "a"}, {ID: "b"}}})

	w := do(r, http.MethodGet, "/api/v1/documents", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Documents []models.Document `json:"documents"`
		Total     int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, "a", body.Documents[0].ID)
}

func TestRenderPages(t *testing.T) {
	v := &fakeViewer{surfaces: []models.RenderSurface{{PageIndex: 0, Width: 600, Height: 800}}}
	r := newTestRouter(v)

	w := do(r, http.MethodGet, "/api/v1/documents/d1/pages?width=600&dpr=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 600.0, v.renderWidth)
	assert.Equal(t, 2.0, v.renderDPR)

	w = do(r, http.MethodGet, "/api/v1/documents/d1/pages", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultPageWidth, v.renderWidth)
	assert.Equal(t, defaultDPR, v.renderDPR)

	w = do(r, http.MethodGet, "/api/v1/documents/d1/pages?width=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, PanelPreview, decodeError(t, w).Panel)

	w = do(r, http.MethodGet, "/api/v1/documents/d1/pages?dpr=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenderPages_ErrorsArePreviewScoped(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"decode", &models.DecodeError{DocumentID: "d1", Err: errors.New("bad xref")}, http.StatusUnprocessableEntity},
		{"network", &models.NetworkError{Op: "fetch", URL: "http://x", Err: errors.New("reset")}, http.StatusBadGateway},
		{"not found", models.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&fakeViewer{renderErr: tc.err})
			w := do(r, http.MethodGet, "/api/v1/documents/d1/pages", "")
			assert.Equal(t, tc.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, PanelPreview, resp.Panel)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestStaleReferencesAreSilent(t *testing.T) {
	log := logger.NewTestLogger()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewDocumentHandler(&fakeViewer{renderErr: &models.StaleReferenceError{DocumentID: "d1"}}, log)
	r.GET("/api/v1/documents/:id/pages", h.RenderPages)

	w := do(r, http.MethodGet, "/api/v1/documents/d1/pages", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Zero(t, log.Count("WARN"))
	assert.Zero(t, log.Count("ERROR"))
	assert.Equal(t, 1, log.Count("DEBUG"))
}

func TestOverlays_InvalidPage(t *testing.T) {
	r := newTestRouter(&fakeViewer{})
	w := do(r, http.MethodGet, "/api/v1/documents/d1/pages/-1/overlays", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodGet, "/api/v1/documents/d1/pages/x/overlays", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPageImage(t *testing.T) {
	r := newTestRouter(&fakeViewer{img: image.NewRGBA(image.Rect(0, 0, 4, 4))})
	w := do(r, http.MethodGet, "/api/v1/documents/d1/pages/0/image", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))
}

func TestPointer(t *testing.T) {
	v := &fakeViewer{pointerID: "c1"}
	r := newTestRouter(v)

	w := do(r, http.MethodPost, "/api/v1/documents/d1/pages/0/pointer", `{"x":100,"y":100}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"chunkId":"c1"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/v1/documents/d1/pages/0/pointer", `{"x":0,"y":0,"type":"click"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []crossview.InteractionType{crossview.InteractionHover, crossview.InteractionClick}, v.pointers)

	w = do(r, http.MethodPost, "/api/v1/documents/d1/pages/0/pointer", `{"x":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodPost, "/api/v1/documents/d1/pages/0/pointer", `{"x":1,"y":1,"type":"drag"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, v.pointers, 2)

	v.pointErr = models.ErrNotReady
	w = do(r, http.MethodPost, "/api/v1/documents/d1/pages/0/pointer", `{"x":1,"y":1}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, PanelPreview, decodeError(t, w).Panel)
}

func TestExportText(t *testing.T) {
	r := newTestRouter(&fakeViewer{text: "hello"})
	w := do(r, http.MethodGet, "/api/v1/documents/d1/export/text", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "d1.txt")

	r = newTestRouter(&fakeViewer{exportErr: models.ErrNotReady})
	w = do(r, http.MethodGet, "/api/v1/documents/d1/export/text", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, PanelExport, decodeError(t, w).Panel)
}

func TestEnqueueExports(t *testing.T) {
	v := &fakeViewer{}
	r := newTestRouter(v)

	w := do(r, http.MethodPost, "/api/v1/documents/d1/export/raster", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	w = do(r, http.MethodPost, "/api/v1/documents/d1/report", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	var task models.ExportTask
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, []models.ExportFormat{models.ExportRaster, models.ExportReport}, v.queued)

	r = newTestRouter(&fakeViewer{exportErr: document.ErrUnsupportedFormat})
	w = do(r, http.MethodPost, "/api/v1/documents/d1/export/raster", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownload(t *testing.T) {
	v := &fakeViewer{
		task:     &models.ExportTask{ID: "t1", DocumentID: "d1", Format: models.ExportRaster, Status: models.TaskCompleted},
		artifact: "%PDF-1.3",
	}
	w := do(newTestRouter(v), http.MethodGet, "/api/v1/exports/t1/download", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.3", w.Body.String())
}

func TestDownload_FailedExportOffersFallback(t *testing.T) {
	v := &fakeViewer{
		task: &models.ExportTask{
			ID:         "t1",
			Status:     models.TaskFailed,
			Error:      "capture failed",
			Suggestion: models.ExportFallback,
		},
		openErr: models.ErrNotReady,
	}
	w := do(newTestRouter(v), http.MethodGet, "/api/v1/exports/t1/download", "")
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, PanelExport, resp.Panel)
	assert.Equal(t, models.ExportFallback, resp.Suggestion)
}

func TestChat(t *testing.T) {
	v := &fakeViewer{answer: &models.ChatAnswer{DocumentID: "d1", Answer: "42"}}
	r := newTestRouter(v)

	w := do(r, http.MethodPost, "/api/v1/documents/d1/chat", `{"query":"why?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"answer":"42"`)

	w = do(r, http.MethodPost, "/api/v1/documents/d1/chat", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, PanelChat, decodeError(t, w).Panel)

	v.chatErr = &models.NetworkError{Op: "chat", URL: "http://x", StatusCode: 503, Err: errors.New("unavailable")}
	w = do(r, http.MethodPost, "/api/v1/documents/d1/chat", `{"query":"why?"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, PanelChat, decodeError(t, w).Panel)
}

func TestStatusFor_ExportErrorCarriesSuggestion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, logger.NewTestLogger(), PanelExport, "Export failed",
		&models.ExportError{Op: "capture", Err: errors.New("chrome exited")})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, models.ExportFallback, decodeError(t, w).Suggestion)
}

func TestSync_SendsInitialState(t *testing.T) {
	v := &fakeViewer{session: crossview.NewSession(logger.NewTestLogger())}
	srv := httptest.NewServer(newTestRouter(v))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/documents/d1/sync"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg struct {
		Type    string              `json:"type"`
		Payload crossview.ViewState `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageState, msg.Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "bogus"}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageError, msg.Type)
}

func TestSync_ResizePushesPages(t *testing.T) {
	v := &fakeViewer{session: crossview.NewSession(logger.NewTestLogger()), pointerID: "c1"}
	srv := httptest.NewServer(newTestRouter(v))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/documents/d1/sync"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var state WSMessage
	require.NoError(t, conn.ReadJSON(&state))

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MessageResize, Payload: ResizeMessage{Width: 600, DPR: 2}}))
	var msg struct {
		Type    string               `json:"type"`
		Payload document.PagesUpdate `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessagePages, msg.Type)
	assert.Equal(t, "d1", msg.Payload.DocumentID)
	require.Len(t, msg.Payload.Pages, 1)
	assert.Equal(t, 600.0, msg.Payload.Pages[0].Width)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MessageResize, Payload: ResizeMessage{Width: 0}}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageError, msg.Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MessagePointer, Payload: PointerMessage{X: 100, Y: 100, Type: crossview.InteractionClick}}))
	require.NoError(t, conn.WriteJSON(WSMessage{Type: MessageState}))
	require.NoError(t, conn.ReadJSON(&state))
	assert.Equal(t, MessageState, state.Type)

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.Equal(t, []float64{600}, v.resizes)
	assert.Equal(t, []crossview.InteractionType{crossview.InteractionClick}, v.pointers)
}
