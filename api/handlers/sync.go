package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/feichai0017/document-viewer/internal/crossview"
	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/internal/reconciler"
	"github.com/feichai0017/document-viewer/internal/service/document"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

const (
	MessageInteraction = "interaction"
	MessageLayout      = "layout"
	MessageResize      = "resize"
	MessagePointer     = "pointer"
	MessagePages       = "pages"
	MessageState       = "state"
	MessageSync        = "sync"
	MessageDocument    = "document"
	MessageError       = "error"

	sendBuffer = 64
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by the CORS middleware
	},
}

// WSMessage is the envelope for everything sent over the sync socket.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// LayoutMessage carries section geometry measured by the client.
type LayoutMessage struct {
	Sections       []crossview.Section `json:"sections"`
	ViewportHeight float64             `json:"viewportHeight"`
	ContentHeight  float64             `json:"contentHeight"`
}

// ResizeMessage reports the preview container size.
type ResizeMessage struct {
	Width float64 `json:"width"`
	DPR   float64 `json:"dpr"`
}

// PointerMessage is a raw pointer position on a rendered page, in logical
// pixels of that page.
type PointerMessage struct {
	PageIndex int                       `json:"pageIndex"`
	X         float64                   `json:"x"`
	Y         float64                   `json:"y"`
	Type      crossview.InteractionType `json:"type"`
}

// SyncHandler pushes cross-view events for one document over a websocket
// and feeds client interactions back into the session.
type SyncHandler struct {
	service document.DocumentViewer
	logger  logger.Logger
}

func NewSyncHandler(service document.DocumentViewer, log logger.Logger) *SyncHandler {
	return &SyncHandler{
		service: service,
		logger:  log.Named("sync"),
	}
}

func (h *SyncHandler) HandleWebSocket(c *gin.Context) {
	documentID := c.Param("id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", logger.DocumentID(documentID), logger.Error(err))
		return
	}
	h.logger.Debug("Sync client connected", logger.DocumentID(documentID))

	client := &syncClient{
		conn:       conn,
		documentID: documentID,
		send:       make(chan WSMessage, sendBuffer),
		done:       make(chan struct{}),
		logger:     h.logger.With(logger.DocumentID(documentID)),
	}

	session := h.service.Session()
	unsubSync := session.Synchronizer().Subscribe(func(ev crossview.Event) {
		if ev.DocumentID == documentID || ev.Type == crossview.EventReset {
			client.push(WSMessage{Type: MessageSync, Payload: ev})
		}
	})
	unsubDocs := h.service.Subscribe(func(ev reconciler.Event) {
		if ev.DocumentID == "" || ev.DocumentID == documentID {
			client.push(WSMessage{Type: MessageDocument, Payload: ev})
		}
	})
	unsubPages := h.service.SubscribePages(func(u document.PagesUpdate) {
		if u.DocumentID != documentID {
			return
		}
		if u.Err != nil {
			client.push(WSMessage{Type: MessageError, Payload: gin.H{"panel": PanelPreview, "error": u.Err.Error()}})
			return
		}
		client.push(WSMessage{Type: MessagePages, Payload: u})
	})
	defer func() {
		unsubSync()
		unsubDocs()
		unsubPages()
		close(client.done)
		conn.Close()
		h.logger.Debug("Sync client disconnected", logger.DocumentID(documentID))
	}()

	go client.writeLoop()
	client.push(WSMessage{Type: MessageState, Payload: session.Synchronizer().State()})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				client.logger.Warn("WebSocket error", logger.Error(err))
			}
			return
		}
		h.dispatch(c.Request.Context(), client, session, data)
	}
}

func (h *SyncHandler) dispatch(ctx context.Context, client *syncClient, session *crossview.Session, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.push(WSMessage{Type: MessageError, Payload: gin.H{"error": "invalid message"}})
		return
	}

	switch msg.Type {
	case MessageInteraction:
		var in crossview.Interaction
		if err := json.Unmarshal(msg.Payload, &in); err != nil {
			client.push(WSMessage{Type: MessageError, Payload: gin.H{"error": "invalid interaction"}})
			return
		}
		if in.DocumentID == "" {
			in.DocumentID = client.documentID
		}
		// interactions for a swapped-out document are dropped silently
		session.Handle(in)
	case MessageLayout:
		var layout LayoutMessage
		if err := json.Unmarshal(msg.Payload, &layout); err != nil {
			client.push(WSMessage{Type: MessageError, Payload: gin.H{"error": "invalid layout"}})
			return
		}
		if session.Layout(client.documentID, layout.Sections, layout.ViewportHeight, layout.ContentHeight) {
			client.push(WSMessage{Type: MessageState, Payload: session.Synchronizer().State()})
		}
	case MessageResize:
		var size ResizeMessage
		if err := json.Unmarshal(msg.Payload, &size); err != nil || size.Width <= 0 {
			client.push(WSMessage{Type: MessageError, Payload: gin.H{"error": "invalid resize"}})
			return
		}
		if size.DPR <= 0 {
			size.DPR = 1
		}
		if err := h.service.Resize(ctx, client.documentID, size.Width, size.DPR); err != nil {
			client.fail(PanelPreview, err)
		}
	case MessagePointer:
		var p PointerMessage
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			client.push(WSMessage{Type: MessageError, Payload: gin.H{"error": "invalid pointer"}})
			return
		}
		if _, err := h.service.Pointer(ctx, client.documentID, p.PageIndex, p.X, p.Y, p.Type); err != nil {
			client.fail(PanelPreview, err)
		}
	case MessageState:
		client.push(WSMessage{Type: MessageState, Payload: session.Synchronizer().State()})
	default:
		client.logger.Debug("Ignoring sync message", logger.String("type", msg.Type))
	}
}

type syncClient struct {
	conn       *websocket.Conn
	documentID string
	send       chan WSMessage
	done       chan struct{}
	logger     logger.Logger
}

// push never blocks the publisher; a slow client loses events.
func (c *syncClient) push(msg WSMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.logger.Warn("Sync client too slow, dropping message", logger.String("type", msg.Type))
	}
}

// fail reports err to the client unless it only means the document is no
// longer on screen.
func (c *syncClient) fail(panel Panel, err error) {
	if models.IsStale(err) {
		c.logger.Debug("Dropping stale sync request", logger.Error(err))
		return
	}
	c.push(WSMessage{Type: MessageError, Payload: gin.H{"panel": panel, "error": err.Error()}})
}

// writeLoop is the only goroutine that writes to the connection.
func (c *syncClient) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("Failed to send sync message", logger.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
