package http

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/delivery/http/middleware"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/metrics"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/notify"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/usecase"
)

const (
	writeWait        = 10 * time.Second
	pongGrace        = 10 * time.Second
	maxClientMessage = 4096
	streamPoll       = 500 * time.Millisecond
)

// WebSocketHandler serves the owner notification socket and per-job status
// streams.
type WebSocketHandler struct {
	hub          *notify.Hub
	getJobUC     *usecase.GetJobUsecase
	upgrader     websocket.Upgrader
	keepalive    time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler. Browser origins are
// checked against origins; a "*" entry allows all.
func NewWebSocketHandler(hub *notify.Hub, getJobUC *usecase.GetJobUsecase, origins []string, keepalive time.Duration, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:          hub,
		getJobUC:     getJobUC,
		upgrader:     newUpgrader(origins),
		keepalive:    keepalive,
		pollInterval: streamPoll,
		logger:       logger,
	}
}

func newUpgrader(origins []string) websocket.Upgrader {
	allowAll := middleware.AllowsAnyOrigin(origins)
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			return slices.Contains(origins, origin)
		},
	}
}

type echoFrame struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Notifications handles GET /api/v1/ws/notifications (WebSocket upgrade).
// The connection receives a frame for every job of its owner that reaches a
// terminal state while it is open.
func (h *WebSocketHandler) Notifications(c *gin.Context) {
	owner := middleware.OwnerID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := h.hub.Register(owner)
	metrics.WSConnections.Inc()
	log := h.logger.With(
		zap.String("owner_id", owner),
		zap.String("client_id", client.ID.String()),
	)
	log.Debug("Notification socket opened")

	echoes := make(chan []byte, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, client, owner, echoes, log)
	}()

	h.readLoop(conn, echoes, writerDone, log)

	// Unregister closes the outbound channel, which stops the writer.
	h.hub.Unregister(client)
	<-writerDone
	_ = conn.Close()
	metrics.WSConnections.Dec()
	log.Debug("Notification socket closed")
}

// writeLoop is the only goroutine writing data frames to conn.
func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, client *notify.Client, owner string, echoes <-chan []byte, log *zap.Logger) {
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		var err error
		select {
		case ev, ok := <-client.Outbound:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			err = writeJSON(conn, ev)
		case msg := <-echoes:
			err = writeJSON(conn, echoFrame{
				Message: "Notification for " + owner,
				Data:    echoData(msg),
			})
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			log.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
			// Unblocks the reader, which then unregisters the client.
			_ = conn.Close()
			return
		}
	}
}

// readLoop consumes client frames until the connection fails or goes quiet
// for longer than the keepalive period plus grace.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, echoes chan<- []byte, writerDone <-chan struct{}, log *zap.Logger) {
	deadline := h.keepalive + pongGrace
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("WebSocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))

		select {
		case echoes <- msg:
		case <-writerDone:
			return
		}
	}
}

func echoData(msg []byte) any {
	if json.Valid(msg) {
		return json.RawMessage(msg)
	}
	return string(msg)
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// Stream handles GET /api/v1/jobs/:id/stream (WebSocket upgrade). It pushes
// the job's view whenever polled and closes once the job is terminal.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}
	owner := middleware.OwnerID(c)

	view, err := h.getJobUC.Execute(c.Request.Context(), id, owner)
	if err != nil {
		writeError(c, err, h.logger)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		if err := writeJSON(conn, view); err != nil {
			h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
			return
		}

		// Stop streaming once the job reaches a terminal state
		if view.Status.IsTerminal() {
			h.logger.Debug("Job reached terminal state, closing WebSocket", zap.String("job_id", id.String()))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view, err = h.getJobUC.Execute(ctx, id, owner)
		if err != nil {
			_ = writeJSON(conn, gin.H{"error": "Job not found"})
			return
		}
	}
}
