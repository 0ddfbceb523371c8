package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cooktodor/notifier/internal/realtime"
	"github.com/cooktodor/notifier/internal/services"
	"github.com/cooktodor/notifier/pkg/errors"
	"github.com/cooktodor/notifier/pkg/logger"
	"github.com/cooktodor/notifier/pkg/response"
)

// UnreadCounter reports how many unread notifications a user has.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// StreamOption customises a StreamHandler.
type StreamOption func(*StreamHandler)

// WithWriteTimeout bounds each frame written to a client.
func WithWriteTimeout(d time.Duration) StreamOption {
	return func(h *StreamHandler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithAllowedOrigins restricts WebSocket upgrades to the listed origins. An
// empty list or "*" accepts any origin.
func WithAllowedOrigins(origins []string) StreamOption {
	return func(h *StreamHandler) {
		allowed := make(map[string]struct{}, len(origins))
		for _, origin := range origins {
			origin = strings.ToLower(strings.TrimSpace(origin))
			if origin == "*" {
				allowed = nil
				break
			}
			if origin != "" {
				allowed[origin] = struct{}{}
			}
		}
		h.origins = allowed
	}
}

// StreamHandler opens live notification streams over SSE or WebSocket.
type StreamHandler struct {
	registry     *realtime.Registry
	unread       UnreadCounter
	writeTimeout time.Duration
	origins      map[string]struct{}
	upgrader     websocket.Upgrader
	log          *zap.Logger
}

// NewStreamHandler constructs a stream handler over registry.
func NewStreamHandler(registry *realtime.Registry, unread UnreadCounter, opts ...StreamOption) (*StreamHandler, error) {
	if registry == nil {
		return nil, fmt.Errorf("stream handler: registry must be provided")
	}
	if unread == nil {
		return nil, fmt.Errorf("stream handler: unread counter must be provided")
	}

	h := &StreamHandler{
		registry:     registry,
		unread:       unread,
		writeTimeout: realtime.DefaultWriteTimeout,
		log:          logger.WithModule("stream"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h, nil
}

// SSE streams events as text/event-stream until the client leaves or the
// stream is replaced, evicted or expires.
func (h *StreamHandler) SSE(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	unread, err := h.unread.UnreadCount(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	transport := realtime.NewSSETransport(c.Writer, h.writeTimeout)
	stream, err := h.registry.Open(userID, transport)
	if err != nil {
		h.log.Error("failed to open stream", zap.String("user_id", userID), zap.Error(err))
		h.rejectSSE(c, err)
		return
	}
	h.log.Info("stream opened", zap.String("user_id", userID), zap.String("stream_id", stream.ID()))

	h.sendUnreadCount(stream, unread)
	h.wait(ctx, stream)
}

// WebSocket is the alternate transport for clients that prefer a socket.
func (h *StreamHandler) WebSocket(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	unread, err := h.unread.UnreadCount(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	transport := realtime.NewWebSocketTransport(conn, h.writeTimeout)
	stream, err := h.registry.Open(userID, transport)
	if err != nil {
		h.log.Error("failed to open stream", zap.String("user_id", userID), zap.Error(err))
		return
	}
	h.log.Info("stream opened", zap.String("user_id", userID), zap.String("stream_id", stream.ID()), zap.String("transport", "websocket"))

	h.sendUnreadCount(stream, unread)

	go func() {
		if err := transport.DrainReads(); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			h.log.Debug("websocket read ended", zap.String("user_id", userID), zap.Error(err))
		}
		stream.Complete()
	}()

	h.wait(ctx, stream)
}

// StreamStatus describes the caller's live connection.
type StreamStatus struct {
	Connected              bool `json:"connected"`
	TotalActiveConnections int  `json:"totalActiveConnections"`
}

// Status reports whether the caller currently holds a stream.
func (h *StreamHandler) Status(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, StreamStatus{
		Connected:              h.registry.IsConnected(userID),
		TotalActiveConnections: h.registry.ActiveCount(),
	})
}

func (h *StreamHandler) sendUnreadCount(stream *realtime.Stream, unread int64) {
	err := stream.Send(realtime.EventUnreadCount, services.UnreadCountPayload{UnreadCount: unread})
	if err == nil {
		return
	}
	h.log.Warn("failed to send unread count", zap.String("user_id", stream.UserID()), zap.Error(err))
	h.registry.Evict(stream, err)
}

func (h *StreamHandler) wait(ctx context.Context, stream *realtime.Stream) {
	select {
	case <-stream.Done():
	case <-ctx.Done():
		stream.Complete()
	}
	h.log.Info("stream closed",
		zap.String("user_id", stream.UserID()),
		zap.String("stream_id", stream.ID()),
		zap.String("state", stream.State().String()),
	)
}

// rejectSSE answers a failed stream open. A JSON 503 is used while nothing has
// reached the client; otherwise the stream ends with an error event.
func (h *StreamHandler) rejectSSE(c *gin.Context, cause error) {
	if !c.Writer.Written() {
		c.Writer.Header().Del("Content-Type")
		response.Error(c, errors.ErrStreamUnavailable.WithInternal(cause))
		return
	}

	var buf bytes.Buffer
	if err := sse.Encode(&buf, sse.Event{Event: realtime.EventError, Data: errors.ErrStreamUnavailable.Message}); err != nil {
		return
	}
	_, _ = c.Writer.Write(buf.Bytes())
	c.Writer.Flush()
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 {
		return true
	}
	origin := strings.ToLower(strings.TrimSpace(r.Header.Get("Origin")))
	if origin == "" {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}
