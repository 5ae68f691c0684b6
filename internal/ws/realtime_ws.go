package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"robot-market/internal/middleware"
	"robot-market/internal/models"
	"robot-market/internal/observability"
	"robot-market/internal/repositories"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RealtimeHandler serves the realtime change-notification websockets.
type RealtimeHandler struct {
	hub   *Hub
	convs repositories.ConversationRepository
	authn middleware.Authenticator
}

// NewRealtimeHandler constructs a RealtimeHandler.
func NewRealtimeHandler(hub *Hub, convs repositories.ConversationRepository, authn middleware.Authenticator) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, convs: convs, authn: authn}
}

// HandleConversations streams conversation inserts and updates for the caller.
func (h *RealtimeHandler) HandleConversations(c *gin.Context) {
	ctx, span := otel.Tracer("robot-market/ws").Start(c.Request.Context(), "ws.handshake.conversations")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := h.authenticate(c)
	if !ok {
		return
	}
	h.serve(c, models.ConversationsTopic(userID), userID, span.SpanContext().TraceID().String())
}

// HandleMessages streams message inserts of one conversation to a participant.
func (h *RealtimeHandler) HandleMessages(c *gin.Context) {
	conversationID := c.Param("id")

	ctx, span := otel.Tracer("robot-market/ws").Start(c.Request.Context(), "ws.handshake.messages")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := h.authenticate(c)
	if !ok {
		return
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	member, err := h.convs.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for conversation"})
		return
	}
	h.serve(c, models.MessagesTopic(conversationID), userID, span.SpanContext().TraceID().String())
}

func (h *RealtimeHandler) authenticate(c *gin.Context) (string, bool) {
	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return "", false
	}
	principal, err := h.authn.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return "", false
	}
	return principal.UserID, true
}

func (h *RealtimeHandler) serve(c *gin.Context, topic, userID, traceID string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := connInfoFromRequest(c.Request, userID, traceID)
	h.hub.AddClient(topic, conn, info)

	kind := kindOf(topic)
	observability.IncWSActive(kind)
	// The request context ends with the handshake; lifecycle events outlive it.
	ctx := context.WithoutCancel(c.Request.Context())
	h.hub.PublishLifecycle(ctx, "ws_connect", topic, info, "")

	done := make(chan struct{})
	go h.keepAlive(topic, conn, done)

	go func() {
		var closeReason string
		defer func() {
			close(done)
			h.hub.RemoveClient(topic, conn)
			observability.DecWSActive(kind)
			h.hub.PublishLifecycle(ctx, "ws_disconnect", topic, info, closeReason)
			conn.Close()
		}()

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.hub.PublishLifecycle(ctx, "ws_error", topic, info, closeReason)
				}
				return
			}
		}
	}()
}

func (h *RealtimeHandler) keepAlive(topic string, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := h.hub.ping(topic, conn); err != nil {
				return
			}
		}
	}
}
