package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"robot-market/internal/models"
	"robot-market/internal/repositories"
	"robot-market/internal/telemetry"
)

// ChangeNotifier pushes row changes to realtime subscribers.
type ChangeNotifier interface {
	PublishConversation(ctx context.Context, changeType models.ChangeType, conv models.Conversation)
	PublishMessage(ctx context.Context, msg models.ConversationMessage)
}

// ConversationHandler manages conversation and message endpoints.
type ConversationHandler struct {
	convs    repositories.ConversationRepository
	messages repositories.MessageRepository
	robots   repositories.RobotRepository
	notifier ChangeNotifier
	audit    *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler. notifier and emitter may be nil.
func NewConversationHandler(convs repositories.ConversationRepository, messages repositories.MessageRepository, robots repositories.RobotRepository, notifier ChangeNotifier, emitter *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{
		convs:    convs,
		messages: messages,
		robots:   robots,
		notifier: notifier,
		audit:    emitter,
	}
}

type tripleRequest struct {
	BuyerID  string `json:"buyer_id" binding:"required"`
	SellerID string `json:"seller_id" binding:"required"`
	RobotID  string `json:"robot_id" binding:"required"`
}

// canonicalize rewrites the three ids in canonical UUID form and reports
// whether all of them parsed.
func (r *tripleRequest) canonicalize() bool {
	for _, id := range []*string{&r.BuyerID, &r.SellerID, &r.RobotID} {
		v, ok := canonicalID(*id)
		if !ok {
			return false
		}
		*id = v
	}
	return true
}

// ListConversations returns the caller's conversations, latest activity first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	convs, err := h.convs.ListForUser(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// LookupConversation finds the conversation of an exact buyer, seller and robot triple.
func (h *ConversationHandler) LookupConversation(c *gin.Context) {
	var req tripleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := userIDFromContext(c)
	if userID != req.BuyerID && userID != req.SellerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}
	if !req.canonicalize() {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	conv, err := h.convs.FindByTriple(c.Request.Context(), req.BuyerID, req.SellerID, req.RobotID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up conversation"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// CreateConversation opens a conversation between the calling buyer and the
// seller of a robot. A duplicate triple answers 409 with the existing row.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req tripleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if userIDFromContext(c) != req.BuyerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the buyer can open a conversation"})
		return
	}
	if req.BuyerID == req.SellerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		return
	}
	if !req.canonicalize() {
		c.JSON(http.StatusNotFound, gin.H{"error": "robot not found"})
		return
	}

	robot, err := h.robots.GetRobot(c.Request.Context(), req.RobotID)
	if err != nil {
		if errors.Is(err, repositories.ErrRobotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "robot not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load robot"})
		return
	}
	if robot.SellerID != req.SellerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seller does not own robot"})
		return
	}

	conv, err := h.convs.CreateConversation(c.Request.Context(), req.BuyerID, req.SellerID, req.RobotID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "conversation already exists", "conversation": conv})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	if h.notifier != nil {
		h.notifier.PublishConversation(c.Request.Context(), models.ChangeInsert, conv)
	}
	audit(c, h.audit, "create", "conversation", conv.ID)
	c.JSON(http.StatusCreated, conv)
}

// ListMessages returns a conversation's messages in creation order.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	conversationID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// LatestMessage returns the most recent message of a conversation.
func (h *ConversationHandler) LatestMessage(c *gin.Context) {
	conversationID, ok := h.requireParticipant(c)
	if !ok {
		return
	}

	msg, err := h.messages.LatestMessage(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no messages"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	c.JSON(http.StatusOK, msg)
}

// PostMessage stores a message from the caller and broadcasts it.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	conversationID, ok := pathID(c, "conversation not found")
	if !ok {
		return
	}
	userID := userIDFromContext(c)

	conv, err := h.convs.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	var req struct {
		Content  string `json:"content"`
		SenderID string `json:"sender_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SenderID != "" && req.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "sender must be the caller"})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	msg, updated, err := h.messages.CreateMessage(c.Request.Context(), conversationID, userID, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if h.notifier != nil {
		h.notifier.PublishMessage(c.Request.Context(), msg)
		h.notifier.PublishConversation(c.Request.Context(), models.ChangeUpdate, updated)
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) requireParticipant(c *gin.Context) (string, bool) {
	conversationID, ok := pathID(c, "conversation not found")
	if !ok {
		return "", false
	}
	member, err := h.convs.IsParticipant(c.Request.Context(), conversationID, userIDFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return "", false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return "", false
	}
	return conversationID, true
}
