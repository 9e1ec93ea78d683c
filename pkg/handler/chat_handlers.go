// Chat HTTP handlers - SSE turns and conversation management
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/choraleia/coach/pkg/models"
	"github.com/choraleia/coach/pkg/service"
	"github.com/choraleia/coach/pkg/utils"
	"github.com/gin-gonic/gin"
)

const (
	userIDHeader = "X-User-ID"
	userIDPrefix = "user_"
	doneFrame    = "data: [DONE]\n\n"
)

// UserID identifies the caller: the X-User-ID header when present,
// otherwise a short hash of client IP and user agent.
func UserID(c *gin.Context) string {
	if id := c.GetHeader(userIDHeader); id != "" {
		return id
	}
	h := fnv.New32a()
	h.Write([]byte(c.ClientIP() + c.Request.UserAgent()))
	id := strconv.FormatUint(uint64(h.Sum32()), 36)
	if len(id) > 8 {
		id = id[:8]
	}
	return userIDPrefix + id
}

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	chatService   *service.ChatService
	conversations *service.GormStore
	logger        *slog.Logger
}

// NewChatHandler creates a new chat handler. conversations may be nil when
// storage is disabled; the conversation routes are then not registered.
func NewChatHandler(chatService *service.ChatService, conversations *service.GormStore) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		conversations: conversations,
		logger:        utils.GetLogger(),
	}
}

// RegisterRoutes registers chat routes
func (h *ChatHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat/stream", h.Stream)
	r.POST("/chat/invoke", h.Invoke)

	if h.conversations == nil {
		return
	}
	conversations := r.Group("/conversations")
	{
		conversations.POST("", h.CreateConversation)
		conversations.GET("", h.ListConversations)
		conversations.GET("/:id", h.GetConversation)
		conversations.PATCH("/:id", h.RenameConversation)
		conversations.POST("/:id/archive", h.ArchiveConversation)
		conversations.DELETE("/:id", h.DeleteConversation)
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrEmptyTitle):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Stream runs one turn as server-sent events
// POST /api/v1/chat/stream
func (h *ChatHandler) Stream(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := UserID(c)
	events, err := h.chatService.ChatStream(c.Request.Context(), userID, &req)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Status(http.StatusOK)

	w := c.Writer
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Warn("Failed to encode stream event", "type", ev.Type, "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		w.Flush()
	}

	fmt.Fprint(w, doneFrame)
	w.Flush()
	h.logger.Debug("Stream finished", "userID", userID, "conversationID", req.ConversationID)
}

// Invoke runs one turn and returns the whole reply
// POST /api/v1/chat/invoke
func (h *ChatHandler) Invoke(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.chatService.Invoke(c.Request.Context(), UserID(c), &req)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateConversation creates a new conversation
// POST /api/v1/conversations
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req models.CreateConversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	conv, err := h.conversations.CreateConversation(c.Request.Context(), UserID(c), &req)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// ListConversations lists the caller's conversations
// GET /api/v1/conversations?archived=true
func (h *ChatHandler) ListConversations(c *gin.Context) {
	archived, _ := strconv.ParseBool(c.DefaultQuery("archived", "false"))

	conversations, err := h.conversations.ListConversations(c.Request.Context(), UserID(c), archived)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// GetConversation returns a conversation with its messages
// GET /api/v1/conversations/:id
func (h *ChatHandler) GetConversation(c *gin.Context) {
	conv, err := h.conversations.GetConversation(c.Request.Context(), UserID(c), c.Param("id"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// RenameConversation sets the conversation title
// PATCH /api/v1/conversations/:id
func (h *ChatHandler) RenameConversation(c *gin.Context) {
	var req models.RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.conversations.RenameConversation(c.Request.Context(), UserID(c), c.Param("id"), req.Title)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ArchiveConversation archives a conversation
// POST /api/v1/conversations/:id/archive
func (h *ChatHandler) ArchiveConversation(c *gin.Context) {
	if err := h.conversations.ArchiveConversation(c.Request.Context(), UserID(c), c.Param("id")); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteConversation deletes a conversation
// DELETE /api/v1/conversations/:id
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.conversations.DeleteConversation(c.Request.Context(), UserID(c), c.Param("id")); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
