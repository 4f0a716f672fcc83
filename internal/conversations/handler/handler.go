// Package handler exposes the staff conversation API.
package handler

import (
	"net/http"

	"imovelhub_backend/internal/conversations/service"
	"imovelhub_backend/internal/conversations/transport"
	"imovelhub_backend/platform/httpkit"
	"imovelhub_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for the staff inbox.
type Handler struct {
	svc *service.Staff
	val *validator.Validator
}

// New creates a new conversations handler.
func New(svc *service.Staff, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the conversation routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id/messages", h.ListMessages)
	rg.POST("/:id/messages", h.SendMessage)
	rg.POST("/:id/automation", h.SetAutomation)
}

func conversationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid conversation id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// List handles GET /api/v1/conversations
func (h *Handler) List(c *gin.Context) {
	var query transport.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	conversations, err := h.svc.ListConversations(c.Request.Context(), query.Limit)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.ConversationResponse, 0, len(conversations))
	for i := range conversations {
		out = append(out, transport.FromConversation(&conversations[i]))
	}
	httpkit.OK(c, out)
}

// ListMessages handles GET /api/v1/conversations/:id/messages
func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var query transport.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	messages, err := h.svc.ListMessages(c.Request.Context(), id, query.Limit)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, transport.FromMessage(&messages[i]))
	}
	httpkit.OK(c, out)
}

// SendMessage handles POST /api/v1/conversations/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req transport.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), id, req.Content)
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, transport.FromMessage(msg))
}

// SetAutomation handles POST /api/v1/conversations/:id/automation
func (h *Handler) SetAutomation(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req transport.SetAutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	conv, err := h.svc.SetAutomation(c.Request.Context(), id, *req.Enabled)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromConversation(conv))
}
