package webhook

import (
	"context"
	"net/http"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// TurnEnqueuer hands a normalized inbound message to the turn queue.
type TurnEnqueuer interface {
	EnqueueTurn(ctx context.Context, in domain.InboundMessage) error
}

// StatusStore records delivery receipts.
type StatusStore interface {
	UpdateDeliveryStatus(ctx context.Context, providerMessageID, status string) error
}

// Handler processes provider callbacks. Once the token check passed, every
// response is 200: the provider treats anything else as a delivery failure
// and retries, and a malformed payload will not get better on retry.
type Handler struct {
	enqueuer TurnEnqueuer
	store    StatusStore
	log      *logger.Logger
}

// NewHandler creates the webhook handler.
func NewHandler(enqueuer TurnEnqueuer, store StatusStore, log *logger.Logger) *Handler {
	return &Handler{enqueuer: enqueuer, store: store, log: log}
}

// Receive is the single webhook endpoint, demultiplexed by the type query
// parameter.
func (h *Handler) Receive(c *gin.Context) {
	eventType := c.Query("type")
	if eventType == "" {
		eventType = "message"
	}

	switch eventType {
	case "message":
		h.handleMessage(c)
	case "message-status":
		h.handleStatus(c)
	case "presence", "connected", "disconnected":
		h.log.Info("webhook lifecycle event", "type", eventType)
	default:
		h.log.WebhookDropped("unknown event type " + eventType)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleMessage(c *gin.Context) {
	var raw rawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		h.log.WebhookDropped("malformed message payload")
		return
	}

	in, ok := Normalize(raw)
	if !ok {
		h.log.WebhookDropped("invalid phone")
		return
	}

	if err := h.enqueuer.EnqueueTurn(c.Request.Context(), in); err != nil {
		// Still 200. The provider retrying would re-enqueue the same turn;
		// losing one beats a retry storm against a broken queue.
		h.log.ExternalCallFailed("task queue", err)
	}
}

func (h *Handler) handleStatus(c *gin.Context) {
	var raw rawStatus
	if err := c.ShouldBindJSON(&raw); err != nil {
		h.log.WebhookDropped("malformed status payload")
		return
	}
	if raw.ID == "" || raw.Status == "" {
		return
	}
	if err := h.store.UpdateDeliveryStatus(c.Request.Context(), raw.ID, raw.Status); err != nil {
		h.log.DatabaseError("update delivery status", err)
	}
}
