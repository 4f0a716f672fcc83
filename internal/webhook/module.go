package webhook

import (
	apphttp "imovelhub_backend/internal/http"
	"imovelhub_backend/platform/logger"
)

// Module wires the webhook endpoint.
type Module struct {
	handler *Handler
	token   string
}

// NewModule builds the webhook module.
func NewModule(enqueuer TurnEnqueuer, store StatusStore, token string, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(enqueuer, store, log),
		token:   token,
	}
}

// Name implements http.Module.
func (m *Module) Name() string { return "webhook" }

// RegisterRoutes mounts the provider callback endpoint.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	group.Use(TokenAuth(m.token))
	group.POST("/whatsapp", m.handler.Receive)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
