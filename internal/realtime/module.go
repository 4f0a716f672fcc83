package realtime

import (
	"imovelhub_backend/internal/events"
	apphttp "imovelhub_backend/internal/http"
	"imovelhub_backend/platform/logger"
)

// Module wires the SSE hub into the router.
type Module struct {
	hub *Hub
}

// NewModule builds the hub and subscribes it to the event bus.
func NewModule(bus events.Bus, log *logger.Logger) *Module {
	hub := NewHub(log)
	hub.BindBus(bus)
	return &Module{hub: hub}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "realtime" }

// Hub exposes the hub for shutdown.
func (m *Module) Hub() *Hub { return m.hub }

// RegisterRoutes mounts the staff event stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/events", m.hub.Handler())
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
