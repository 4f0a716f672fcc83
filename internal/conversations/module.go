// Package conversations provides the conversation domain module: the turn
// engine consumed by the worker and the staff inbox API.
package conversations

import (
	"imovelhub_backend/internal/conversations/handler"
	"imovelhub_backend/internal/conversations/repository"
	"imovelhub_backend/internal/conversations/service"
	"imovelhub_backend/internal/events"
	apphttp "imovelhub_backend/internal/http"
	"imovelhub_backend/platform/logger"
	"imovelhub_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the conversations domain module.
type Module struct {
	handler    *handler.Handler
	Repository *repository.Repository
	Staff      *service.Staff
}

// NewModule creates the staff-facing side of the module with all
// dependencies wired. The turn engine is assembled separately in the
// worker, which injects the AI and transcription clients.
func NewModule(pool *pgxpool.Pool, sender service.Sender, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	staff := service.NewStaff(repo, sender, bus, log)
	h := handler.New(staff, val)

	return &Module{
		handler:    h,
		Repository: repo,
		Staff:      staff,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "conversations"
}

// RegisterRoutes registers the module's routes under /api/v1/conversations.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	conversations := ctx.Protected.Group("/conversations")
	m.handler.RegisterRoutes(conversations)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
