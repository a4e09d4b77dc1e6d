package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/http/handlers"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// ticketCreators may open tickets; executives always may.
var ticketCreators = []domain.Role{
	domain.RoleClient,
	domain.RoleSales,
	domain.RoleAccountManager,
	domain.RoleCareerAssociate,
	domain.RoleCATeamLead,
	domain.RoleResumeTeamHead,
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Get("/me", cfg.AuthMiddleware.Handle, cfg.Users.Me)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", auth.RequireRole(ticketCreators...), cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/actions/:action", cfg.Tickets.SubmitAction)
}
