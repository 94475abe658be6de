package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abdualsslam/tras-phone-sub000/internal/api/http/handlers"
	"github.com/Abdualsslam/tras-phone-sub000/internal/auth"
	"github.com/Abdualsslam/tras-phone-sub000/internal/domain"
	"github.com/Abdualsslam/tras-phone-sub000/internal/realtime"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Chat           *handlers.ChatHandler
	Reports        *handlers.ReportsHandler
	Gateway        *realtime.Gateway
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/agents/login", cfg.Auth.Login)

	app.Use("/ws", cfg.Gateway.Upgrade)
	app.Get("/ws", cfg.Gateway.Handler())

	// Customer and visitor surface: no authentication, internal content hidden.
	public := app.Group("/public")
	public.Post("/tickets", cfg.Tickets.Create)
	public.Get("/tickets/:id", cfg.Tickets.GetPublic)
	public.Post("/tickets/:id/messages", cfg.Tickets.AddCustomerMessage)
	public.Post("/tickets/:id/rating", cfg.Tickets.Rate)

	public.Post("/chat/sessions", cfg.Chat.Start)
	public.Get("/chat/sessions/:id", cfg.Chat.GetPublic)
	public.Post("/chat/sessions/:id/messages", cfg.Chat.AddVisitorMessage)
	public.Patch("/chat/sessions/:id/page", cfg.Chat.UpdatePage)
	public.Post("/chat/sessions/:id/read", cfg.Chat.MarkReadVisitor)
	public.Post("/chat/sessions/:id/end", cfg.Chat.EndPublic)
	public.Post("/chat/sessions/:id/rating", cfg.Chat.Rate)

	// Agent surface.
	agents := app.Group("/agent", cfg.AuthMiddleware.Handle, auth.RequireAgentRole())
	agents.Get("/tickets", cfg.Tickets.List)
	agents.Get("/tickets/:id", cfg.Tickets.Get)
	agents.Patch("/tickets/:id/status", cfg.Tickets.UpdateStatus)
	agents.Post("/tickets/:id/assign", cfg.Tickets.Assign)
	agents.Post("/tickets/:id/escalate", cfg.Tickets.Escalate)
	agents.Post("/tickets/:id/messages", cfg.Tickets.AddAgentMessage)

	agents.Get("/chat/sessions", cfg.Chat.List)
	agents.Get("/chat/sessions/:id", cfg.Chat.Get)
	agents.Post("/chat/sessions/:id/accept", cfg.Chat.Accept)
	agents.Post("/chat/sessions/:id/transfer", cfg.Chat.Transfer)
	agents.Post("/chat/sessions/:id/end", cfg.Chat.End)
	agents.Post("/chat/sessions/:id/messages", cfg.Chat.AddAgentMessage)
	agents.Post("/chat/sessions/:id/read", cfg.Chat.MarkRead)

	// Merge and reports stay supervisor-only.
	supervisors := app.Group("/agent", cfg.AuthMiddleware.Handle,
		auth.RequireAgentRole(domain.AgentRoleSupervisor, domain.AgentRoleAdmin))
	supervisors.Post("/tickets/:id/merge", cfg.Tickets.Merge)
	supervisors.Get("/reports/tickets", cfg.Reports.Tickets)
	supervisors.Get("/reports/chats", cfg.Reports.Chats)
}
