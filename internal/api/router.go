package api

import (
	"log/slog"
	"net/http"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/engine"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/store"
	ws "github.com/anagpal/clubhouse-zulip-bridge/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, queue *engine.Queue, cb *engine.CircuitBreaker, hub *ws.Hub, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// Handlers
	webhookHandler := NewWebhookHandler(pgStore, queue, logger)
	integrationHandler := NewIntegrationHandler(pgStore, cb)
	notificationHandler := NewNotificationHandler(pgStore)
	dlqHandler := NewDeadLetterHandler(pgStore)
	dashHandler := NewDashboardHandler(pgStore, queue, cb, hub)

	// Inbound webhook from Clubhouse
	r.Post("/webhooks/clubhouse/{integrationID}", webhookHandler.Receive)

	// WebSocket endpoint for the live dispatch feed
	r.Get("/ws", hub.HandleWebSocket)

	// Operator API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/integrations", func(r chi.Router) {
			r.Post("/", integrationHandler.Create)
			r.Get("/", integrationHandler.List)
			r.Get("/{id}", integrationHandler.Get)
			r.Patch("/{id}", integrationHandler.Update)
			r.Get("/{id}/health", integrationHandler.Health)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Get("/{id}", notificationHandler.Get)
		})

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", dlqHandler.List)
			r.Get("/{id}", dlqHandler.Get)
			r.Post("/{id}/resolve", dlqHandler.Resolve)
		})

		r.Get("/metrics", dashHandler.Metrics)
		r.Get("/integrations-health", dashHandler.IntegrationHealth)
	})

	return r
}
