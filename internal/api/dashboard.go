package api

import (
	"net/http"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/engine"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/store"
	ws "github.com/anagpal/clubhouse-zulip-bridge/internal/websocket"
)

type DashboardHandler struct {
	store *store.PostgresStore
	queue *engine.Queue
	cb    *engine.CircuitBreaker
	hub   *ws.Hub
}

func NewDashboardHandler(s *store.PostgresStore, q *engine.Queue, cb *engine.CircuitBreaker, hub *ws.Hub) *DashboardHandler {
	return &DashboardHandler{store: s, queue: q, cb: cb, hub: hub}
}

// Metrics returns aggregated dispatch metrics for operators.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetNotificationMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	queueDepth, err := h.queue.Depth(r.Context())
	if err != nil {
		queueDepth = 0
	}

	type metricsResponse struct {
		store.NotificationMetrics
		QueueDepth       int64 `json:"queue_depth"`
		WebSocketClients int   `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		NotificationMetrics: *metrics,
		QueueDepth:          queueDepth,
		WebSocketClients:    h.hub.ClientCount(),
	})
}

// IntegrationHealth returns circuit breaker state for every integration.
func (h *DashboardHandler) IntegrationHealth(w http.ResponseWriter, r *http.Request) {
	integrations, err := h.store.ListIntegrations(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list integrations")
		return
	}

	type integrationHealth struct {
		ID             string                     `json:"id"`
		Name           string                     `json:"name"`
		Stream         string                     `json:"stream"`
		IsActive       bool                       `json:"is_active"`
		CircuitBreaker engine.CircuitBreakerState `json:"circuit_breaker"`
	}

	result := make([]integrationHealth, 0, len(integrations))
	for _, integration := range integrations {
		cbState := h.cb.GetState(r.Context(), integration.ID)
		result = append(result, integrationHealth{
			ID:             integration.ID,
			Name:           integration.Name,
			Stream:         integration.Stream,
			IsActive:       integration.IsActive,
			CircuitBreaker: cbState,
		})
	}

	respondJSON(w, http.StatusOK, result)
}
