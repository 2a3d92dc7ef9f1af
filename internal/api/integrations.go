package api

import (
	"encoding/json"
	"net/http"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/domain"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/engine"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/store"
	"github.com/go-chi/chi/v5"
)

type IntegrationHandler struct {
	store          *store.PostgresStore
	circuitBreaker *engine.CircuitBreaker
}

func NewIntegrationHandler(s *store.PostgresStore, cb *engine.CircuitBreaker) *IntegrationHandler {
	return &IntegrationHandler{store: s, circuitBreaker: cb}
}

func (h *IntegrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Stream == "" {
		respondError(w, http.StatusBadRequest, "stream is required")
		return
	}

	integration, err := h.store.CreateIntegration(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create integration")
		return
	}

	respondJSON(w, http.StatusCreated, domain.CreateIntegrationResponse{
		ID:        integration.ID,
		Name:      integration.Name,
		SecretKey: integration.SecretKey,
	})
}

func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	integrations, err := h.store.ListIntegrations(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list integrations")
		return
	}

	respondJSON(w, http.StatusOK, integrations)
}

func (h *IntegrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	integration, err := h.store.GetIntegration(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get integration")
		return
	}
	if integration == nil {
		respondError(w, http.StatusNotFound, "integration not found")
		return
	}

	// Secrets are only shown at creation time
	integration.SecretKey = ""

	respondJSON(w, http.StatusOK, integration)
}

func (h *IntegrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req domain.UpdateIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	integration, err := h.store.UpdateIntegration(r.Context(), id, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update integration")
		return
	}
	if integration == nil {
		respondError(w, http.StatusNotFound, "integration not found")
		return
	}

	respondJSON(w, http.StatusOK, integration)
}

func (h *IntegrationHandler) Health(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	integration, err := h.store.GetIntegration(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get integration")
		return
	}
	if integration == nil {
		respondError(w, http.StatusNotFound, "integration not found")
		return
	}

	cbState := h.circuitBreaker.GetState(r.Context(), id)

	type healthResponse struct {
		IntegrationID  string                     `json:"integration_id"`
		Name           string                     `json:"name"`
		Stream         string                     `json:"stream"`
		IsActive       bool                       `json:"is_active"`
		CircuitBreaker engine.CircuitBreakerState `json:"circuit_breaker"`
	}

	respondJSON(w, http.StatusOK, healthResponse{
		IntegrationID:  integration.ID,
		Name:           integration.Name,
		Stream:         integration.Stream,
		IsActive:       integration.IsActive,
		CircuitBreaker: cbState,
	})
}
