package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/clubhouse"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/domain"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/engine"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/render"
	"github.com/go-chi/chi/v5"
)

// SignatureHeader carries the HMAC-SHA256 hex digest of the request body,
// keyed with the integration's secret.
const SignatureHeader = "X-Clubhouse-Signature"

const maxPayloadBytes = 1 << 20 // 1 MiB

// IntegrationSource resolves an integration ID to its configuration.
type IntegrationSource interface {
	GetIntegration(ctx context.Context, id string) (*domain.Integration, error)
}

// Enqueuer hands a rendered notification off for dispatch.
type Enqueuer interface {
	Enqueue(ctx context.Context, job engine.DispatchJob) error
}

// WebhookHandler is the ingestion endpoint. Per request it runs
// authenticate → decode → classify → render → enqueue. A request is either
// rejected (bad auth or malformed payload gets 400, unresolvable routing 500)
// or accepted with 200. Dispatch failures after acceptance never surface
// to the sender, so Clubhouse does not re-deliver and duplicate notifications.
type WebhookHandler struct {
	integrations IntegrationSource
	queue        Enqueuer
	logger       *slog.Logger
}

func NewWebhookHandler(integrations IntegrationSource, queue Enqueuer, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		integrations: integrations,
		queue:        queue,
		logger:       logger,
	}
}

type webhookResponse struct {
	Status    string `json:"status"`
	EventKind string `json:"event_kind"`
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	integrationID := chi.URLParam(r, "integrationID")

	integration, err := h.integrations.GetIntegration(r.Context(), integrationID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load integration")
		return
	}
	if integration == nil || !integration.IsActive {
		respondError(w, http.StatusNotFound, "unknown integration")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if !validSignature(body, integration.SecretKey, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook signature rejected", "integration_id", integrationID)
		respondError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	event, err := clubhouse.Decode(body, r.Header.Get("Content-Type"))
	if err != nil {
		var decodeErr *clubhouse.DecodeError
		if errors.As(err, &decodeErr) {
			respondError(w, http.StatusBadRequest, decodeErr.Reason)
			return
		}
		respondError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	kind := clubhouse.Classify(event)

	message, err := render.Render(*integration, event, kind)
	if err != nil {
		h.logger.Error("rendering failed",
			"integration_id", integrationID,
			"event_kind", kind,
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, "notification routing not configured")
		return
	}

	job := engine.DispatchJob{
		IntegrationID:      integration.ID,
		EventKind:          string(kind),
		Resource:           event.Resource,
		Action:             event.Action,
		Title:              event.Title,
		Stream:             message.Stream,
		Topic:              message.Topic,
		Content:            message.Content,
		RateLimitPerSecond: integration.RateLimitPerSecond,
	}

	// An enqueue failure is internal: the sender still gets a 200 so it
	// does not re-deliver, and the failure goes to the logs instead.
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("failed to enqueue dispatch job",
			"integration_id", integrationID,
			"event_kind", kind,
			"error", err,
		)
	}

	respondJSON(w, http.StatusOK, webhookResponse{
		Status:    "accepted",
		EventKind: string(kind),
	})
}

// ComputeSignature returns the hex HMAC-SHA256 digest senders must supply.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(body []byte, secret, header string) bool {
	if header == "" {
		return false
	}
	got, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
