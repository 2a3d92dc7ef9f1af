package worker

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/domain"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/engine"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/store"
	ws "github.com/anagpal/clubhouse-zulip-bridge/internal/websocket"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/zulip"
)

// MessageSender posts one message and returns the platform-assigned ID.
type MessageSender interface {
	SendMessage(ctx context.Context, stream, topic, content string) (int64, error)
}

// History records dispatch outcomes for operator diagnosis.
type History interface {
	RecordNotification(ctx context.Context, rec store.NotificationRecord) error
	InsertDeadLetter(ctx context.Context, rec store.DeadLetterRecord) error
}

// Dispatcher delivers one rendered notification to Zulip with a bounded
// attempt loop: transient failures are retried with exponential backoff and
// full jitter, permanent failures stop immediately. A failed result is
// returned, never an error; nothing propagates past this boundary.
type Dispatcher struct {
	sender         MessageSender
	history        History
	circuitBreaker *engine.CircuitBreaker
	rateLimiter    *engine.RateLimiter
	hub            *ws.Hub
	logger         *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration

	// sleep is swapped out in tests so retries need no real time.
	sleep func(time.Duration)
}

func NewDispatcher(sender MessageSender, history History, cb *engine.CircuitBreaker, rl *engine.RateLimiter, hub *ws.Hub, logger *slog.Logger, maxAttempts int, timeout time.Duration) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		sender:         sender,
		history:        history,
		circuitBreaker: cb,
		rateLimiter:    rl,
		hub:            hub,
		logger:         logger,
		maxAttempts:    maxAttempts,
		baseDelay:      200 * time.Millisecond,
		timeout:        timeout,
		sleep:          time.Sleep,
	}
}

// Dispatch runs the attempt loop for one job. The per-job timeout bounds
// the whole retry budget; a started attempt is never cancelled mid-flight.
func (d *Dispatcher) Dispatch(ctx context.Context, job engine.DispatchJob) domain.DispatchResult {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if state, allowed := d.circuitBreaker.AllowRequest(ctx, job.IntegrationID); !allowed {
		d.logger.Warn("dispatch skipped, circuit open",
			"integration_id", job.IntegrationID,
			"state", state,
		)
		return d.fail(ctx, job, 0, "circuit breaker open")
	}

	var lastReason string

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 && ctx.Err() != nil {
			return d.fail(ctx, job, attempt-1, "dispatch timeout exceeded")
		}

		if !d.rateLimiter.Allow(ctx, job.IntegrationID, job.RateLimitPerSecond) {
			lastReason = "rate limited"
			if attempt < d.maxAttempts {
				d.retrying(ctx, job, attempt, lastReason, 0)
				d.sleep(d.backoff(attempt))
				continue
			}
			break
		}

		start := time.Now()
		messageID, err := d.sender.SendMessage(ctx, job.Stream, job.Topic, job.Content)
		elapsed := time.Since(start).Milliseconds()

		if err == nil {
			d.circuitBreaker.RecordSuccess(ctx, job.IntegrationID)
			d.succeed(ctx, job, attempt, messageID, elapsed)
			return domain.DispatchResult{
				Delivered: true,
				MessageID: messageID,
				Attempts:  attempt,
			}
		}

		d.circuitBreaker.RecordFailure(ctx, job.IntegrationID)
		lastReason = err.Error()

		if !zulip.IsTransient(err) {
			d.logger.Warn("permanent dispatch failure",
				"integration_id", job.IntegrationID,
				"attempt", attempt,
				"error", err,
			)
			result := d.fail(ctx, job, attempt, lastReason)
			d.deadLetter(ctx, job, attempt, lastReason)
			return result
		}

		if attempt < d.maxAttempts {
			d.retrying(ctx, job, attempt, lastReason, elapsed)
			d.sleep(d.backoff(attempt))
		}
	}

	// Retry budget exhausted
	result := d.fail(ctx, job, d.maxAttempts, lastReason)
	d.deadLetter(ctx, job, d.maxAttempts, lastReason)
	return result
}

// backoff returns a full-jitter delay for the given attempt number.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	ceiling := d.baseDelay << (attempt - 1)
	return time.Duration(rand.Int64N(int64(ceiling)) + 1)
}

func (d *Dispatcher) succeed(ctx context.Context, job engine.DispatchJob, attempt int, messageID int64, elapsedMs int64) {
	d.record(ctx, store.NotificationRecord{
		IntegrationID:  job.IntegrationID,
		EventKind:      job.EventKind,
		Resource:       job.Resource,
		Action:         job.Action,
		Title:          job.Title,
		AttemptNumber:  attempt,
		Status:         "success",
		ZulipMessageID: &messageID,
		ResponseTimeMs: int(elapsedMs),
	})

	d.hub.Broadcast(ws.NotificationEvent{
		Type:          "dispatch_success",
		IntegrationID: job.IntegrationID,
		EventKind:     job.EventKind,
		Stream:        job.Stream,
		Topic:         job.Topic,
		Attempt:       attempt,
		MessageID:     &messageID,
		ResponseMs:    elapsedMs,
		Timestamp:     time.Now(),
	})

	d.logger.Info("dispatch successful",
		"integration_id", job.IntegrationID,
		"event_kind", job.EventKind,
		"attempt", attempt,
		"message_id", messageID,
		"response_time_ms", elapsedMs,
	)
}

func (d *Dispatcher) retrying(ctx context.Context, job engine.DispatchJob, attempt int, reason string, elapsedMs int64) {
	d.record(ctx, store.NotificationRecord{
		IntegrationID:  job.IntegrationID,
		EventKind:      job.EventKind,
		Resource:       job.Resource,
		Action:         job.Action,
		Title:          job.Title,
		AttemptNumber:  attempt,
		Status:         "retrying",
		Reason:         reason,
		ResponseTimeMs: int(elapsedMs),
	})

	d.hub.Broadcast(ws.NotificationEvent{
		Type:          "dispatch_retrying",
		IntegrationID: job.IntegrationID,
		EventKind:     job.EventKind,
		Stream:        job.Stream,
		Topic:         job.Topic,
		Attempt:       attempt,
		ResponseMs:    elapsedMs,
		Error:         reason,
		Timestamp:     time.Now(),
	})

	d.logger.Warn("dispatch attempt failed, will retry",
		"integration_id", job.IntegrationID,
		"attempt", attempt,
		"error", reason,
	)
}

func (d *Dispatcher) fail(ctx context.Context, job engine.DispatchJob, attempts int, reason string) domain.DispatchResult {
	d.record(ctx, store.NotificationRecord{
		IntegrationID: job.IntegrationID,
		EventKind:     job.EventKind,
		Resource:      job.Resource,
		Action:        job.Action,
		Title:         job.Title,
		AttemptNumber: attempts,
		Status:        "failed",
		Reason:        reason,
	})

	d.hub.Broadcast(ws.NotificationEvent{
		Type:          "dispatch_failed",
		IntegrationID: job.IntegrationID,
		EventKind:     job.EventKind,
		Stream:        job.Stream,
		Topic:         job.Topic,
		Attempt:       attempts,
		Error:         reason,
		Timestamp:     time.Now(),
	})

	d.logger.Error("dispatch failed",
		"integration_id", job.IntegrationID,
		"event_kind", job.EventKind,
		"attempts", attempts,
		"error", reason,
	)

	return domain.DispatchResult{
		Delivered: false,
		Reason:    reason,
		Attempts:  attempts,
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, job engine.DispatchJob, attempts int, reason string) {
	// The job context may already be expired; recording must still happen.
	err := d.history.InsertDeadLetter(context.WithoutCancel(ctx), store.DeadLetterRecord{
		IntegrationID: job.IntegrationID,
		EventKind:     job.EventKind,
		Content:       job.Content,
		TotalAttempts: attempts,
		LastError:     reason,
	})
	if err != nil {
		d.logger.Error("failed to insert dead letter",
			"error", err,
			"integration_id", job.IntegrationID,
		)
	}

	d.hub.Broadcast(ws.NotificationEvent{
		Type:          "dispatch_dead_letter",
		IntegrationID: job.IntegrationID,
		EventKind:     job.EventKind,
		Stream:        job.Stream,
		Topic:         job.Topic,
		Attempt:       attempts,
		Error:         reason,
		Timestamp:     time.Now(),
	})
}

func (d *Dispatcher) record(ctx context.Context, rec store.NotificationRecord) {
	if err := d.history.RecordNotification(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Error("failed to record notification",
			"error", err,
			"integration_id", rec.IntegrationID,
		)
	}
}
