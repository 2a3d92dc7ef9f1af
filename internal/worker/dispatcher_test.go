package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/engine"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/store"
	ws "github.com/anagpal/clubhouse-zulip-bridge/internal/websocket"
	"github.com/anagpal/clubhouse-zulip-bridge/internal/zulip"
)

type fakeSender struct {
	mu    sync.Mutex
	calls int
	errs  []error // errs[i] is returned for call i; past the end, success
	id    int64
}

func (f *fakeSender) SendMessage(ctx context.Context, stream, topic, content string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := f.calls
	f.calls++
	if call < len(f.errs) && f.errs[call] != nil {
		return 0, f.errs[call]
	}
	return f.id, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHistory struct {
	mu            sync.Mutex
	notifications []store.NotificationRecord
	deadLetters   []store.DeadLetterRecord
}

func (f *fakeHistory) RecordNotification(ctx context.Context, rec store.NotificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, rec)
	return nil
}

func (f *fakeHistory) InsertDeadLetter(ctx context.Context, rec store.DeadLetterRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetters = append(f.deadLetters, rec)
	return nil
}

func (f *fakeHistory) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.notifications))
	for i, n := range f.notifications {
		out[i] = n.Status
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	sender     *fakeSender
	history    *fakeHistory
	breaker    *engine.CircuitBreaker
	sleeps     *[]time.Duration
}

func setupDispatcher(t *testing.T, sender *fakeSender) dispatcherFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := testLogger()
	history := &fakeHistory{}
	breaker := engine.NewCircuitBreaker(client, logger)
	limiter := engine.NewRateLimiter(client, logger)
	hub := ws.NewHub(logger)

	d := NewDispatcher(sender, history, breaker, limiter, hub, logger, 3, 30*time.Second)

	sleeps := &[]time.Duration{}
	d.sleep = func(dur time.Duration) {
		*sleeps = append(*sleeps, dur)
	}

	return dispatcherFixture{
		dispatcher: d,
		sender:     sender,
		history:    history,
		breaker:    breaker,
		sleeps:     sleeps,
	}
}

func testJob() engine.DispatchJob {
	return engine.DispatchJob{
		IntegrationID: "int-1",
		EventKind:     "story_created",
		Resource:      "story",
		Action:        "create",
		Title:         "Fix login bug",
		Stream:        "engineering",
		Topic:         "clubhouse",
		Content:       "**alice** created story **Fix login bug**",
	}
}

func transientErr() error {
	return &zulip.APIError{StatusCode: http.StatusInternalServerError, Msg: "server error"}
}

func permanentErr() error {
	return &zulip.APIError{StatusCode: http.StatusBadRequest, Code: "STREAM_DOES_NOT_EXIST", Msg: "no such stream"}
}

func TestDispatch_SuccessFirstAttempt(t *testing.T) {
	f := setupDispatcher(t, &fakeSender{id: 777})

	result := f.dispatcher.Dispatch(context.Background(), testJob())

	if !result.Delivered {
		t.Fatalf("not delivered: %s", result.Reason)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts: got %d, want 1", result.Attempts)
	}
	if result.MessageID != 777 {
		t.Errorf("message ID: got %d, want 777", result.MessageID)
	}
	if len(*f.sleeps) != 0 {
		t.Errorf("sleeps: got %d, want 0", len(*f.sleeps))
	}
	if got := f.history.statuses(); len(got) != 1 || got[0] != "success" {
		t.Errorf("recorded statuses: got %v, want [success]", got)
	}
	if len(f.history.deadLetters) != 0 {
		t.Errorf("dead letters: got %d, want 0", len(f.history.deadLetters))
	}
}

func TestDispatch_TransientFailuresThenSuccess(t *testing.T) {
	f := setupDispatcher(t, &fakeSender{
		id:   42,
		errs: []error{transientErr(), transientErr()},
	})

	result := f.dispatcher.Dispatch(context.Background(), testJob())

	if !result.Delivered {
		t.Fatalf("not delivered: %s", result.Reason)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts: got %d, want 3", result.Attempts)
	}
	if len(*f.sleeps) != 2 {
		t.Errorf("sleeps: got %d, want 2", len(*f.sleeps))
	}
	want := []string{"retrying", "retrying", "success"}
	got := f.history.statuses()
	if len(got) != len(want) {
		t.Fatalf("recorded statuses: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatch_BackoffGrowsWithAttempt(t *testing.T) {
	f := setupDispatcher(t, &fakeSender{
		errs: []error{transientErr(), transientErr()},
	})

	f.dispatcher.Dispatch(context.Background(), testJob())

	sleeps := *f.sleeps
	if len(sleeps) != 2 {
		t.Fatalf("sleeps: got %d, want 2", len(sleeps))
	}
	// Full jitter: each delay is in (0, base<<(attempt-1)]
	if sleeps[0] <= 0 || sleeps[0] > 200*time.Millisecond {
		t.Errorf("first delay %v outside (0, 200ms]", sleeps[0])
	}
	if sleeps[1] <= 0 || sleeps[1] > 400*time.Millisecond {
		t.Errorf("second delay %v outside (0, 400ms]", sleeps[1])
	}
}

func TestDispatch_PermanentFailureStopsImmediately(t *testing.T) {
	f := setupDispatcher(t, &fakeSender{
		errs: []error{permanentErr(), permanentErr(), permanentErr()},
	})

	result := f.dispatcher.Dispatch(context.Background(), testJob())

	if result.Delivered {
		t.Fatal("permanent failure must not be delivered")
	}
	if result.Attempts != 1 {
		t.Errorf("attempts: got %d, want 1", result.Attempts)
	}
	if f.sender.callCount() != 1 {
		t.Errorf("sender calls: got %d, want 1 (no retry on permanent failure)", f.sender.callCount())
	}
	if len(*f.sleeps) != 0 {
		t.Errorf("sleeps: got %d, want 0", len(*f.sleeps))
	}
	if len(f.history.deadLetters) != 1 {
		t.Fatalf("dead letters: got %d, want 1", len(f.history.deadLetters))
	}
	if f.history.deadLetters[0].TotalAttempts != 1 {
		t.Errorf("dead letter attempts: got %d, want 1", f.history.deadLetters[0].TotalAttempts)
	}
}

func TestDispatch_ExhaustedRetries(t *testing.T) {
	f := setupDispatcher(t, &fakeSender{
		errs: []error{transientErr(), transientErr(), transientErr()},
	})

	result := f.dispatcher.Dispatch(context.Background(), testJob())

	if result.Delivered {
		t.Fatal("exhausted retries must not be delivered")
	}
	if result.Attempts != 3 {
		t.Errorf("attempts: got %d, want 3", result.Attempts)
	}
	if f.sender.callCount() != 3 {
		t.Errorf("sender calls: got %d, want 3", f.sender.callCount())
	}
	if len(f.history.deadLetters) != 1 {
		t.Fatalf("dead letters: got %d, want 1", len(f.history.deadLetters))
	}
	dl := f.history.deadLetters[0]
	if dl.TotalAttempts != 3 {
		t.Errorf("dead letter attempts: got %d, want 3", dl.TotalAttempts)
	}
	if dl.Content != testJob().Content {
		t.Errorf("dead letter content: got %q", dl.Content)
	}
}

func TestDispatch_CircuitOpenSkipsSender(t *testing.T) {
	f := setupDispatcher(t, &fakeSender{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.breaker.RecordFailure(ctx, "int-1")
	}

	result := f.dispatcher.Dispatch(ctx, testJob())

	if result.Delivered {
		t.Fatal("open circuit must not deliver")
	}
	if result.Attempts != 0 {
		t.Errorf("attempts: got %d, want 0", result.Attempts)
	}
	if result.Reason != "circuit breaker open" {
		t.Errorf("reason: got %q", result.Reason)
	}
	if f.sender.callCount() != 0 {
		t.Errorf("sender calls: got %d, want 0", f.sender.callCount())
	}
}

func TestDispatch_RateLimitedCountsAsTransient(t *testing.T) {
	f := setupDispatcher(t, &fakeSender{})
	ctx := context.Background()

	job := testJob()
	job.RateLimitPerSecond = 1

	// First job consumes the only slot in the window.
	if got := f.dispatcher.Dispatch(ctx, job); !got.Delivered {
		t.Fatalf("first dispatch failed: %s", got.Reason)
	}

	// Fake sleep means no real time passes, so the window never clears.
	result := f.dispatcher.Dispatch(ctx, job)

	if result.Delivered {
		t.Fatal("rate-limited dispatch must not deliver")
	}
	if result.Reason != "rate limited" {
		t.Errorf("reason: got %q, want %q", result.Reason, "rate limited")
	}
	if f.sender.callCount() != 1 {
		t.Errorf("sender calls: got %d, want 1 (only the first job)", f.sender.callCount())
	}
	if len(f.history.deadLetters) != 1 {
		t.Errorf("dead letters: got %d, want 1", len(f.history.deadLetters))
	}
}

func TestDispatch_NonAPIErrorIsRetried(t *testing.T) {
	f := setupDispatcher(t, &fakeSender{
		id:   9,
		errs: []error{errors.New("connection reset by peer")},
	})

	result := f.dispatcher.Dispatch(context.Background(), testJob())

	if !result.Delivered {
		t.Fatalf("not delivered: %s", result.Reason)
	}
	if result.Attempts != 2 {
		t.Errorf("attempts: got %d, want 2", result.Attempts)
	}
}
