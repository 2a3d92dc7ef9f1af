package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/anagpal/clubhouse-zulip-bridge/internal/engine"
	ws "github.com/anagpal/clubhouse-zulip-bridge/internal/websocket"
)

type signalSender struct {
	delivered chan string
}

func (s *signalSender) SendMessage(ctx context.Context, stream, topic, content string) (int64, error) {
	s.delivered <- content
	return 1, nil
}

// Exercises the full queue path: enqueue, poller claim, worker dispatch.
func TestPoller_DeliversQueuedJobExactlyOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := testLogger()
	sender := &signalSender{delivered: make(chan string, 10)}
	history := &fakeHistory{}
	breaker := engine.NewCircuitBreaker(client, logger)
	limiter := engine.NewRateLimiter(client, logger)
	hub := ws.NewHub(logger)

	dispatcher := NewDispatcher(sender, history, breaker, limiter, hub, logger, 3, 30*time.Second)
	pool := NewPool(2, dispatcher, logger)
	poller := NewPoller(client, pool, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	go poller.Start(ctx)

	queue := engine.NewQueue(client, logger)
	job := testJob()
	if err := queue.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case content := <-sender.delivered:
		if content != job.Content {
			t.Errorf("delivered content: got %q, want %q", content, job.Content)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job was never dispatched")
	}

	// The claim removed the job, so nothing should arrive again.
	select {
	case <-sender.delivered:
		t.Fatal("job dispatched more than once")
	case <-time.After(300 * time.Millisecond):
	}

	depth, err := queue.Depth(context.Background())
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 0 {
		t.Errorf("queue depth after dispatch: got %d, want 0", depth)
	}

	cancel()
	pool.Stop()
}
