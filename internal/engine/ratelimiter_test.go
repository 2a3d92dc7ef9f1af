package engine

import (
	"context"
	"testing"
)

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(setupRedis(t), testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !rl.Allow(ctx, "int-1", 5) {
			t.Fatalf("call %d denied, limit is 5", i+1)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(setupRedis(t), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !rl.Allow(ctx, "int-1", 3) {
			t.Fatalf("call %d denied, limit is 3", i+1)
		}
	}

	if rl.Allow(ctx, "int-1", 3) {
		t.Error("4th call within the window must be denied")
	}
}

func TestRateLimiter_ZeroLimitIsUnlimited(t *testing.T) {
	rl := NewRateLimiter(setupRedis(t), testLogger())
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if !rl.Allow(ctx, "int-1", 0) {
			t.Fatal("zero limit must never deny")
		}
	}
}

func TestRateLimiter_IsolatedPerIntegration(t *testing.T) {
	rl := NewRateLimiter(setupRedis(t), testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rl.Allow(ctx, "int-1", 2)
	}
	if rl.Allow(ctx, "int-1", 2) {
		t.Error("int-1 must be rate limited")
	}

	if !rl.Allow(ctx, "int-2", 2) {
		t.Error("int-2 must not be affected by int-1's window")
	}
}
