package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_TryConsume(t *testing.T) {
	limiter := NewRateLimiter(3)

	for i := 0; i < 3; i++ {
		if !limiter.TryConsume() {
			t.Fatalf("TryConsume() = false on request %d, want true", i+1)
		}
	}
	if limiter.TryConsume() {
		t.Error("TryConsume() = true with bucket drained, want false")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	// 6000 per minute refills 100 tokens per second, so a drained
	// bucket recovers within a few milliseconds.
	limiter := NewRateLimiter(6000)
	for limiter.TryConsume() {
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if limiter.TryConsume() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("bucket never refilled")
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("token available", func(t *testing.T) {
		limiter := NewRateLimiter(10)
		if err := limiter.Wait(context.Background()); err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	})

	t.Run("context cancelled while waiting", func(t *testing.T) {
		// One request per minute: the drained bucket will not refill
		// before the context deadline.
		limiter := NewRateLimiter(1)
		if !limiter.TryConsume() {
			t.Fatal("initial token unavailable")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if err := limiter.Wait(ctx); err != context.DeadlineExceeded {
			t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
		}
	})
}

func TestRateLimiter_Status(t *testing.T) {
	limiter := NewRateLimiter(10)
	limiter.TryConsume()
	limiter.TryConsume()

	status := limiter.Status()
	if status.TokensLimit != 10 {
		t.Errorf("TokensLimit = %d, want 10", status.TokensLimit)
	}
	if status.TokensAvailable > 8 {
		t.Errorf("TokensAvailable = %d, want at most 8", status.TokensAvailable)
	}
	if status.TotalConsumed != 2 {
		t.Errorf("TotalConsumed = %d, want 2", status.TotalConsumed)
	}
}

func TestRateLimiter_DefaultsInvalidLimit(t *testing.T) {
	limiter := NewRateLimiter(0)
	if got := limiter.Status().TokensLimit; got != 60 {
		t.Errorf("TokensLimit = %d, want 60", got)
	}
}
