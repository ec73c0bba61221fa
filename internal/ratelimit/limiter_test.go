package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"quantgate/internal/config"
)

func TestLimiterAcquireWithinCapacity(t *testing.T) {
	limiter := NewLimiter(config.RateLimitConfig{
		DefaultRatePerMinute: 1200,
		Capacities:           map[string]float64{"klines": 5},
		MaxWait:              time.Second,
	}, nil)

	for i := 0; i < 5; i++ {
		if err := limiter.Acquire(context.Background(), "klines", 1); err != nil {
			t.Fatalf("acquire %d returned error: %v", i, err)
		}
	}
}

func TestLimiterFailsClosedOnTimeout(t *testing.T) {
	limiter := NewLimiter(config.RateLimitConfig{
		DefaultRatePerMinute: 0.001,
		Capacities:           map[string]float64{"klines": 1},
		MaxWait:              120 * time.Millisecond,
	}, nil)

	if err := limiter.Acquire(context.Background(), "klines", 1); err != nil {
		t.Fatalf("first acquire should succeed, got %v", err)
	}

	err := limiter.Acquire(context.Background(), "klines", 1)
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("expected ErrAcquireTimeout, got %v", err)
	}
}

func TestLimiterHonorsContextCancellation(t *testing.T) {
	limiter := NewLimiter(config.RateLimitConfig{
		DefaultRatePerMinute: 0.001,
		Capacities:           map[string]float64{"klines": 1},
		MaxWait:              5 * time.Second,
	}, nil)

	if err := limiter.Acquire(context.Background(), "klines", 1); err != nil {
		t.Fatalf("first acquire should succeed, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx, "klines", 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}

func TestTokenBucketRefills(t *testing.T) {
	bucket := newTokenBucket(100, 1)
	if !bucket.Consume(1) {
		t.Fatalf("expected initial consume to succeed")
	}
	if bucket.Consume(1) {
		t.Fatalf("expected empty bucket to reject consume")
	}

	time.Sleep(50 * time.Millisecond)
	if !bucket.Consume(1) {
		t.Fatalf("expected refilled bucket to allow consume")
	}
}

func TestLimiterResetRestoresCapacity(t *testing.T) {
	limiter := NewLimiter(config.RateLimitConfig{
		DefaultRatePerMinute: 0.001,
		Capacities:           map[string]float64{"klines": 1},
		MaxWait:              100 * time.Millisecond,
	}, nil)

	if err := limiter.Acquire(context.Background(), "klines", 1); err != nil {
		t.Fatalf("first acquire should succeed, got %v", err)
	}

	limiter.Reset()

	if err := limiter.Acquire(context.Background(), "klines", 1); err != nil {
		t.Fatalf("acquire after reset should succeed, got %v", err)
	}
}

func TestLimiterTimeoutHookFires(t *testing.T) {
	limiter := NewLimiter(config.RateLimitConfig{
		DefaultRatePerMinute: 0.001,
		Capacities:           map[string]float64{"klines": 1},
		MaxWait:              120 * time.Millisecond,
	}, nil)

	var timedOut []string
	limiter.SetTimeoutHook(func(endpoint string) {
		timedOut = append(timedOut, endpoint)
	})

	if err := limiter.Acquire(context.Background(), "klines", 1); err != nil {
		t.Fatalf("first acquire should succeed, got %v", err)
	}
	if err := limiter.Acquire(context.Background(), "klines", 1); err == nil {
		t.Fatalf("expected timeout error")
	}

	if len(timedOut) != 1 || timedOut[0] != "klines" {
		t.Fatalf("expected hook to fire for klines, got %v", timedOut)
	}
}
