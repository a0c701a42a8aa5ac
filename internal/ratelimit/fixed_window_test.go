package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowLimiterBlocksAfterLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	ctx := context.Background()
	first := limiter.Allow(ctx, "login:203.0.113.5")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first attempt should pass with one remaining, got %+v", first)
	}
	if !limiter.Allow(ctx, "login:203.0.113.5").Allowed {
		t.Fatalf("second attempt should pass")
	}
	third := limiter.Allow(ctx, "login:203.0.113.5")
	if third.Allowed {
		t.Fatalf("third attempt should be blocked")
	}
	if third.RetryAfter <= 0 || third.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry after %v", third.RetryAfter)
	}
	if !limiter.Allow(ctx, "login:198.51.100.1").Allowed {
		t.Fatalf("other keys have their own window")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter, err := NewFixedWindowLimiter(client, "", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	mr.Close()
	if limiter.Allow(context.Background(), "register:ip").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterConstructorValidation(t *testing.T) {
	if l, err := NewRedisFixedWindowLimiter("", "", "p", 1, time.Second); err == nil || l != nil {
		t.Fatalf("expected error for empty redis addr")
	}
	if _, err := NewFixedWindowLimiter(nil, "p", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if _, err := NewFixedWindowLimiter(client, "p", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
