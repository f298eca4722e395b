package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenBucket_AllowAndRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clk, 5, 5)

	for i := 0; i < 5; i++ {
		if !b.Allow(1) {
			t.Fatalf("message %d rejected during initial burst", i)
		}
	}
	if b.Allow(1) {
		t.Fatalf("expected bucket to be empty")
	}

	clk.Advance(200 * time.Millisecond)
	if !b.Allow(1) {
		t.Fatalf("expected refill after time advance")
	}
	if b.Allow(1) {
		t.Fatalf("expected a single token after 200ms at 5/s")
	}
}

func TestTokenBucket_DoesNotExceedCapacity(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clk, 2, 10)

	clk.Advance(10 * time.Second)
	if !b.Allow(2) {
		t.Fatalf("expected full bucket")
	}
	if b.Allow(1) {
		t.Fatalf("bucket refilled beyond capacity")
	}
}

func TestTokenBucket_DisabledAllowsEverything(t *testing.T) {
	var b *TokenBucket
	if !b.Allow(1000) {
		t.Fatalf("nil bucket rejected")
	}
	if NewPerSecond(nil, 0) != nil {
		t.Fatalf("expected zero rate to disable limiting")
	}
}

func TestTokenBucket_NonPositiveCostAlwaysAllowed(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewPerSecond(clk, 1)
	if !b.Allow(1) {
		t.Fatalf("expected initial token")
	}
	if !b.Allow(0) || !b.Allow(-3) {
		t.Fatalf("expected zero cost to succeed on an empty bucket")
	}
}
