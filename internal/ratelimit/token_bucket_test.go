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

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 3, 5) // burst of 3, 5 tokens/sec.

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("expected burst token %d", i)
		}
	}
	if b.Allow() {
		t.Fatalf("expected bucket to be empty")
	}

	clk.Advance(200 * time.Millisecond) // one token at 5/sec.
	if !b.Allow() {
		t.Fatalf("expected refill after time advance")
	}
	if b.Allow() {
		t.Fatalf("expected only one refilled token")
	}
}

func TestTokenBucket_DoesNotExceedCapacity(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 1, 1)

	if !b.Allow() {
		t.Fatalf("expected initial token")
	}
	clk.Advance(time.Hour)
	if !b.Allow() {
		t.Fatalf("expected refill up to capacity")
	}
	if b.Allow() {
		t.Fatalf("expected capacity clamp")
	}
}

func TestTokenBucket_ClockGoingBackwards(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	b := NewTokenBucket(clk, 1, 1)
	b.Allow()

	clk.Advance(-10 * time.Second)
	if b.Allow() {
		t.Fatalf("backwards clock must not refill")
	}
	clk.Advance(time.Second)
	if !b.Allow() {
		t.Fatalf("expected refill measured from the new reference point")
	}
}

func TestTokenBucket_DisabledAndNil(t *testing.T) {
	b := NewTokenBucket(nil, 1, 0)
	for i := 0; i < 10; i++ {
		if !b.Allow() {
			t.Fatalf("zero fill rate should disable limiting")
		}
	}
	var nilBucket *TokenBucket
	if !nilBucket.Allow() {
		t.Fatalf("nil bucket should allow")
	}
}
