package ratelimit

import (
	"sync"
	"time"
)

// nanoTokensPerToken scales tokens so that a rate of X tokens/sec adds X
// nano-tokens per elapsed nanosecond, avoiding float rounding.
const nanoTokensPerToken int64 = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TokenBucket limits inbound envelopes for one signaling session.
type TokenBucket struct {
	mu sync.Mutex

	clock Clock

	capacity  int64 // nano-tokens
	fillRate  int64 // tokens/sec
	available int64 // nano-tokens
	last      time.Time
}

// NewTokenBucket returns a full bucket. A non-positive fillRate disables
// limiting entirely.
func NewTokenBucket(clock Clock, capacityTokens, fillRate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacityTokens < 1 {
		capacityTokens = 1
	}
	capacity := mulSaturating(capacityTokens, nanoTokensPerToken)
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		fillRate:  fillRate,
		available: capacity,
		last:      clock.Now(),
	}
}

// Allow consumes one token if available.
func (b *TokenBucket) Allow() bool {
	if b == nil || b.fillRate <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if now.After(b.last) {
		elapsed := int64(now.Sub(b.last))
		b.available += mulSaturating(elapsed, b.fillRate)
		if b.available > b.capacity || b.available < 0 {
			b.available = b.capacity
		}
	}
	// Time going backwards only moves the reference point.
	b.last = now

	if b.available < nanoTokensPerToken {
		return false
	}
	b.available -= nanoTokensPerToken
	return true
}

func mulSaturating(a, b int64) int64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > maxInt64/b {
		return maxInt64
	}
	return a * b
}
