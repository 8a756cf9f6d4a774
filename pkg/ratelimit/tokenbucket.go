// Package ratelimit shapes the UDP engine's proactive retransmission rate
// so that a sweep touching many stale sessions at once can't burst the
// whole registry's worth of retransmits onto the wire in a single tick.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket caps a stream of events to a steady long-run rate while still
// tolerating short bursts up to its burst size. Tokens accumulate at
// refillPerSec and are spent by Allow; when the bucket runs dry, Allow
// reports how long the caller must wait for enough tokens to refill.
type TokenBucket struct {
	mu sync.Mutex

	burst        int64
	refillPerSec int64
	available    float64
	lastRefill   time.Time

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// NewTokenBucket builds a bucket that refills at ratePerSec tokens/second
// and holds at most burst tokens at once. A non-positive burst defaults to
// ratePerSec, giving a bucket with exactly one second of headroom.
func NewTokenBucket(ratePerSec, burst int64) *TokenBucket {
	if burst <= 0 {
		burst = ratePerSec
	}
	return &TokenBucket{
		burst:        burst,
		refillPerSec: ratePerSec,
		available:    float64(burst),
		lastRefill:   time.Now(),
		now:          time.Now,
	}
}

// Allow attempts to withdraw n tokens. On success it reports ok=true and a
// zero wait. On failure it reports how long the caller would need to wait
// for the shortfall to refill at the bucket's steady rate; it does not
// itself block or reserve those future tokens.
func (b *TokenBucket) Allow(n int64) (ok bool, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.available >= float64(n) {
		b.available -= float64(n)
		return true, 0
	}

	shortfall := float64(n) - b.available
	seconds := shortfall / float64(b.refillPerSec)
	return false, time.Duration(seconds * float64(time.Second))
}

// refillLocked credits tokens earned since the last call, capped at the
// bucket's burst size. Callers must hold mu.
func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.lastRefill = now

	earned := elapsed.Seconds() * float64(b.refillPerSec)
	if earned <= 0 {
		return
	}
	b.available += earned
	if cap := float64(b.burst); b.available > cap {
		b.available = cap
	}
}
