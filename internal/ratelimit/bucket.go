package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/nulpointcorp/agentreg/internal/errkind"
)

// TokenBucket is a concurrency-safe token bucket: tokens regenerate at a
// fixed rate and each request consumes some number of them. Refill is
// lazy — it is computed on every Consume/Available call, never by a
// background goroutine — so a bucket that never sees traffic costs
// nothing to keep around.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a bucket starting at full capacity.
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: time.Now(),
	}
}

// Consume tries to take n tokens from the bucket. The refill+decrement
// pair is atomic with respect to other callers: Consume never leaves
// tokens above capacity or below zero.
func (b *TokenBucket) Consume(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Available returns the current token count after an up-to-date refill,
// without consuming anything. Used for monitoring.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

func (b *TokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
}

// Limiter combines an optional QPS bucket and an optional TPM bucket
// into one admission check. A nil bucket never declines.
type Limiter struct {
	qps *TokenBucket
	tpm *TokenBucket
}

// NewLimiter builds a combined limiter. maxQPS/maxTPM of 0 disables the
// corresponding bucket entirely (it is never constructed and never
// declines). The QPS bucket has capacity=refill=maxQPS (one token per
// request); the TPM bucket has capacity=maxTPM and refill=maxTPM/60
// (it is charged in whole tokens, one per estimated output token).
func NewLimiter(maxQPS, maxTPM float64) *Limiter {
	l := &Limiter{}
	if maxQPS > 0 {
		l.qps = NewTokenBucket(maxQPS, maxQPS)
	}
	if maxTPM > 0 {
		l.tpm = NewTokenBucket(maxTPM, maxTPM/60)
	}
	return l
}

// CheckRateLimit is the combined admission decision: a request is
// admitted only if every configured bucket can reserve, and tokens are
// consumed from both buckets or from neither. Both buckets are held
// locked together for the refill-check-consume sequence so a decline
// by one never leaks a token from the other. When both would decline,
// qps_limit is the reported reason.
func (l *Limiter) CheckRateLimit(estimatedTokens int) (bool, errkind.RateLimitReason) {
	if l.qps != nil {
		l.qps.mu.Lock()
		defer l.qps.mu.Unlock()
		l.qps.refillLocked()
	}
	chargeTPM := l.tpm != nil && estimatedTokens > 0
	if chargeTPM {
		l.tpm.mu.Lock()
		defer l.tpm.mu.Unlock()
		l.tpm.refillLocked()
	}

	qpsOK := l.qps == nil || l.qps.tokens >= 1
	tpmOK := !chargeTPM || l.tpm.tokens >= float64(estimatedTokens)

	switch {
	case !qpsOK:
		return false, errkind.QPSLimit
	case !tpmOK:
		return false, errkind.TPMLimit
	}

	if l.qps != nil {
		l.qps.tokens--
	}
	if chargeTPM {
		l.tpm.tokens -= float64(estimatedTokens)
	}
	return true, errkind.NoLimitReason
}
