package ratelimit_test

import (
	"testing"

	"github.com/nulpointcorp/agentreg/internal/errkind"
	"github.com/nulpointcorp/agentreg/internal/ratelimit"
)

func TestLimiterAdmitsUnderQPSCapacity(t *testing.T) {
	l := ratelimit.NewLimiter(2, 0)
	for i := 0; i < 2; i++ {
		allowed, reason := l.CheckRateLimit(0)
		if !allowed {
			t.Fatalf("iteration %d: expected allowed, got declined (%s)", i, reason)
		}
	}
}

func TestLimiterDeclinesOverQPSCapacity(t *testing.T) {
	l := ratelimit.NewLimiter(2, 0)
	l.CheckRateLimit(0)
	l.CheckRateLimit(0)
	allowed, reason := l.CheckRateLimit(0)
	if allowed {
		t.Fatalf("expected third request to be declined")
	}
	if reason != errkind.QPSLimit {
		t.Fatalf("reason = %q, want %q", reason, errkind.QPSLimit)
	}
}

func TestLimiterTPMDeclineReportsTPMLimit(t *testing.T) {
	// QPS has ample headroom; TPM is tiny, so the first request burns
	// it and the second is declined for tpm_limit, not qps_limit.
	l := ratelimit.NewLimiter(100, 5)
	allowed, _ := l.CheckRateLimit(5)
	if !allowed {
		t.Fatalf("first request should be admitted")
	}
	allowed, reason := l.CheckRateLimit(5)
	if allowed {
		t.Fatalf("second request should be declined")
	}
	if reason != errkind.TPMLimit {
		t.Fatalf("reason = %q, want %q", reason, errkind.TPMLimit)
	}
}

func TestLimiterTPMDeclineLeavesQPSTokenUnspent(t *testing.T) {
	l := ratelimit.NewLimiter(2, 5)
	if allowed, _ := l.CheckRateLimit(5); !allowed {
		t.Fatalf("first request should be admitted")
	}
	if allowed, reason := l.CheckRateLimit(5); allowed || reason != errkind.TPMLimit {
		t.Fatalf("second request: allowed=%v reason=%q, want declined with tpm_limit", allowed, reason)
	}
	// The declined request must not have consumed the remaining QPS
	// token: a zero-token request can still be admitted.
	if allowed, reason := l.CheckRateLimit(0); !allowed {
		t.Fatalf("third request should be admitted on the unspent QPS token, got %q", reason)
	}
}

func TestLimiterAbsentBucketNeverDeclines(t *testing.T) {
	l := ratelimit.NewLimiter(0, 0)
	for i := 0; i < 1000; i++ {
		allowed, reason := l.CheckRateLimit(1_000_000)
		if !allowed {
			t.Fatalf("iteration %d: unconfigured limiter must never decline, got reason %q", i, reason)
		}
	}
}

func TestTokenBucketNeverExceedsCapacityOrGoesNegative(t *testing.T) {
	b := ratelimit.NewTokenBucket(5, 5)
	for i := 0; i < 10; i++ {
		b.Consume(1)
	}
	avail := b.Available()
	if avail < 0 || avail > 5 {
		t.Fatalf("tokens out of [0, capacity] bounds: %v", avail)
	}
}
