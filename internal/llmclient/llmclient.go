// Package llmclient wraps a single Provider with a per-attempt timeout
// and a bounded retry budget. There is no cross-provider fallback
// here, only retry of the same Provider.
package llmclient

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nulpointcorp/agentreg/internal/errkind"
	"github.com/nulpointcorp/agentreg/internal/providers"
)

// Client wraps a Provider with timeout + retry + error-class mapping.
type Client struct {
	provider   providers.Provider
	timeout    time.Duration
	maxRetries int
	log        *slog.Logger

	// backoff, when true, adds a bounded exponential backoff with
	// jitter between attempts. Per-attempt sleep stays capped well
	// under one timeout, and Generate runs all attempts and sleeps under
	// one deadline so the total budget never exceeds
	// (maxRetries+1)*timeout.
	backoff bool
}

// New constructs an LLM Client. timeout bounds each attempt;
// maxRetries is additional attempts beyond the first (total attempts =
// maxRetries+1).
func New(provider providers.Provider, timeout time.Duration, maxRetries int, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{provider: provider, timeout: timeout, maxRetries: maxRetries, log: log, backoff: true}
}

// Generate runs the wrapped Provider with retry. bad_json is never
// retried; timeout and provider_error are retried up to the budget.
// When every attempt fails, the last classified error is returned with
// empty text.
func (c *Client) Generate(ctx context.Context, messages []providers.Message, schema map[string]any, maxTokens int) providers.GenerateResult {
	var last providers.GenerateResult

	attempts := c.maxRetries + 1
	// One deadline over every attempt and backoff sleep bounds the whole
	// call by (maxRetries+1)*timeout.
	ctx, cancelBudget := context.WithTimeout(ctx, time.Duration(attempts)*c.timeout)
	defer cancelBudget()
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && c.backoff {
			sleepBoundedBackoff(ctx, attempt, c.timeout)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		result, err := c.provider.Generate(attemptCtx, messages, schema, maxTokens)
		cancel()

		switch {
		case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
			result = providers.GenerateResult{ErrorKind: errkind.Timeout}
		case err != nil:
			result = providers.GenerateResult{ErrorKind: errkind.ProviderError}
		}

		last = result

		if result.ErrorKind == errkind.None {
			return result
		}
		if !result.ErrorKind.Retryable() {
			// bad_json, and anything else non-retryable, is returned
			// verbatim without consuming the remaining budget.
			return result
		}

		c.log.WarnContext(ctx, "llm_client_attempt_failed",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", attempts),
			slog.String("error_kind", string(result.ErrorKind)),
		)
	}
	return last
}

// sleepBoundedBackoff sleeps for a jittered duration capped at half a
// timeout, returning early if ctx (which carries Generate's overall
// deadline) is done.
func sleepBoundedBackoff(ctx context.Context, attempt int, timeout time.Duration) {
	base := timeout / 10
	if base <= 0 {
		return
	}
	capMax := timeout / 2
	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > capMax {
		backoff = capMax
	}
	jitter := time.Duration(rand.Int64N(int64(backoff/2) + 1))
	wait := backoff/2 + jitter

	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
