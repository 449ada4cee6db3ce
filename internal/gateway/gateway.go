// Package gateway implements the request-processing core: the single
// orchestration point that admits a request through the rate limiter,
// resolves a prompt version, checks the response cache, executes the
// request via the LLM client, prices the completion, and appends an
// audit record. Expected failures (timeouts, schema failures, rate
// limits) are carried in-band on the response; only a structurally
// invalid request produces an error.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nulpointcorp/agentreg/internal/auditlog"
	"github.com/nulpointcorp/agentreg/internal/cache"
	"github.com/nulpointcorp/agentreg/internal/errkind"
	"github.com/nulpointcorp/agentreg/internal/llmclient"
	"github.com/nulpointcorp/agentreg/internal/metrics"
	"github.com/nulpointcorp/agentreg/internal/pricing"
	"github.com/nulpointcorp/agentreg/internal/promptregistry"
	"github.com/nulpointcorp/agentreg/internal/providers"
	"github.com/nulpointcorp/agentreg/internal/ratelimit"
)

// Bounds on GenerateRequest.MaxOutputTokens; values at either bound are
// accepted, one past either bound is rejected.
const (
	MinMaxOutputTokens = 1
	MaxMaxOutputTokens = 32768
)

// TokenUsage mirrors GenerateResponse's token-count triple.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// GenerateRequest is the Gateway's inbound request shape, immutable
// once accepted.
type GenerateRequest struct {
	RequestID       string              `json:"request_id,omitempty"`
	Messages        []providers.Message `json:"messages"`
	Schema          map[string]any      `json:"schema,omitempty"`
	MaxOutputTokens int                 `json:"max_output_tokens"`
	PromptVersion   string              `json:"prompt_version,omitempty"`
}

// GenerateResponse is the Gateway's outbound response shape.
type GenerateResponse struct {
	RequestID string         `json:"request_id"`
	Text      string         `json:"text"`
	JSON      map[string]any `json:"json,omitempty"`

	Provider string `json:"provider"`
	Model    string `json:"model"`

	LatencyMs int64      `json:"latency_ms"`
	Tokens    TokenUsage `json:"tokens"`
	CostUSD   float64    `json:"cost"`

	PromptVersionRequested string `json:"prompt_version_requested,omitempty"`
	PromptVersionUsed      string `json:"prompt_version_used"`

	ErrorKind errkind.Kind `json:"error_kind,omitempty"`

	CacheHit        bool                    `json:"cache_hit"`
	RateLimited     bool                    `json:"rate_limited"`
	RateLimitReason errkind.RateLimitReason `json:"rate_limit_reason,omitempty"`
}

// ValidationError is returned only for structurally invalid requests.
// Expected error conditions (timeouts, schema failures, rate limits)
// never produce a Go error; they ride in-band on the response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "gateway: " + e.Message }

// Gateway is the request-processing core.
type Gateway struct {
	client    *llmclient.Client
	provider  providers.Provider
	limiter   *ratelimit.Limiter
	rpm       *ratelimit.RPMLimiter
	respCache *cache.ResponseCache
	prompts   *promptregistry.Registry
	audit     *auditlog.Store
	pricing   pricing.Table
	log       *slog.Logger
	metrics   *metrics.Registry
}

// New builds a Gateway from its constituent components. Any of limiter,
// rpm, respCache, prompts, audit, and metrics may be nil; the Gateway
// degrades gracefully (no rate limiting, no caching, the requested
// prompt version passed through unresolved, no audit trail, no
// metrics) when they are omitted.
func New(
	client *llmclient.Client,
	provider providers.Provider,
	limiter *ratelimit.Limiter,
	rpm *ratelimit.RPMLimiter,
	respCache *cache.ResponseCache,
	prompts *promptregistry.Registry,
	audit *auditlog.Store,
	prices pricing.Table,
	log *slog.Logger,
	metricsReg *metrics.Registry,
) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		client:    client,
		provider:  provider,
		limiter:   limiter,
		rpm:       rpm,
		respCache: respCache,
		prompts:   prompts,
		audit:     audit,
		pricing:   prices,
		log:       log,
		metrics:   metricsReg,
	}
}

// Generate runs the full pipeline: admission, prompt resolution, cache
// lookup, execution, costing, cache insertion, audit, response.
func (g *Gateway) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	start := time.Now()

	if err := validate(req); err != nil {
		return GenerateResponse{}, err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	providerName := g.provider.Name()
	model := modelOf(g.provider)

	resp := GenerateResponse{
		RequestID:              requestID,
		Provider:               providerName,
		Model:                  model,
		PromptVersionRequested: req.PromptVersion,
	}

	// 1. Admission: the distributed RPM guard first (when layered in),
	// then the in-process QPS/TPM buckets.
	if g.rpm != nil {
		if allowed, err := g.rpm.Allow(ctx, providerName); err == nil && !allowed {
			return g.declineRateLimit(ctx, req, requestID, providerName, model, start, errkind.QPSLimit), nil
		}
	}
	if g.limiter != nil {
		estTokens := estimateTokens(req.Messages) + req.MaxOutputTokens
		if admitted, reason := g.limiter.CheckRateLimit(estTokens); !admitted {
			return g.declineRateLimit(ctx, req, requestID, providerName, model, start, reason), nil
		}
	}

	// 3. Prompt resolution (before cache so the cache key reflects the
	// effective version).
	effectiveVersion, fellBack := g.resolvePromptVersion(req.PromptVersion)
	resp.PromptVersionUsed = effectiveVersion
	if fellBack && req.PromptVersion != "" {
		g.log.Warn("prompt_version_fallback",
			slog.String("request_id", requestID),
			slog.String("requested", req.PromptVersion),
			slog.String("effective", effectiveVersion),
		)
	}

	// 2. Cache lookup.
	var cacheKey string
	if g.respCache != nil {
		cacheKey = cache.BuildKey(req.Messages, req.Schema, req.MaxOutputTokens, providerName, model, effectiveVersion)
		if cached, ok := g.respCache.Get(ctx, cacheKey); ok {
			resp.Text = cached.Text
			resp.JSON = cached.JSON
			resp.Tokens = TokenUsage{Prompt: cached.PromptTokens, Completion: cached.CompletionTokens, Total: cached.TotalTokens}
			resp.CostUSD = cached.CostUSD
			resp.CacheHit = true
			resp.LatencyMs = time.Since(start).Milliseconds()

			g.appendAudit(req, resp, requestID, providerName, model, start)
			g.recordMetrics(resp, start)
			return resp, nil
		}
	}

	// 4. Execute via the LLM Client.
	result := g.client.Generate(ctx, req.Messages, req.Schema, req.MaxOutputTokens)
	resp.Text = result.Text
	resp.JSON = result.JSON
	resp.Tokens = TokenUsage{Prompt: result.PromptTokens, Completion: result.CompletionTokens, Total: result.TotalTokens}
	resp.ErrorKind = result.ErrorKind

	// 5. Cost via the Pricing Table.
	resp.CostUSD = g.pricing.Cost(model, providerName, result.PromptTokens, result.CompletionTokens)

	// 6. Cache insertion iff the attempt was error-free.
	if g.respCache != nil {
		g.respCache.Set(ctx, cacheKey, model, cache.CachedValue{
			Text:             resp.Text,
			JSON:             resp.JSON,
			PromptTokens:     resp.Tokens.Prompt,
			CompletionTokens: resp.Tokens.Completion,
			TotalTokens:      resp.Tokens.Total,
			CostUSD:          resp.CostUSD,
		}, resp.ErrorKind != errkind.None)
	}

	resp.LatencyMs = time.Since(start).Milliseconds()

	// 7. Audit log line.
	g.appendAudit(req, resp, requestID, providerName, model, start)
	g.recordMetrics(resp, start)

	// 8. Status OK even on non-null error_kind: error carried in-band.
	return resp, nil
}

// HealthCheck is the separate read-only health operation:
// {status: ok, provider: <name>}, no side effects beyond the
// Provider's own health probe.
func (g *Gateway) HealthCheck(ctx context.Context) (status string, provider string, err error) {
	if perr := g.provider.HealthCheck(ctx); perr != nil {
		return "degraded", g.provider.Name(), perr
	}
	return "ok", g.provider.Name(), nil
}

func (g *Gateway) resolvePromptVersion(requested string) (effective string, fellBack bool) {
	if g.prompts == nil {
		return requested, false
	}
	return g.prompts.Resolve(requested)
}

func (g *Gateway) declineRateLimit(
	ctx context.Context,
	req GenerateRequest,
	requestID, providerName, model string,
	start time.Time,
	reason errkind.RateLimitReason,
) GenerateResponse {
	resp := GenerateResponse{
		RequestID:              requestID,
		Provider:               providerName,
		Model:                  model,
		PromptVersionRequested: req.PromptVersion,
		PromptVersionUsed:      req.PromptVersion,
		ErrorKind:              errkind.RateLimited,
		RateLimited:            true,
		RateLimitReason:        reason,
		LatencyMs:              time.Since(start).Milliseconds(),
	}
	g.appendAudit(req, resp, requestID, providerName, model, start)
	g.recordMetrics(resp, start)
	return resp
}

func (g *Gateway) appendAudit(req GenerateRequest, resp GenerateResponse, requestID, providerName, model string, start time.Time) {
	if g.audit == nil {
		return
	}
	digest, length := fingerprint(req.Messages)
	g.audit.LogAudit(auditlog.AuditRecord{
		RequestID:              requestID,
		Timestamp:              time.Now().UTC(),
		Provider:               providerName,
		Model:                  model,
		PromptVersionRequested: req.PromptVersion,
		PromptVersionUsed:      resp.PromptVersionUsed,
		MessageDigest:          digest,
		MessageLength:          length,
		SchemaPresent:          req.Schema != nil,
		JSONGenerated:          resp.JSON != nil,
		PromptTokens:           resp.Tokens.Prompt,
		CompletionTokens:       resp.Tokens.Completion,
		TotalTokens:            resp.Tokens.Total,
		CostUSD:                resp.CostUSD,
		LatencyMs:              resp.LatencyMs,
		CacheHit:               resp.CacheHit,
		RateLimited:            resp.RateLimited,
		RateLimitReason:        string(resp.RateLimitReason),
		ErrorKind:              string(resp.ErrorKind),
	})
}

func (g *Gateway) recordMetrics(resp GenerateResponse, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordGenerate(resp.Provider, string(resp.ErrorKind), resp.CacheHit, time.Since(start))
	g.metrics.AddTokens(resp.Provider, resp.Tokens.Prompt, resp.Tokens.Completion, resp.CacheHit)
	g.metrics.AddCost(resp.Provider, resp.Model, resp.CostUSD)
	if resp.ErrorKind != errkind.None {
		g.metrics.RecordError(resp.Provider, string(resp.ErrorKind))
	}
	if resp.RateLimited {
		g.metrics.RecordRateLimit("declined", string(resp.RateLimitReason))
	} else if resp.ErrorKind == errkind.None {
		g.metrics.RecordRateLimit("allowed", "")
	}
}

func validate(req GenerateRequest) error {
	if len(req.Messages) == 0 {
		return &ValidationError{Message: "messages must not be empty"}
	}
	for i, m := range req.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return &ValidationError{Message: fmt.Sprintf("messages[%d]: invalid role %q", i, m.Role)}
		}
	}
	if req.MaxOutputTokens < MinMaxOutputTokens || req.MaxOutputTokens > MaxMaxOutputTokens {
		return &ValidationError{Message: fmt.Sprintf(
			"max_output_tokens must be between %d and %d, got %d",
			MinMaxOutputTokens, MaxMaxOutputTokens, req.MaxOutputTokens,
		)}
	}
	return nil
}

// estimateTokens is a cheap heuristic (≈4 characters/token) used only to
// size the TPM admission check before the real count is known.
func estimateTokens(messages []providers.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	est := chars / 4
	if est == 0 && chars > 0 {
		est = 1
	}
	return est
}

// fingerprint hashes message content so AuditRecords never retain raw
// prompt/completion text.
func fingerprint(messages []providers.Message) (digest string, length int) {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
		length += len(m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], length
}

func modelOf(p providers.Provider) string {
	type modelNamer interface{ ModelName() string }
	if mn, ok := p.(modelNamer); ok {
		return mn.ModelName()
	}
	return p.Name()
}
