package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nulpointcorp/agentreg/internal/auditlog"
	"github.com/nulpointcorp/agentreg/internal/cache"
	"github.com/nulpointcorp/agentreg/internal/errkind"
	"github.com/nulpointcorp/agentreg/internal/gateway"
	"github.com/nulpointcorp/agentreg/internal/llmclient"
	"github.com/nulpointcorp/agentreg/internal/pricing"
	"github.com/nulpointcorp/agentreg/internal/providers"
	"github.com/nulpointcorp/agentreg/internal/providers/mockprovider"
	"github.com/nulpointcorp/agentreg/internal/ratelimit"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type gatewayDeps struct {
	limiter   *ratelimit.Limiter
	respCache *cache.ResponseCache
	audit     *auditlog.Store
}

func newTestGateway(t *testing.T, deps gatewayDeps) *gateway.Gateway {
	t.Helper()
	provider := mockprovider.New("")
	client := llmclient.New(provider, 5*time.Second, 0, quietLogger())
	return gateway.New(client, provider, deps.limiter, nil, deps.respCache, nil, deps.audit, pricing.DefaultTable, quietLogger(), nil)
}

func newTestAudit(t *testing.T) (*auditlog.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := auditlog.New(context.Background(), dir, quietLogger())
	if err != nil {
		t.Fatalf("auditlog.New: %v", err)
	}
	return store, dir
}

// readAuditLines closes the store to drain its buffer, then returns
// every line of today's partition file.
func readAuditLines(t *testing.T, store *auditlog.Store, dir string) []string {
	t.Helper()
	if err := store.Close(); err != nil {
		t.Fatalf("audit close: %v", err)
	}
	path := filepath.Join(dir, time.Now().UTC().Format("20060102")+".jsonl")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	var lines []string
	for _, l := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestGenerateMockNoSchema(t *testing.T) {
	store, dir := newTestAudit(t)
	gw := newTestGateway(t, gatewayDeps{audit: store})

	resp, err := gw.Generate(context.Background(), gateway.GenerateRequest{
		Messages:        []providers.Message{{Role: "user", Content: "Hello"}},
		MaxOutputTokens: 256,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if resp.Text == "" {
		t.Fatalf("expected non-empty text")
	}
	if resp.Tokens.Prompt <= 0 || resp.Tokens.Completion <= 0 {
		t.Fatalf("expected positive token counts, got %+v", resp.Tokens)
	}
	if resp.Tokens.Total != resp.Tokens.Prompt+resp.Tokens.Completion {
		t.Fatalf("total tokens %d != prompt %d + completion %d", resp.Tokens.Total, resp.Tokens.Prompt, resp.Tokens.Completion)
	}
	if resp.ErrorKind != errkind.None {
		t.Fatalf("error_kind = %q, want none", resp.ErrorKind)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected a generated request id")
	}

	lines := readAuditLines(t, store, dir)
	if len(lines) != 1 {
		t.Fatalf("audit file has %d lines, want 1", len(lines))
	}
	var rec auditlog.AuditRecord
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal audit line: %v", err)
	}
	if rec.SchemaPresent {
		t.Fatalf("schema_present = true, want false")
	}
	if rec.RequestID != resp.RequestID {
		t.Fatalf("audit request_id = %q, want %q", rec.RequestID, resp.RequestID)
	}
}

func TestGenerateMockWithSchema(t *testing.T) {
	store, dir := newTestAudit(t)
	gw := newTestGateway(t, gatewayDeps{audit: store})

	resp, err := gw.Generate(context.Background(), gateway.GenerateRequest{
		Messages:        []providers.Message{{Role: "user", Content: "Introduce yourself"}},
		Schema:          map[string]any{"properties": map[string]any{"name": "string", "age": "number"}},
		MaxOutputTokens: 256,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if resp.JSON == nil {
		t.Fatalf("expected a parsed JSON object")
	}
	for _, key := range []string{"name", "age"} {
		if _, ok := resp.JSON[key]; !ok {
			t.Fatalf("response JSON missing key %q: %v", key, resp.JSON)
		}
	}

	lines := readAuditLines(t, store, dir)
	if len(lines) != 1 {
		t.Fatalf("audit file has %d lines, want 1", len(lines))
	}
	var rec auditlog.AuditRecord
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal audit line: %v", err)
	}
	if !rec.SchemaPresent || !rec.JSONGenerated {
		t.Fatalf("schema_present=%v json_generated=%v, want both true", rec.SchemaPresent, rec.JSONGenerated)
	}
}

func TestGenerateCacheHit(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache(ctx, 100)
	t.Cleanup(mem.Close)
	respCache := cache.NewResponseCache(mem, time.Minute, true, nil)
	gw := newTestGateway(t, gatewayDeps{respCache: respCache})

	req := gateway.GenerateRequest{
		Messages:        []providers.Message{{Role: "user", Content: "cache me"}},
		MaxOutputTokens: 128,
	}

	first, err := gw.Generate(ctx, req)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if first.CacheHit {
		t.Fatalf("first response unexpectedly cache_hit")
	}

	second, err := gw.Generate(ctx, req)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !second.CacheHit {
		t.Fatalf("second response cache_hit = false, want true")
	}
	if second.Text != first.Text || second.Tokens != first.Tokens {
		t.Fatalf("cached response differs: %+v vs %+v", second, first)
	}
	if second.LatencyMs > first.LatencyMs {
		t.Fatalf("cached latency %dms exceeds original %dms", second.LatencyMs, first.LatencyMs)
	}
}

func TestGenerateRateLimitDecline(t *testing.T) {
	store, dir := newTestAudit(t)
	limiter := ratelimit.NewLimiter(2, 0)
	gw := newTestGateway(t, gatewayDeps{limiter: limiter, audit: store})

	ctx := context.Background()
	req := gateway.GenerateRequest{
		Messages:        []providers.Message{{Role: "user", Content: "burst"}},
		MaxOutputTokens: 64,
	}

	for i := 0; i < 2; i++ {
		resp, err := gw.Generate(ctx, req)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if resp.RateLimited {
			t.Fatalf("request %d unexpectedly rate limited", i)
		}
	}

	third, err := gw.Generate(ctx, req)
	if err != nil {
		t.Fatalf("third Generate: %v", err)
	}
	if third.ErrorKind != errkind.RateLimited {
		t.Fatalf("error_kind = %q, want rate_limited", third.ErrorKind)
	}
	if !third.RateLimited || third.RateLimitReason != errkind.QPSLimit {
		t.Fatalf("rate_limited=%v reason=%q, want true/qps_limit", third.RateLimited, third.RateLimitReason)
	}
	if third.Tokens.Total != 0 || third.Text != "" {
		t.Fatalf("declined response carries tokens/text: %+v", third)
	}

	lines := readAuditLines(t, store, dir)
	if len(lines) != 3 {
		t.Fatalf("audit file has %d lines, want 3 (decline is still audited)", len(lines))
	}
	var rec auditlog.AuditRecord
	if err := json.Unmarshal([]byte(lines[2]), &rec); err != nil {
		t.Fatalf("unmarshal audit line: %v", err)
	}
	if !rec.RateLimited || rec.RateLimitReason != string(errkind.QPSLimit) {
		t.Fatalf("audit rate_limited=%v reason=%q, want true/qps_limit", rec.RateLimited, rec.RateLimitReason)
	}
}

func TestGenerateValidation(t *testing.T) {
	gw := newTestGateway(t, gatewayDeps{})
	ctx := context.Background()

	cases := []struct {
		name    string
		req     gateway.GenerateRequest
		wantErr bool
	}{
		{
			name:    "empty messages",
			req:     gateway.GenerateRequest{MaxOutputTokens: 10},
			wantErr: true,
		},
		{
			name: "invalid role",
			req: gateway.GenerateRequest{
				Messages:        []providers.Message{{Role: "narrator", Content: "x"}},
				MaxOutputTokens: 10,
			},
			wantErr: true,
		},
		{
			name: "max tokens at low bound",
			req: gateway.GenerateRequest{
				Messages:        []providers.Message{{Role: "user", Content: "x"}},
				MaxOutputTokens: gateway.MinMaxOutputTokens,
			},
		},
		{
			name: "max tokens below low bound",
			req: gateway.GenerateRequest{
				Messages:        []providers.Message{{Role: "user", Content: "x"}},
				MaxOutputTokens: gateway.MinMaxOutputTokens - 1,
			},
			wantErr: true,
		},
		{
			name: "max tokens at high bound",
			req: gateway.GenerateRequest{
				Messages:        []providers.Message{{Role: "user", Content: "x"}},
				MaxOutputTokens: gateway.MaxMaxOutputTokens,
			},
		},
		{
			name: "max tokens past high bound",
			req: gateway.GenerateRequest{
				Messages:        []providers.Message{{Role: "user", Content: "x"}},
				MaxOutputTokens: gateway.MaxMaxOutputTokens + 1,
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gw.Generate(ctx, tc.req)
			if tc.wantErr {
				var verr *gateway.ValidationError
				if err == nil {
					t.Fatalf("expected a validation error")
				}
				if !errors.As(err, &verr) {
					t.Fatalf("error %T is not a *ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAuditNeverStoresRawContent(t *testing.T) {
	store, dir := newTestAudit(t)
	gw := newTestGateway(t, gatewayDeps{audit: store})

	const secret = "the launch code is 0000"
	_, err := gw.Generate(context.Background(), gateway.GenerateRequest{
		Messages:        []providers.Message{{Role: "user", Content: secret}},
		MaxOutputTokens: 64,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	lines := readAuditLines(t, store, dir)
	for _, l := range lines {
		if strings.Contains(l, secret) {
			t.Fatalf("audit line contains raw message content: %s", l)
		}
	}
	var rec auditlog.AuditRecord
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal audit line: %v", err)
	}
	if rec.MessageDigest == "" || rec.MessageLength != len(secret) {
		t.Fatalf("digest=%q length=%d, want non-empty digest and length %d", rec.MessageDigest, rec.MessageLength, len(secret))
	}
}

func TestGenerateErrorResponseHasNoTextAndIsNotCached(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache(ctx, 100)
	t.Cleanup(mem.Close)
	respCache := cache.NewResponseCache(mem, time.Minute, true, nil)

	gw := newTestGateway(t, gatewayDeps{respCache: respCache})

	// A structurally invalid schema makes the mock provider report
	// bad_json; the response must carry no text and must not be cached.
	req := gateway.GenerateRequest{
		Messages:        []providers.Message{{Role: "user", Content: "structured please"}},
		Schema:          map[string]any{"not_properties": true},
		MaxOutputTokens: 64,
	}

	resp, err := gw.Generate(ctx, req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.ErrorKind != errkind.BadJSON {
		t.Fatalf("error_kind = %q, want bad_json", resp.ErrorKind)
	}
	if resp.Text != "" || resp.CacheHit {
		t.Fatalf("error response has text=%q cache_hit=%v, want empty/false", resp.Text, resp.CacheHit)
	}

	second, err := gw.Generate(ctx, req)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if second.CacheHit {
		t.Fatalf("failed response was cached")
	}
}
