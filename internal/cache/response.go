package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/nulpointcorp/agentreg/internal/providers"
)

// CachedValue is the response shape actually stored: text, json,
// tokens, cost. Everything else on the wire response (latency,
// cache_hit, etc.) is recomputed per lookup by the Gateway.
type CachedValue struct {
	Text             string         `json:"text"`
	JSON             map[string]any `json:"json,omitempty"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	CostUSD          float64        `json:"cost_usd"`
}

// BuildKey computes the SHA-256 hex digest of a canonical JSON
// serialization of (messages, schema, maxTokens, provider, model,
// promptVersionUsed), with object keys sorted so that reordering a
// message object's fields never changes the key, while reordering the
// message list itself does (it is serialized as an array, order
// preserved).
func BuildKey(messages []providers.Message, schema map[string]any, maxTokens int, provider, model, promptVersionUsed string) string {
	msgList := make([]any, len(messages))
	for i, m := range messages {
		msgList[i] = map[string]any{"role": m.Role, "content": m.Content}
	}
	payload := map[string]any{
		"messages":            msgList,
		"schema":              schema,
		"max_tokens":          maxTokens,
		"provider":            provider,
		"model":               model,
		"prompt_version_used": promptVersionUsed,
	}
	canonical := canonicalize(payload)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// canonicalize serializes v to JSON with every map's keys sorted, at
// every level of nesting — this is what makes the cache key
// order-insensitive over object field order while still being a
// stable hash input.
func canonicalize(v any) []byte {
	return marshalSorted(v)
}

func marshalSorted(v any) []byte {
	normalized := normalize(v)
	b, _ := json.Marshal(normalized)
	return b
}

// normalize recursively converts maps into sortedMap, a type whose
// MarshalJSON emits keys in sorted order, so nested objects at any
// depth canonicalize the same way.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(sortedMap, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

type sortedMap map[string]any

func (m sortedMap) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		buf = append(buf, kb...)
		buf = append(buf, ':')
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// ResponseCache is a TTL- and capacity-bounded key/value store over
// CachedValue, with an admission policy (only error-free responses are
// stored), a disable switch, and an optional per-model exclusion list.
type ResponseCache struct {
	backend    Cache
	ttl        time.Duration
	enabled    bool
	exclusions *ExclusionList
}

// NewResponseCache wraps a Cache backend (MemoryCache or ExactCache).
// When enabled is false, lookups always miss and insertions are no-ops.
func NewResponseCache(backend Cache, ttl time.Duration, enabled bool, exclusions *ExclusionList) *ResponseCache {
	return &ResponseCache{backend: backend, ttl: ttl, enabled: enabled, exclusions: exclusions}
}

// Get looks up a previously cached response by key.
func (r *ResponseCache) Get(ctx context.Context, key string) (CachedValue, bool) {
	if !r.enabled {
		return CachedValue{}, false
	}
	raw, ok := r.backend.Get(ctx, key)
	if !ok {
		return CachedValue{}, false
	}
	var v CachedValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return CachedValue{}, false
	}
	return v, true
}

// Set stores a response iff the cache is enabled, the model is not
// excluded, and hadError is false (admission policy — only
// successful responses are stored).
func (r *ResponseCache) Set(ctx context.Context, key, model string, v CachedValue, hadError bool) {
	if !r.enabled || hadError {
		return
	}
	if r.exclusions.Matches(model) {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = r.backend.Set(ctx, key, raw, r.ttl)
}
