// Package mockprovider is the offline, deterministic Provider variant.
// It never makes a network call, so every higher-layer test (gateway,
// runner, analyzer) can run without credentials.
package mockprovider

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/nulpointcorp/agentreg/internal/errkind"
	"github.com/nulpointcorp/agentreg/internal/providers"
)

// fakeWords is the pool the mock draws fake response text from.
var fakeWords = []string{
	"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog",
	"hello", "world", "this", "is", "a", "mock", "response", "from",
	"provider", "simulating", "real", "llm", "api", "call", "for",
	"development", "and", "testing", "purposes", "regarding", "status",
}

const simulatedLatency = 50 * time.Millisecond

// Provider is the Mock Provider variant.
type Provider struct {
	Model string
}

// New constructs a Mock Provider with the given reported model name.
func New(model string) *Provider {
	if model == "" {
		model = "gpt-4-mock"
	}
	return &Provider{Model: model}
}

func (p *Provider) Name() string { return "mock" }

// ModelName reports the model tag this Provider was configured with.
func (p *Provider) ModelName() string { return p.Model }

func (p *Provider) HealthCheck(ctx context.Context) error { return nil }

// Generate deterministically derives its output from a SHA-256 hash of
// the concatenated message contents: the same conversation always
// produces the same text, JSON, and token counts.
func (p *Provider) Generate(ctx context.Context, messages []providers.Message, schema map[string]any, maxTokens int) (providers.GenerateResult, error) {
	select {
	case <-ctx.Done():
		return providers.GenerateResult{ErrorKind: errkind.Timeout}, ctx.Err()
	case <-time.After(simulatedLatency):
	}

	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Content)
	}
	digest := sha256.Sum256([]byte(sb.String()))

	promptWords := 0
	for _, m := range messages {
		promptWords += len(strings.Fields(m.Content))
	}
	promptTokens := estimateTokens(promptWords)

	if schema != nil {
		obj, ok := synthesizeJSON(schema, digest[:])
		if !ok {
			return providers.GenerateResult{ErrorKind: errkind.BadJSON}, nil
		}
		text := jsonPreviewText(obj)
		completionTokens := estimateTokens(len(strings.Fields(text)))
		return providers.GenerateResult{
			Text:             text,
			JSON:             obj,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		}, nil
	}

	wantWords := 8 + int(digest[0]%8)
	text := fakeSentence(digest, wantWords)
	completionTokens := estimateTokens(wantWords)
	return providers.GenerateResult{
		Text:             text,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}, nil
}

// estimateTokens applies a rough ~4-characters-per-token heuristic to a
// word count scaled up to approximate characters.
func estimateTokens(words int) int {
	if words == 0 {
		return 1
	}
	chars := words * 5
	tokens := chars / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func fakeSentence(digest [32]byte, n int) string {
	words := make([]string, n)
	for i := range words {
		idx := int(digest[i%len(digest)]) + i
		words[i] = fakeWords[idx%len(fakeWords)]
	}
	return strings.Join(words, " ") + "."
}

// synthesizeJSON builds a JSON object with a value for every key
// declared in schema.properties. A structurally invalid schema (no
// "properties" object) reports the second return value false, which
// the caller turns into errkind.BadJSON.
func synthesizeJSON(schema map[string]any, seed []byte) (map[string]any, bool) {
	propsRaw, ok := schema["properties"]
	if !ok {
		return nil, false
	}
	props, ok := propsRaw.(map[string]any)
	if !ok {
		return nil, false
	}

	out := make(map[string]any, len(props))
	i := 0
	for key, typ := range props {
		out[key] = synthesizeValue(typ, seed, i)
		i++
	}
	return out, true
}

func synthesizeValue(typ any, seed []byte, index int) any {
	typeName, _ := typ.(string)
	b := seed[index%len(seed)]
	switch typeName {
	case "number":
		return float64(b) / 10
	case "integer":
		return int(b)
	case "boolean":
		return b%2 == 0
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	default: // "string" and anything unrecognized
		return fakeWords[int(b)%len(fakeWords)]
	}
}

func jsonPreviewText(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return fmt.Sprintf("{%d fields synthesized}", len(keys))
}

