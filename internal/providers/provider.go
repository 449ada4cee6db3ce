// Package providers defines the Provider capability: a single
// normalized operation translating a conversation (plus an optional
// JSON schema) into text, optional parsed JSON, token counts, and a
// closed error kind. Two variants ship: mockprovider (deterministic,
// offline) and remote (a generic OpenAI-compatible transport).
package providers

import (
	"context"
	"time"

	"github.com/nulpointcorp/agentreg/internal/errkind"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// GenerateResult is the Provider's raw answer to one generate call:
// {text, json, tokens{prompt,completion,total}, error_kind}.
type GenerateResult struct {
	Text             string
	JSON             map[string]any // non-nil iff schema requested and parse succeeded
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ErrorKind        errkind.Kind
}

// Provider is the capability adapter translating a normalized request
// to an external (or simulated) completion API.
type Provider interface {
	// Name identifies the provider for audit records and metrics.
	Name() string
	// Generate runs one completion attempt. schema is nil when the
	// caller did not request structured output. maxTokens bounds
	// output length. Generate itself never retries or times out —
	// that is the LLM client's job.
	Generate(ctx context.Context, messages []Message, schema map[string]any, maxTokens int) (GenerateResult, error)
	// HealthCheck performs a cheap read-only probe of the provider.
	HealthCheck(ctx context.Context) error
}

// Default timeout/retry constants shared by the LLM client and used as
// config defaults.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
)
