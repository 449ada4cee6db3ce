// Package remote is the remote Provider variant: a generic
// OpenAI-compatible completion transport. Any OpenAI-wire-compatible
// vendor can be plugged in via base URL alone.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nulpointcorp/agentreg/internal/errkind"
	"github.com/nulpointcorp/agentreg/internal/providers"
	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// schemaInstructionPrefix is prepended to the system turn whenever the
// caller supplies a schema, asking the model to answer with matching
// JSON.
const schemaInstructionPrefix = "Respond with a single JSON object matching these keys and types: "

// Provider is a configurable OpenAI-compatible completion transport.
type Provider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  openaiSDK.Client
}

// New creates a Remote Provider. name is the reported provider tag;
// model is the default model name; apiKey/baseURL configure the
// underlying transport.
func New(name, model, apiKey, baseURL string) *Provider {
	p := &Provider{name: name, model: model, apiKey: apiKey, baseURL: baseURL}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: providers.DefaultTimeout}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	p.client = openaiSDK.NewClient(opts...)
	return p
}

func (p *Provider) Name() string { return p.name }

// ModelName reports the model tag this Provider was configured with.
func (p *Provider) ModelName() string { return p.model }

func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("%s: health check: %w", p.name, toProviderError(p.name, err))
	}
	return nil
}

// Generate implements the Provider contract. On schema-present
// requests it asks for JSON-only mode if the transport supports it and
// parses the returned text as JSON, reporting bad_json on parse
// failure. A transport exception becomes timeout when ctx's deadline
// has passed and provider_error otherwise, with empty text and zero
// tokens — Generate never returns a non-nil error for an
// expected failure; the error is carried in the result's ErrorKind.
func (p *Provider) Generate(ctx context.Context, messages []providers.Message, schema map[string]any, maxTokens int) (providers.GenerateResult, error) {
	params := p.buildParams(messages, schema, maxTokens)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return providers.GenerateResult{ErrorKind: errkind.Timeout}, nil
		}
		return providers.GenerateResult{ErrorKind: errkind.ProviderError}, nil
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	promptTokens := int(resp.Usage.PromptTokens)
	completionTokens := int(resp.Usage.CompletionTokens)

	result := providers.GenerateResult{
		Text:             content,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}

	if schema != nil {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(content), &parsed); err != nil {
			// An errored result never carries text.
			result.Text = ""
			result.ErrorKind = errkind.BadJSON
			return result, nil
		}
		result.JSON = parsed
	}
	return result, nil
}

func (p *Provider) buildParams(messages []providers.Message, schema map[string]any, maxTokens int) openaiSDK.ChatCompletionNewParams {
	msgs := make([]openaiSDK.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if schema != nil {
		msgs = append(msgs, openaiSDK.SystemMessage(schemaInstructionPrefix+schemaKeysDescription(schema)))
	}
	for _, m := range messages {
		msgs = append(msgs, toSDKMessage(m.Role, m.Content))
	}

	params := openaiSDK.ChatCompletionNewParams{
		Messages: msgs,
		Model:    p.model,
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openaiSDK.Int(int64(maxTokens))
	}
	if schema != nil {
		params.ResponseFormat = openaiSDK.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openaiSDK.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func schemaKeysDescription(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	parts := make([]string, 0, len(props))
	for k, v := range props {
		parts = append(parts, fmt.Sprintf("%s (%v)", k, v))
	}
	return strings.Join(parts, ", ")
}

func toSDKMessage(role, content string) openaiSDK.ChatCompletionMessageParamUnion {
	switch strings.ToLower(role) {
	case "system":
		return openaiSDK.SystemMessage(content)
	case "assistant":
		return openaiSDK.AssistantMessage(content)
	default:
		return openaiSDK.UserMessage(content)
	}
}

// ProviderError is a structured error returned by the transport,
// kept for callers that want the original HTTP status (metrics,
// logging) even though Generate itself never surfaces it as a Go error.
type ProviderError struct {
	Name       string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s (status=%d)", e.Name, e.Message, e.StatusCode)
}

func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func toProviderError(name string, err error) error {
	var apiErr *openaiSDK.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{Name: name, StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return err
}
