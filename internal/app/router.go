package app

import (
	"encoding/json"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/agentreg/internal/gateway"
	"github.com/nulpointcorp/agentreg/internal/providers"
	"github.com/nulpointcorp/agentreg/pkg/apierr"
)

// generateRequestBody is the wire shape of a POST /v1/generate body.
type generateRequestBody struct {
	RequestID       string         `json:"request_id,omitempty"`
	Messages        []wireMessage  `json:"messages"`
	Schema          map[string]any `json:"schema,omitempty"`
	MaxOutputTokens int            `json:"max_output_tokens"`
	PromptVersion   string         `json:"prompt_version,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Start starts the HTTP server on addr (e.g. ":8080"), blocking until
// the listener stops.
func (a *App) Start(addr string) error {
	r := router.New()

	r.POST("/v1/generate", a.handleGenerate)
	r.GET("/health", a.handleHealth)
	r.GET("/v1/prompts", a.handleListPrompts)
	r.GET("/v1/prompts/{version}", a.handleGetPrompt)
	if a.prom != nil {
		r.GET("/metrics", a.prom.Handler())
	}

	handler := applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		corsHandler(a.cfg.CORSOrigins),
		securityHeaders,
	)

	srv := &fasthttp.Server{
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv.ListenAndServe(addr)
}

func (a *App) handleGenerate(ctx *fasthttp.RequestCtx) {
	var body generateRequestBody
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil {
		apierr.Write(ctx, fasthttp.StatusBadRequest, "malformed JSON body: "+err.Error(), apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	messages := make([]providers.Message, len(body.Messages))
	for i, m := range body.Messages {
		messages[i] = providers.Message{Role: m.Role, Content: m.Content}
	}

	req := gateway.GenerateRequest{
		RequestID:       body.RequestID,
		Messages:        messages,
		Schema:          body.Schema,
		MaxOutputTokens: body.MaxOutputTokens,
		PromptVersion:   body.PromptVersion,
	}

	resp, err := a.gw.Generate(ctx, req)
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusBadRequest, err.Error(), apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	writeJSON(ctx, resp)
}

func (a *App) handleHealth(ctx *fasthttp.RequestCtx) {
	status, provider, err := a.gw.HealthCheck(ctx)
	body := map[string]any{"status": status, "provider": provider}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(ctx, body)
}

func (a *App) handleListPrompts(ctx *fasthttp.RequestCtx) {
	if a.prompts == nil {
		writeJSON(ctx, map[string]any{"versions": []string{}, "default": ""})
		return
	}
	writeJSON(ctx, map[string]any{
		"versions": a.prompts.ListVersions(),
		"default":  a.prompts.Default(),
	})
}

func (a *App) handleGetPrompt(ctx *fasthttp.RequestCtx) {
	version, _ := ctx.UserValue("version").(string)
	if a.prompts == nil {
		apierr.Write(ctx, fasthttp.StatusNotFound, "no prompt registry configured", apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}
	desc, ok := a.prompts.Lookup(version)
	if !ok {
		apierr.Write(ctx, fasthttp.StatusNotFound, "unknown prompt version: "+version, apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}
	writeJSON(ctx, desc)
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
