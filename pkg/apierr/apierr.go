// Package apierr provides the structured JSON error envelope the
// Gateway's HTTP surface writes for the one class of error it allows
// at the transport level: a malformed request (empty message list, bad
// JSON body, an out-of-bounds max_output_tokens, an unknown prompt
// version). Every other failure the Gateway recognizes (timeout,
// provider_error, bad_json, rate_limited) is an in-band errkind.Kind
// carried on a 200 GenerateResponse, never an HTTP error status, so
// this package deliberately does not mirror errkind.Kind's full
// vocabulary.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// ErrorType constants. TypeInvalidRequest covers every transport-level
// validation failure; TypeInternal covers the recovery middleware's
// panic fallback. These are the only two error surfaces that ever
// reach an HTTP client as a non-2xx status.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeInternal       = "internal_error"
)

// Code constants.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInternalError  = "internal_error"
)

// APIError is the structured error returned to clients.
type (
	APIError struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	}
	envelope struct {
		Error APIError `json:"error"`
	}
)

// Write writes the error as JSON to the fasthttp response with the given HTTP status.
func Write(ctx *fasthttp.RequestCtx, status int, message, errType, code string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: APIError{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
	ctx.SetBody(body)
}

// WriteInternal writes a 500 for an unrecovered handler panic (the
// recovery middleware's fallback, internal/app/middleware.go).
func WriteInternal(ctx *fasthttp.RequestCtx) {
	Write(ctx, fasthttp.StatusInternalServerError, "internal server error", TypeInternal, CodeInternalError)
}
