// Package errkind defines the closed error-kind vocabulary shared by the
// Gateway and the Harness. A Kind travels in-band on responses and run
// records; it is never represented as a Go error at that boundary.
package errkind

// Kind is one of a fixed set of failure classifications. The zero value
// Kind("") means "no error".
type Kind string

const (
	None          Kind = ""
	Timeout       Kind = "timeout"
	ProviderError Kind = "provider_error"
	BadJSON       Kind = "bad_json"
	RateLimited   Kind = "rate_limited"
	QualityFail   Kind = "quality_fail"
	ToolError     Kind = "tool_error"
	EmptyOutput   Kind = "empty_output"
)

// Retryable reports whether the LLM Client may retry an attempt that
// failed with this kind. bad_json is never retried; rate_limited is an
// admission decision, not an attempt outcome, and is never retried by
// the core.
func (k Kind) Retryable() bool {
	return k == Timeout || k == ProviderError
}

// RateLimitReason is the sub-reason carried alongside errkind.RateLimited.
type RateLimitReason string

const (
	NoLimitReason RateLimitReason = ""
	QPSLimit      RateLimitReason = "qps_limit"
	TPMLimit      RateLimitReason = "tpm_limit"
)
