// Package severity centralizes S1/S2 canonicalization. Every
// severity-bucketing read path (catalogue, runner, aggregator,
// analyzer) calls Normalize instead of comparing raw strings.
package severity

import "strings"

// Kind is a canonicalized severity. Unclassified is the zero value and
// is never counted in the S1/S2 buckets.
type Kind string

const (
	Unclassified Kind = ""
	S1           Kind = "S1"
	S2           Kind = "S2"
)

// Normalize maps a closed set of synonyms to a canonical Kind.
// Anything else, including the empty string, canonicalizes to
// Unclassified.
func Normalize(raw string) Kind {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "S1", "SEV1", "1", "CRITICAL":
		return S1
	case "S2", "SEV2", "2", "HIGH":
		return S2
	default:
		return Unclassified
	}
}

// FromFields canonicalizes severity read from a record that may carry
// it under any of several keys (severity, priority, tier); the first
// classifiable field wins.
func FromFields(fields ...string) Kind {
	for _, f := range fields {
		if k := Normalize(f); k != Unclassified {
			return k
		}
	}
	return Unclassified
}
