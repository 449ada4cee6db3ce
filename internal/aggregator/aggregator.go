// Package aggregator provides pure functions over a flat slice of
// auditlog.RunRecord that compute the pass-rate, percentile, and
// failure-breakdown statistics the report renderer and the gate
// checker build on.
package aggregator

import (
	"fmt"
	"math"
	"sort"

	"github.com/nulpointcorp/agentreg/internal/auditlog"
	"github.com/nulpointcorp/agentreg/internal/severity"
)

// CasePassRates returns pass rate (0.0–1.0) per case id.
func CasePassRates(results []auditlog.RunRecord) map[string]float64 {
	type stat struct{ passed, total int }
	stats := make(map[string]*stat)
	for _, r := range results {
		s, ok := stats[r.CaseID]
		if !ok {
			s = &stat{}
			stats[r.CaseID] = s
		}
		s.total++
		if r.Passed {
			s.passed++
		}
	}

	out := make(map[string]float64, len(stats))
	for id, s := range stats {
		if s.total == 0 {
			out[id] = 0
			continue
		}
		out[id] = float64(s.passed) / float64(s.total)
	}
	return out
}

// SeverityPassRate reports (rate_percent, passed, total) for the
// records whose severity canonicalizes to sev.
func SeverityPassRate(results []auditlog.RunRecord, sev severity.Kind) (rate float64, passed, total int) {
	for _, r := range results {
		if severity.FromFields(r.Severity) != sev {
			continue
		}
		total++
		if r.Passed {
			passed++
		}
	}
	if total == 0 {
		return 0, 0, 0
	}
	return float64(passed) / float64(total) * 100, passed, total
}

// FormatRate renders a SeverityPassRate result the way the weekly
// report displays it: "N/A" when there were no matching records.
func FormatRate(rate float64, total int) string {
	if total == 0 {
		return "N/A"
	}
	return formatPercent(rate)
}

// Percentile returns the pct-th percentile of values using the
// nearest-rank method: ceil(pct/100 * N), 1-indexed. An empty slice
// yields 0.
func Percentile(values []float64, pct int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	index := int(math.Ceil(float64(pct)/100*float64(len(sorted)))) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// FailureTypeOf reports the failure type string for one record: "none"
// when it passed, else its FailureType, else its first Reason, else
// "empty_output".
func FailureTypeOf(r auditlog.RunRecord) string {
	if r.Passed {
		return "none"
	}
	if r.FailureType != "" {
		return r.FailureType
	}
	if len(r.Reasons) > 0 {
		return r.Reasons[0]
	}
	return "empty_output"
}

// FailureBreakdown counts failures by type across results, returning
// pairs sorted by count descending (ties keep encounter order).
type FailureCount struct {
	FailureType string
	Count       int
}

func FailureBreakdown(results []auditlog.RunRecord) []FailureCount {
	counts := make(map[string]int)
	var order []string
	for _, r := range results {
		if r.Passed {
			continue
		}
		ft := FailureTypeOf(r)
		if _, seen := counts[ft]; !seen {
			order = append(order, ft)
		}
		counts[ft]++
	}

	out := make([]FailureCount, 0, len(order))
	for _, ft := range order {
		out = append(out, FailureCount{FailureType: ft, Count: counts[ft]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// TopFailure is one (case_id, failure_type) bucket with its count and
// a suspected root cause.
type TopFailure struct {
	CaseID         string
	FailureType    string
	Count          int
	SuspectedCause string
}

// TopFailures returns up to limit (case_id, failure_type) buckets
// sorted S1-first then by count descending.
func TopFailures(results []auditlog.RunRecord, limit int) []TopFailure {
	type key struct{ caseID, failureType string }
	counts := make(map[key]int)
	sevOf := make(map[key]severity.Kind)
	var order []key

	for _, r := range results {
		if r.Passed {
			continue
		}
		k := key{r.CaseID, FailureTypeOf(r)}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
			sevOf[k] = severity.FromFields(r.Severity)
		}
		counts[k]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		si, sj := sevRank(sevOf[order[i]]), sevRank(sevOf[order[j]])
		if si != sj {
			return si < sj
		}
		return counts[order[i]] > counts[order[j]]
	})

	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}

	out := make([]TopFailure, 0, len(order))
	for _, k := range order {
		out = append(out, TopFailure{
			CaseID:         k.caseID,
			FailureType:    k.failureType,
			Count:          counts[k],
			SuspectedCause: SuspectedCause(k.failureType),
		})
	}
	return out
}

func sevRank(s severity.Kind) int {
	if s == severity.S1 {
		return 0
	}
	return 1
}

// suspectedCauses maps a closed failure type to a likely root-cause
// category.
var suspectedCauses = map[string]string{
	"timeout":          "infra/provider",
	"bad_json":         "prompt/schema",
	"loop":             "tool/routing",
	"policy_violation": "safety",
	"quality_fail":     "prompt/agent-logic",
	"provider_error":   "infra/provider",
	"rate_limited":     "rate-limit config",
	"empty_output":     "model/prompt",
}

// SuspectedCause returns the mapped cause, or "investigate" for an
// unrecognized failure type.
func SuspectedCause(failureType string) string {
	if cause, ok := suspectedCauses[failureType]; ok {
		return cause
	}
	return "investigate"
}

func formatPercent(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate)
}
