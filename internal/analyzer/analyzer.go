// Package analyzer implements period-over-period regression analysis
// over two flat auditlog.RunRecord slices (current vs baseline):
// pass-rate deltas, top regressions, status classification, suggested
// actions, schema diffs, and flakiness detection.
package analyzer

import (
	"fmt"
	"sort"

	"github.com/nulpointcorp/agentreg/internal/aggregator"
	"github.com/nulpointcorp/agentreg/internal/auditlog"
	"github.com/nulpointcorp/agentreg/internal/severity"
)

// PassRateDelta returns (baseline_rate, current_rate, delta) as
// percentages across the full current/baseline slices.
func PassRateDelta(current, baseline []auditlog.RunRecord) (baselineRate, currentRate, delta float64) {
	return passRateDelta(current, baseline)
}

// PassRateDeltaForSeverity is PassRateDelta restricted to records
// canonicalizing to sev.
func PassRateDeltaForSeverity(current, baseline []auditlog.RunRecord, sev severity.Kind) (baselineRate, currentRate, delta float64) {
	return passRateDelta(filterSeverity(current, sev), filterSeverity(baseline, sev))
}

func passRateDelta(current, baseline []auditlog.RunRecord) (float64, float64, float64) {
	if len(current) == 0 {
		return 0, 0, 0
	}
	baselineRate := passRatePercent(baseline)
	currentRate := passRatePercent(current)
	return baselineRate, currentRate, currentRate - baselineRate
}

func passRatePercent(results []auditlog.RunRecord) float64 {
	if len(results) == 0 {
		return 0
	}
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(results)) * 100
}

func filterSeverity(results []auditlog.RunRecord, sev severity.Kind) []auditlog.RunRecord {
	out := make([]auditlog.RunRecord, 0, len(results))
	for _, r := range results {
		if severity.FromFields(r.Severity) == sev {
			out = append(out, r)
		}
	}
	return out
}

// FailureTypeDelta returns failure_type -> (current_count -
// baseline_count) for every failure type seen in either period.
func FailureTypeDelta(current, baseline []auditlog.RunRecord) map[string]int {
	cur := countFailureTypes(current)
	base := countFailureTypes(baseline)

	out := make(map[string]int, len(cur)+len(base))
	for ft, c := range cur {
		out[ft] += c
	}
	for ft, c := range base {
		out[ft] -= c
	}
	return out
}

func countFailureTypes(results []auditlog.RunRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range results {
		if !r.Passed && r.FailureType != "" {
			counts[r.FailureType]++
		}
	}
	return counts
}

// Regression is one case whose pass rate did not improve period over
// period (delta <= 0), including the baseline-missing=100%-pass
// convention: a case with no baseline runs is treated as if it were
// fully passing, so its appearance this period is itself a regression.
type Regression struct {
	CaseID       string
	Severity     string
	Category     string
	BaselineRate float64
	CurrentRate  float64
	Delta        float64
	FailureTypes []string
}

// TopRegressions returns up to topN Regressions sorted by delta
// ascending (worst first), with S1 cases breaking ties ahead of S2.
func TopRegressions(current, baseline []auditlog.RunRecord, topN int) []Regression {
	currentRates := aggregator.CasePassRates(current)
	baselineRates := aggregator.CasePassRates(baseline)

	type caseInfo struct{ severity, category string }
	info := make(map[string]caseInfo)
	var order []string
	for _, r := range current {
		if _, ok := info[r.CaseID]; !ok {
			order = append(order, r.CaseID)
			info[r.CaseID] = caseInfo{defaultSeverity(r.Severity), defaultCategory(r.Category)}
		}
	}
	for _, r := range baseline {
		if _, ok := info[r.CaseID]; !ok {
			order = append(order, r.CaseID)
			info[r.CaseID] = caseInfo{defaultSeverity(r.Severity), defaultCategory(r.Category)}
		}
	}

	var regressions []Regression
	for _, caseID := range order {
		currentRate, ok := currentRates[caseID]
		if !ok {
			continue // no current-period runs: nothing to report this period
		}
		baselineRate, ok := baselineRates[caseID]
		if !ok {
			baselineRate = 1.0
		}
		delta := currentRate - baselineRate
		if delta > 0 {
			continue
		}

		var failureTypes []string
		for _, r := range current {
			if r.CaseID == caseID && !r.Passed && r.FailureType != "" {
				failureTypes = append(failureTypes, r.FailureType)
			}
		}

		regressions = append(regressions, Regression{
			CaseID:       caseID,
			Severity:     info[caseID].severity,
			Category:     info[caseID].category,
			BaselineRate: baselineRate * 100,
			CurrentRate:  currentRate * 100,
			Delta:        delta * 100,
			FailureTypes: failureTypes,
		})
	}

	sort.SliceStable(regressions, func(i, j int) bool {
		if regressions[i].Delta != regressions[j].Delta {
			return regressions[i].Delta < regressions[j].Delta
		}
		return rankSeverity(regressions[i].Severity) < rankSeverity(regressions[j].Severity)
	})

	if topN > 0 && len(regressions) > topN {
		regressions = regressions[:topN]
	}
	return regressions
}

func defaultSeverity(s string) string {
	if s == "" {
		return "S2"
	}
	return s
}

func defaultCategory(c string) string {
	if c == "" {
		return "unknown"
	}
	return c
}

// WorstRegression is the single largest pass-rate drop between two
// periods for a case present in both.
type WorstRegression struct {
	Description string
	Delta       *float64
}

// FindWorstRegression reports the case with the largest pass-rate
// decrease between prev and current. Delta is nil when there is no
// prior period, or no case appears in both periods.
func FindWorstRegression(current, prev []auditlog.RunRecord) WorstRegression {
	if len(prev) == 0 {
		return WorstRegression{Description: "N/A (no prior period data)"}
	}

	curr := caseRates(current)
	prior := caseRates(prev)

	var bestCaseID string
	var bestDelta float64
	found := false
	for caseID, c := range curr {
		p, ok := prior[caseID]
		if !ok {
			continue
		}
		d := c - p
		if !found || d < bestDelta {
			bestDelta, bestCaseID, found = d, caseID, true
		}
	}
	if !found {
		return WorstRegression{Description: "N/A (no comparable cases)"}
	}

	delta := bestDelta
	return WorstRegression{
		Description: fmt.Sprintf("%s (%+.2f%% vs prior period)", bestCaseID, delta),
		Delta:       &delta,
	}
}

func caseRates(results []auditlog.RunRecord) map[string]float64 {
	stats := make(map[string][]bool)
	for _, r := range results {
		stats[r.CaseID] = append(stats[r.CaseID], r.Passed)
	}
	out := make(map[string]float64, len(stats))
	for caseID, outcomes := range stats {
		if len(outcomes) == 0 {
			continue
		}
		passed := 0
		for _, p := range outcomes {
			if p {
				passed++
			}
		}
		out[caseID] = float64(passed) / float64(len(outcomes)) * 100
	}
	return out
}

// Status is the weekly-report health classification.
type Status string

const (
	StatusStable   Status = "stable"
	StatusCaution  Status = "caution"
	StatusCritical Status = "critical"
)

// OverallStatus classifies the period: stable requires >=98% overall
// and per-severity (when populated) and no worse than a 1-point worst
// regression; critical fires below 95% overall, below 95% S1, or a
// worst regression of 5 points or more; everything else is caution.
func OverallStatus(overallPassRate, s1PassRate float64, s1Total int, s2PassRate float64, s2Total int, worstDelta *float64) Status {
	s1OK := s1Total == 0 || s1PassRate >= 98
	s2OK := s2Total == 0 || s2PassRate >= 98

	if overallPassRate >= 98 && s1OK && s2OK && (worstDelta == nil || *worstDelta >= -1) {
		return StatusStable
	}
	if overallPassRate < 95 || (s1Total > 0 && s1PassRate < 95) || (worstDelta != nil && *worstDelta <= -5) {
		return StatusCritical
	}
	return StatusCaution
}

// actionPriority orders the suggested actions; the first matching
// failure types win the three available slots.
var actionPriority = []struct{ failureType, action string }{
	{"timeout", "Frequent timeouts: investigate infra/provider latency"},
	{"bad_json", "Invalid JSON: adjust prompt/schema"},
	{"loop", "Loop detected: review tool/routing stop conditions"},
	{"policy_violation", "Policy violation: re-review safety design rules"},
	{"quality_fail", "Quality degradation: improve prompt/evaluation logic"},
	{"provider_error", "Provider failure: review retry/fallback behavior"},
}

// NextActions suggests up to three next actions from the failure-type
// delta and the worst regression, padded with a generic suggestion
// when fewer than three fire.
func NextActions(failureTypeDelta map[string]int, worst WorstRegression) []string {
	var actions []string
	for _, p := range actionPriority {
		if _, present := failureTypeDelta[p.failureType]; present {
			actions = append(actions, p.action)
		}
	}
	if worst.Delta != nil {
		actions = append(actions, fmt.Sprintf("Top regression: investigate root cause of %s", worst.Description))
	}
	for len(actions) < 3 {
		actions = append(actions, "Add more regression cases and re-check thresholds")
	}
	if len(actions) > 3 {
		actions = actions[:3]
	}
	return actions
}
