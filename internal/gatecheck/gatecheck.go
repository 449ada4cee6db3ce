package gatecheck

import (
	"fmt"
	"strings"

	"github.com/nulpointcorp/agentreg/internal/aggregator"
	"github.com/nulpointcorp/agentreg/internal/analyzer"
	"github.com/nulpointcorp/agentreg/internal/auditlog"
	"github.com/nulpointcorp/agentreg/internal/harness/catalogue"
	"github.com/nulpointcorp/agentreg/internal/severity"
)

// ThresholdResult is the outcome of a single named threshold check.
type ThresholdResult struct {
	Name      string
	Threshold float64
	Actual    float64
	Passed    bool
	Detail    string
}

// CheckResult is the aggregate outcome of RunCheck.
type CheckResult struct {
	CurrentRuns  int
	BaselineRuns int

	OverallRate float64
	S1Rate      float64
	S1Passed    int
	S1Total     int
	S2Rate      float64
	S2Passed    int
	S2Total     int

	Thresholds     []ThresholdResult
	TopRegressions []analyzer.Regression
}

// GatePassed reports whether every threshold in the result passed.
func (r CheckResult) GatePassed() bool {
	for _, t := range r.Thresholds {
		if !t.Passed {
			return false
		}
	}
	return true
}

// RunCheck evaluates current against baseline under the resolved
// Thresholds. cat is optional; when non-nil, every case carrying a
// MinPassRate gets its own threshold evaluation, skipped when the case
// has no current-period runs.
func RunCheck(current, baseline []auditlog.RunRecord, thresholds Thresholds, cat []catalogue.TestCase) CheckResult {
	total := len(current)
	passed := 0
	for _, r := range current {
		if r.Passed {
			passed++
		}
	}
	overallRate := 0.0
	if total > 0 {
		overallRate = float64(passed) / float64(total) * 100
	}

	s1Rate, s1Passed, s1Total := aggregator.SeverityPassRate(current, severity.S1)
	s2Rate, s2Passed, s2Total := aggregator.SeverityPassRate(current, severity.S2)

	var topRegs []analyzer.Regression
	if len(baseline) > 0 {
		topRegs = analyzer.TopRegressions(current, baseline, thresholds.TopN)
	}

	var results []ThresholdResult

	if s1Total > 0 {
		results = append(results, ThresholdResult{
			Name:      "S1 pass rate",
			Threshold: thresholds.S1PassRate,
			Actual:    s1Rate,
			Passed:    s1Rate >= thresholds.S1PassRate,
			Detail:    fmt.Sprintf("%d/%d passed", s1Passed, s1Total),
		})
	} else {
		results = append(results, ThresholdResult{
			Name:      "S1 pass rate",
			Threshold: thresholds.S1PassRate,
			Actual:    0,
			Passed:    true,
			Detail:    "no S1 cases (skip)",
		})
	}

	results = append(results, ThresholdResult{
		Name:      "Overall pass rate",
		Threshold: thresholds.OverallPassRate,
		Actual:    overallRate,
		Passed:    overallRate >= thresholds.OverallPassRate,
		Detail:    fmt.Sprintf("%d/%d passed", passed, total),
	})

	results = append(results, perCaseThresholds(current, cat)...)

	return CheckResult{
		CurrentRuns:    countDistinctRunIDs(current),
		BaselineRuns:   countDistinctRunIDs(baseline),
		OverallRate:    overallRate,
		S1Rate:         s1Rate,
		S1Passed:       s1Passed,
		S1Total:        s1Total,
		S2Rate:         s2Rate,
		S2Passed:       s2Passed,
		S2Total:        s2Total,
		Thresholds:     results,
		TopRegressions: topRegs,
	}
}

// perCaseThresholds evaluates each catalogue case's MinPassRate
// against its actual pass rate this period. A case absent from the
// current run is skipped entirely rather than scored as a failure.
func perCaseThresholds(current []auditlog.RunRecord, cat []catalogue.TestCase) []ThresholdResult {
	if len(cat) == 0 {
		return nil
	}
	rates := aggregator.CasePassRates(current)

	var results []ThresholdResult
	for _, c := range cat {
		if c.MinPassRate == nil {
			continue
		}
		rate, ok := rates[c.CaseID]
		if !ok {
			continue
		}
		actual := rate * 100
		results = append(results, ThresholdResult{
			Name:      fmt.Sprintf("%s min pass rate", c.CaseID),
			Threshold: *c.MinPassRate,
			Actual:    actual,
			Passed:    actual >= *c.MinPassRate,
			Detail:    fmt.Sprintf("%.2f%% actual", actual),
		})
	}
	return results
}

func countDistinctRunIDs(results []auditlog.RunRecord) int {
	ids := make(map[string]bool)
	for _, r := range results {
		ids[r.RunID] = true
	}
	return len(ids)
}

// RenderSummary renders result as the Markdown the gate-check command
// prints to $GITHUB_STEP_SUMMARY or stdout.
func RenderSummary(result CheckResult) string {
	gate := "FAIL"
	if result.GatePassed() {
		gate = "PASS"
	}

	var b strings.Builder
	b.WriteString("## AgentReg Gate Check\n\n")
	fmt.Fprintf(&b, "**Gate:** %s\n\n", gate)
	b.WriteString("| Metric | Threshold | Actual | Result |\n")
	b.WriteString("|--------|-----------|--------|--------|\n")
	for _, t := range result.Thresholds {
		icon := "FAIL"
		if t.Passed {
			icon = "PASS"
		}
		fmt.Fprintf(&b, "| %s | %.1f%% | %.2f%% | %s %s |\n", t.Name, t.Threshold, t.Actual, icon, t.Detail)
	}

	fmt.Fprintf(&b, "\n- Current period runs: **%d**\n", result.CurrentRuns)
	fmt.Fprintf(&b, "- Baseline period runs: **%d**\n", result.BaselineRuns)
	fmt.Fprintf(&b, "- S1: **%d/%d** (%.2f%%)\n", result.S1Passed, result.S1Total, result.S1Rate)
	fmt.Fprintf(&b, "- S2: **%d/%d** (%.2f%%)\n", result.S2Passed, result.S2Total, result.S2Rate)

	if len(result.TopRegressions) > 0 {
		b.WriteString("\n### Top Regressions\n")
		for _, reg := range result.TopRegressions {
			ft := "-"
			if len(reg.FailureTypes) > 0 {
				ft = strings.Join(reg.FailureTypes, ", ")
			}
			fmt.Fprintf(&b, "- **%s** [%s] %.0f%% -> %.0f%% (delta %+.1f%%) - %s\n",
				reg.CaseID, reg.Severity, reg.BaselineRate, reg.CurrentRate, reg.Delta, ft)
		}
	}

	return b.String()
}
