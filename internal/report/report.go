// Package report renders aggregator and analyzer output as a Markdown
// report string. It performs no I/O of its own; callers decide where
// the rendered text goes (stdout, a file, $GITHUB_STEP_SUMMARY).
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nulpointcorp/agentreg/internal/aggregator"
	"github.com/nulpointcorp/agentreg/internal/analyzer"
	"github.com/nulpointcorp/agentreg/internal/auditlog"
	"github.com/nulpointcorp/agentreg/internal/severity"
)

// Options controls optional framing for Render. PeriodLabel, when
// non-empty, is shown as the report's period heading (e.g. a date
// range); it carries no meaning for the computation itself.
type Options struct {
	PeriodLabel string
	TopN        int
	MinFlakyRun int
}

const defaultTopN = 10
const defaultMinFlakyRuns = 2

// Render produces the full Markdown report for current against
// baseline (baseline may be nil or empty). Without a baseline the
// executive summary shows "N/A" for the prior-period deltas, and the
// Week-over-Week, Failure Type Delta and Top Regressions sections are
// omitted.
func Render(current, baseline []auditlog.RunRecord, opts Options) string {
	topN := opts.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	minRuns := opts.MinFlakyRun
	if minRuns <= 0 {
		minRuns = defaultMinFlakyRuns
	}

	var b strings.Builder

	b.WriteString("# Agent Regression Report\n\n")
	if opts.PeriodLabel != "" {
		fmt.Fprintf(&b, "**Period:** %s\n\n", opts.PeriodLabel)
	}

	writeExecutiveSummary(&b, current, baseline)
	writeKeyMetrics(&b, current)
	writeFailureTypeDelta(&b, current, baseline)
	writeTopFailures(&b, current, topN)
	writeTopRegressions(&b, current, baseline, topN)
	writeFlakiness(&b, current, minRuns)
	writeFailureExplanations(&b, current, baseline)
	writePerRunBreakdown(&b, current)

	return b.String()
}

func writeExecutiveSummary(b *strings.Builder, current, baseline []auditlog.RunRecord) {
	overallBase, overallCur, _ := analyzer.PassRateDelta(current, baseline)
	overallRate := overallCur

	s1Rate, _, s1Total := aggregator.SeverityPassRate(current, severity.S1)
	s2Rate, _, s2Total := aggregator.SeverityPassRate(current, severity.S2)

	var s1Delta, s2Delta *float64
	if len(baseline) > 0 {
		if _, _, prevS1Total := aggregator.SeverityPassRate(baseline, severity.S1); prevS1Total > 0 && s1Total > 0 {
			_, _, d := analyzer.PassRateDeltaForSeverity(current, baseline, severity.S1)
			s1Delta = &d
		}
		if _, _, prevS2Total := aggregator.SeverityPassRate(baseline, severity.S2); prevS2Total > 0 && s2Total > 0 {
			_, _, d := analyzer.PassRateDeltaForSeverity(current, baseline, severity.S2)
			s2Delta = &d
		}
	}

	worst := analyzer.FindWorstRegression(current, baseline)
	status := analyzer.OverallStatus(overallRate, s1Rate, s1Total, s2Rate, s2Total, worst.Delta)

	failureDelta := analyzer.FailureTypeDelta(current, baseline)
	actions := analyzer.NextActions(failureDelta, worst)

	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(b, "- Overall status: **%s**\n", strings.ToUpper(string(status)))
	fmt.Fprintf(b, "- S1 pass rate: %s%s\n", aggregator.FormatRate(s1Rate, s1Total), deltaSuffix(s1Delta))
	fmt.Fprintf(b, "- S2 pass rate: %s%s\n", aggregator.FormatRate(s2Rate, s2Total), deltaSuffix(s2Delta))
	fmt.Fprintf(b, "- Worst regression: %s\n", worst.Description)
	b.WriteString("- Next actions:\n")
	for _, a := range actions {
		fmt.Fprintf(b, "  - %s\n", a)
	}
	b.WriteString("\n")

	if len(baseline) > 0 {
		fmt.Fprintf(b, "## Week-over-Week\n\n")
		fmt.Fprintf(b, "- Current period runs: **%d**, baseline period runs: **%d**\n", countDistinctRuns(current), countDistinctRuns(baseline))
		fmt.Fprintf(b, "- Overall pass rate: %.2f%% (baseline %.2f%%)\n\n", overallCur, overallBase)
	}
}

func deltaSuffix(d *float64) string {
	if d == nil {
		return " (vs prior period: N/A)"
	}
	return fmt.Sprintf(" (vs prior period: %+.2f%%)", *d)
}

func writeKeyMetrics(b *strings.Builder, current []auditlog.RunRecord) {
	total := len(current)
	passed := 0
	var totalCost float64
	var latencies []float64
	for _, r := range current {
		if r.Passed {
			passed++
		}
		totalCost += r.CostUSD
		if r.LatencyMs > 0 {
			latencies = append(latencies, float64(r.LatencyMs))
		}
	}
	if len(latencies) == 0 {
		for _, r := range current {
			latencies = append(latencies, float64(r.LatencyMs))
		}
	}
	overallRate := 0.0
	if total > 0 {
		overallRate = float64(passed) / float64(total) * 100
	}
	costPerTask := 0.0
	if total > 0 {
		costPerTask = totalCost / float64(total)
	}

	b.WriteString("## Key Metrics\n\n")
	fmt.Fprintf(b, "- Total cases run: **%d**\n", total)
	fmt.Fprintf(b, "- Passed: **%d**, Failed: **%d**\n", passed, total-passed)
	fmt.Fprintf(b, "- Overall pass rate: %.2f%%\n", overallRate)
	fmt.Fprintf(b, "- Latency p50/p95: %.2fms / %.2fms\n", aggregator.Percentile(latencies, 50), aggregator.Percentile(latencies, 95))
	fmt.Fprintf(b, "- Cost per task: $%.6f\n", costPerTask)

	breakdown := aggregator.FailureBreakdown(current)
	b.WriteString("- Failure breakdown:\n")
	if len(breakdown) == 0 {
		b.WriteString("  - none\n")
	} else {
		sum := 0
		for _, fc := range breakdown {
			sum += fc.Count
		}
		for _, fc := range breakdown {
			ratio := float64(fc.Count) / float64(maxInt(1, sum)) * 100
			fmt.Fprintf(b, "  - %s: %d (%.1f%%)\n", fc.FailureType, fc.Count, ratio)
		}
	}
	b.WriteString("\n")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func writeFailureTypeDelta(b *strings.Builder, current, baseline []auditlog.RunRecord) {
	if len(baseline) == 0 {
		return
	}
	delta := analyzer.FailureTypeDelta(current, baseline)
	if len(delta) == 0 {
		return
	}
	types := make([]string, 0, len(delta))
	for ft := range delta {
		types = append(types, ft)
	}
	sort.Slice(types, func(i, j int) bool {
		if delta[types[i]] != delta[types[j]] {
			return delta[types[i]] > delta[types[j]]
		}
		return types[i] < types[j]
	})

	b.WriteString("## Failure Type Delta\n\n")
	for _, ft := range types {
		fmt.Fprintf(b, "- %s: %+d\n", ft, delta[ft])
	}
	b.WriteString("\n")
}

func writeTopFailures(b *strings.Builder, current []auditlog.RunRecord, topN int) {
	top := aggregator.TopFailures(current, topN)
	b.WriteString("## Top Failures\n\n")
	if len(top) == 0 {
		b.WriteString("No failures.\n\n")
		return
	}
	for _, f := range top {
		fmt.Fprintf(b, "- %s / %s / %d occurrence(s) / suspected cause: %s\n", f.CaseID, f.FailureType, f.Count, f.SuspectedCause)
	}
	b.WriteString("\n")
}

func writeTopRegressions(b *strings.Builder, current, baseline []auditlog.RunRecord, topN int) {
	if len(baseline) == 0 {
		return
	}
	regs := analyzer.TopRegressions(current, baseline, topN)
	b.WriteString("## Top Regressions\n\n")
	if len(regs) == 0 {
		b.WriteString("No regressions.\n\n")
		return
	}
	for _, r := range regs {
		ft := "-"
		if len(r.FailureTypes) > 0 {
			ft = strings.Join(r.FailureTypes, ", ")
		}
		fmt.Fprintf(b, "- **%s** [%s] %.0f%% -> %.0f%% (delta %+.1f%%) - %s\n", r.CaseID, r.Severity, r.BaselineRate, r.CurrentRate, r.Delta, ft)
	}
	b.WriteString("\n")
}

func writeFlakiness(b *strings.Builder, current []auditlog.RunRecord, minRuns int) {
	flaky := analyzer.FlakyCases(current, minRuns)
	if len(flaky) == 0 {
		return
	}
	b.WriteString("## Flaky Cases\n\n")
	for _, c := range flaky {
		lat := "n/a"
		if c.LatencyMeanMs != nil {
			lat = fmt.Sprintf("%.0fms", *c.LatencyMeanMs)
		}
		fmt.Fprintf(b, "- %s [%s]: %d/%d passed (%.1f%%), mean latency %s, failure types: %s\n",
			c.CaseID, c.Severity, c.PassedRuns, c.TotalRuns, c.PassRate, lat, strings.Join(c.FailureTypes, ", "))
	}
	b.WriteString("\n")
}

func writeFailureExplanations(b *strings.Builder, current, baseline []auditlog.RunRecord) {
	explanations := analyzer.ExplainFailures(current, baseline)
	if len(explanations) == 0 {
		return
	}
	b.WriteString("## Failure Explanations\n\n")
	for _, e := range explanations {
		fmt.Fprintf(b, "- **%s** [%s/%s]: %s\n", e.CaseID, e.Severity, e.Category, e.Explanation())
	}
	b.WriteString("\n")
}

func writePerRunBreakdown(b *strings.Builder, current []auditlog.RunRecord) {
	b.WriteString("## Individual Runs\n\n")

	type runAgg struct {
		runID          string
		total, passed  int
		firstTimestamp int64
	}
	byRun := make(map[string]*runAgg)
	var order []string
	for _, r := range current {
		agg, ok := byRun[r.RunID]
		if !ok {
			agg = &runAgg{runID: r.RunID, firstTimestamp: r.Timestamp.UnixNano()}
			byRun[r.RunID] = agg
			order = append(order, r.RunID)
		}
		agg.total++
		if r.Passed {
			agg.passed++
		}
		if ts := r.Timestamp.UnixNano(); ts < agg.firstTimestamp {
			agg.firstTimestamp = ts
		}
	}

	sort.Slice(order, func(i, j int) bool {
		return byRun[order[i]].firstTimestamp < byRun[order[j]].firstTimestamp
	})

	if len(order) == 0 {
		b.WriteString("No runs.\n")
		return
	}

	for _, runID := range order {
		agg := byRun[runID]
		rate := 0.0
		if agg.total > 0 {
			rate = float64(agg.passed) / float64(agg.total) * 100
		}
		label := runID
		if len(label) > 8 {
			label = label[:8]
		}
		fmt.Fprintf(b, "### Run %s\n", label)
		fmt.Fprintf(b, "- Cases: %d\n", agg.total)
		fmt.Fprintf(b, "- Passed: %d\n", agg.passed)
		fmt.Fprintf(b, "- Failed: %d\n", agg.total-agg.passed)
		fmt.Fprintf(b, "- Pass rate: %.2f%%\n\n", rate)
	}
}

func countDistinctRuns(results []auditlog.RunRecord) int {
	ids := make(map[string]bool)
	for _, r := range results {
		ids[r.RunID] = true
	}
	return len(ids)
}
