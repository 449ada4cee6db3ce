package analyzer

import (
	"testing"

	"github.com/nulpointcorp/agentreg/internal/auditlog"
	"github.com/nulpointcorp/agentreg/internal/severity"
)

func TestPassRateDelta(t *testing.T) {
	current := []auditlog.RunRecord{{Passed: true}, {Passed: true}, {Passed: false}, {Passed: true}}
	baseline := []auditlog.RunRecord{{Passed: true}, {Passed: true}}

	base, cur, delta := PassRateDelta(current, baseline)
	if base != 100 {
		t.Fatalf("base = %v, want 100", base)
	}
	if cur != 75 {
		t.Fatalf("cur = %v, want 75", cur)
	}
	if delta != -25 {
		t.Fatalf("delta = %v, want -25", delta)
	}
}

func TestPassRateDeltaEmptyCurrent(t *testing.T) {
	base, cur, delta := PassRateDelta(nil, []auditlog.RunRecord{{Passed: true}})
	if base != 0 || cur != 0 || delta != 0 {
		t.Fatalf("expected all-zero result for empty current, got (%v, %v, %v)", base, cur, delta)
	}
}

func TestPassRateDeltaForSeverityFiltersRecords(t *testing.T) {
	current := []auditlog.RunRecord{
		{Severity: "S1", Passed: true},
		{Severity: "S2", Passed: false},
	}
	_, cur, _ := PassRateDeltaForSeverity(current, nil, severity.S1)
	if cur != 100 {
		t.Fatalf("cur = %v, want 100 after filtering to S1 only", cur)
	}
}

func TestFailureTypeDelta(t *testing.T) {
	current := []auditlog.RunRecord{{FailureType: "timeout"}, {FailureType: "timeout"}, {FailureType: "bad_json"}}
	baseline := []auditlog.RunRecord{{FailureType: "timeout"}}

	delta := FailureTypeDelta(current, baseline)
	if delta["timeout"] != 1 {
		t.Fatalf("delta[timeout] = %d, want 1", delta["timeout"])
	}
	if delta["bad_json"] != 1 {
		t.Fatalf("delta[bad_json] = %d, want 1", delta["bad_json"])
	}
}

func TestTopRegressionsBaselineMissingTreatedAsFullyPassing(t *testing.T) {
	current := []auditlog.RunRecord{
		{CaseID: "NEW1", Severity: "S1", Category: "chat", Passed: false, FailureType: "bad_json"},
	}
	regressions := TopRegressions(current, nil, 5)
	if len(regressions) != 1 {
		t.Fatalf("len(regressions) = %d, want 1", len(regressions))
	}
	r := regressions[0]
	if r.BaselineRate != 100 {
		t.Fatalf("BaselineRate = %v, want 100 (missing-baseline convention)", r.BaselineRate)
	}
	if r.Delta != -100 {
		t.Fatalf("Delta = %v, want -100", r.Delta)
	}
}

func TestTopRegressionsS1TieBreak(t *testing.T) {
	current := []auditlog.RunRecord{
		{CaseID: "A", Severity: "S2", Passed: false},
		{CaseID: "B", Severity: "S1", Passed: false},
	}
	baseline := []auditlog.RunRecord{
		{CaseID: "A", Passed: true},
		{CaseID: "B", Passed: true},
	}
	regressions := TopRegressions(current, baseline, 5)
	if len(regressions) != 2 || regressions[0].CaseID != "B" {
		t.Fatalf("expected S1 case B ranked first on a tied delta, got %+v", regressions)
	}
}

func TestFindWorstRegressionNoPriorData(t *testing.T) {
	w := FindWorstRegression([]auditlog.RunRecord{{CaseID: "A", Passed: true}}, nil)
	if w.Delta != nil {
		t.Fatalf("expected nil delta with no prior period data")
	}
}

func TestFindWorstRegressionPicksLargestDrop(t *testing.T) {
	current := []auditlog.RunRecord{
		{CaseID: "A", Passed: true},
		{CaseID: "B", Passed: false},
	}
	prev := []auditlog.RunRecord{
		{CaseID: "A", Passed: true},
		{CaseID: "B", Passed: true},
	}
	w := FindWorstRegression(current, prev)
	if w.Delta == nil || *w.Delta != -100 {
		t.Fatalf("expected case B's -100%% delta, got %+v", w)
	}
}

func TestOverallStatusStable(t *testing.T) {
	d := -0.5
	if got := OverallStatus(99, 99, 10, 99, 10, &d); got != StatusStable {
		t.Fatalf("OverallStatus = %q, want stable", got)
	}
}

func TestOverallStatusCriticalOnLowOverall(t *testing.T) {
	if got := OverallStatus(90, 90, 10, 90, 10, nil); got != StatusCritical {
		t.Fatalf("OverallStatus = %q, want critical", got)
	}
}

func TestOverallStatusCriticalOnWorstRegression(t *testing.T) {
	d := -6.0
	if got := OverallStatus(99, 99, 10, 99, 10, &d); got != StatusCritical {
		t.Fatalf("OverallStatus = %q, want critical on a -6%% worst regression", got)
	}
}

func TestOverallStatusCaution(t *testing.T) {
	if got := OverallStatus(96, 96, 10, 96, 10, nil); got != StatusCaution {
		t.Fatalf("OverallStatus = %q, want caution", got)
	}
}

func TestOverallStatusSkipsSeverityGateWhenNoRecords(t *testing.T) {
	if got := OverallStatus(99, 0, 0, 0, 0, nil); got != StatusStable {
		t.Fatalf("OverallStatus = %q, want stable when S1/S2 totals are zero", got)
	}
}

func TestNextActionsPadsToThree(t *testing.T) {
	actions := NextActions(map[string]int{}, WorstRegression{})
	if len(actions) != 3 {
		t.Fatalf("len(actions) = %d, want 3", len(actions))
	}
}

func TestNextActionsIncludesWorstRegression(t *testing.T) {
	delta := -10.0
	actions := NextActions(map[string]int{"timeout": 1}, WorstRegression{Description: "TC001 (-10.00% vs prior period)", Delta: &delta})
	if len(actions) != 3 {
		t.Fatalf("len(actions) = %d, want 3", len(actions))
	}
	if actions[0] != "Frequent timeouts: investigate infra/provider latency" {
		t.Fatalf("actions[0] = %q", actions[0])
	}
}

func TestComputeFlakinessDetectsFlaky(t *testing.T) {
	results := []auditlog.RunRecord{
		{CaseID: "A", Passed: true, LatencyMs: 100},
		{CaseID: "A", Passed: false, LatencyMs: 200, FailureType: "timeout"},
		{CaseID: "A", Passed: true, LatencyMs: 150},
	}
	stats := ComputeFlakiness(results, 2)
	if len(stats) != 1 || !stats[0].IsFlaky {
		t.Fatalf("expected case A flagged flaky, got %+v", stats)
	}
	if stats[0].LatencyMeanMs == nil {
		t.Fatalf("expected LatencyMeanMs to be populated")
	}
}

func TestComputeFlakinessOmitsCasesBelowMinRuns(t *testing.T) {
	results := []auditlog.RunRecord{{CaseID: "A", Passed: true}}
	if stats := ComputeFlakiness(results, 2); len(stats) != 0 {
		t.Fatalf("expected no stats below min_runs, got %+v", stats)
	}
}

func TestExplainFailuresNewRegressionSignal(t *testing.T) {
	current := []auditlog.RunRecord{{CaseID: "A", Severity: "S2", Passed: false, FailureType: "quality_fail"}}
	baseline := []auditlog.RunRecord{{CaseID: "A", Passed: true}}

	explanations := ExplainFailures(current, baseline)
	if len(explanations) != 1 {
		t.Fatalf("len(explanations) = %d, want 1", len(explanations))
	}
	if explanations[0].Explanation() == "" {
		t.Fatalf("expected a non-empty explanation")
	}
}

func TestExplainFailuresSchemaDiffOnlyForS1(t *testing.T) {
	current := []auditlog.RunRecord{{
		CaseID: "A", Severity: "S1", Passed: false,
		ParsedOutputJSON: map[string]any{"greeting": "hi"},
	}}
	baseline := []auditlog.RunRecord{{
		CaseID: "A", Passed: false,
		ParsedOutputJSON: map[string]any{"greeting": "hi", "language": "en"},
	}}

	explanations := ExplainFailures(current, baseline)
	if len(explanations) != 1 || explanations[0].SchemaDiff == nil {
		t.Fatalf("expected a schema diff for an S1 case with a missing key")
	}
	if len(explanations[0].SchemaDiff.MissingKeys) != 1 || explanations[0].SchemaDiff.MissingKeys[0] != "language" {
		t.Fatalf("unexpected schema diff: %+v", explanations[0].SchemaDiff)
	}
}

func TestExplainFailuresLatencySpike(t *testing.T) {
	current := []auditlog.RunRecord{{CaseID: "A", Passed: false, LatencyMs: 1000}}
	baseline := []auditlog.RunRecord{{CaseID: "A", Passed: false, LatencyMs: 200}}

	explanations := ExplainFailures(current, baseline)
	if explanations[0].LatencyRatio == nil || *explanations[0].LatencyRatio != 5 {
		t.Fatalf("expected latency ratio 5, got %+v", explanations[0].LatencyRatio)
	}
}
