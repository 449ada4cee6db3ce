package report

import (
	"strings"
	"testing"

	"github.com/nulpointcorp/agentreg/internal/auditlog"
)

func TestRenderS1S2PassRates(t *testing.T) {
	current := []auditlog.RunRecord{
		{RunID: "r1", CaseID: "TC_S1_001", Severity: "S1", Passed: true},
		{RunID: "r1", CaseID: "TC_S1_002", Severity: "S1", Passed: false, FailureType: "quality_fail"},
		{RunID: "r1", CaseID: "TC_S2_001", Severity: "S2", Passed: true},
	}

	out := Render(current, nil, Options{})

	if !strings.Contains(out, "50.00%") {
		t.Fatalf("expected S1 pass rate 50.00%% in report, got:\n%s", out)
	}
	if !strings.Contains(out, "100.00%") {
		t.Fatalf("expected S2 pass rate 100.00%% in report, got:\n%s", out)
	}
}

func TestRenderS1FailuresRankedBeforeS2(t *testing.T) {
	current := []auditlog.RunRecord{
		{RunID: "r1", CaseID: "TC_S2_001", Severity: "S2", Passed: false, FailureType: "empty_output"},
		{RunID: "r1", CaseID: "TC_S2_001", Severity: "S2", Passed: false, FailureType: "empty_output"},
		{RunID: "r1", CaseID: "TC_S1_001", Severity: "S1", Passed: false, FailureType: "quality_fail"},
	}

	out := Render(current, nil, Options{})
	section := out[strings.Index(out, "## Top Failures"):]

	s1Pos := strings.Index(section, "TC_S1_001")
	s2Pos := strings.Index(section, "TC_S2_001")
	if s1Pos < 0 || s2Pos < 0 {
		t.Fatalf("expected both cases listed in top failures, got:\n%s", section)
	}
	if s1Pos > s2Pos {
		t.Fatalf("expected the S1 failure ranked before the S2 failure")
	}
}

func TestRenderFailureTypeAndSuspectedCause(t *testing.T) {
	current := []auditlog.RunRecord{
		{RunID: "r1", CaseID: "TC_001", Severity: "S1", Passed: false, FailureType: "bad_json"},
	}
	out := Render(current, nil, Options{})
	if !strings.Contains(out, "bad_json") {
		t.Fatalf("expected failure type bad_json in report")
	}
	if !strings.Contains(out, "prompt/schema") {
		t.Fatalf("expected suspected cause prompt/schema in report")
	}
}

func TestRenderOmitsWeekOverWeekWithoutBaseline(t *testing.T) {
	current := []auditlog.RunRecord{{RunID: "r1", CaseID: "A", Passed: true}}
	out := Render(current, nil, Options{})
	if strings.Contains(out, "## Week-over-Week") {
		t.Fatalf("expected no week-over-week section without a baseline")
	}
	if strings.Contains(out, "## Top Regressions") {
		t.Fatalf("expected no top-regressions section without a baseline")
	}
}

func TestRenderIncludesWeekOverWeekWithBaseline(t *testing.T) {
	current := []auditlog.RunRecord{
		{RunID: "r2", CaseID: "A", Passed: true},
		{RunID: "r2", CaseID: "B", Passed: false, FailureType: "timeout"},
	}
	baseline := []auditlog.RunRecord{
		{RunID: "r1", CaseID: "A", Passed: true},
		{RunID: "r1", CaseID: "B", Passed: true},
	}
	out := Render(current, baseline, Options{})
	if !strings.Contains(out, "## Week-over-Week") {
		t.Fatalf("expected a week-over-week section when a baseline is present")
	}
	if !strings.Contains(out, "## Top Regressions") {
		t.Fatalf("expected a top-regressions section when a baseline is present")
	}
}

func TestRenderPerRunBreakdownListsEachRun(t *testing.T) {
	current := []auditlog.RunRecord{
		{RunID: "run-one", CaseID: "A", Passed: true},
		{RunID: "run-two", CaseID: "A", Passed: false, FailureType: "timeout"},
	}
	out := Render(current, nil, Options{})
	if !strings.Contains(out, "### Run run-one") {
		t.Fatalf("expected a heading for run-one, got:\n%s", out)
	}
	if !strings.Contains(out, "### Run run-two") {
		t.Fatalf("expected a heading for run-two, got:\n%s", out)
	}
}

func TestRenderEmptyCurrentStillProducesReport(t *testing.T) {
	out := Render(nil, nil, Options{})
	if !strings.Contains(out, "## Executive Summary") {
		t.Fatalf("expected an executive summary section even with no records")
	}
	if !strings.Contains(out, "No runs.") {
		t.Fatalf("expected the per-run section to report no runs")
	}
}
