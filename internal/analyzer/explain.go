package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nulpointcorp/agentreg/internal/auditlog"
)

// Latency/token-ratio thresholds above which ExplainFailures reports a
// spike.
const (
	defaultLatencyThreshold = 2.0
	defaultTokenThreshold   = 1.5
)

// SchemaDiff is the top-level-key-set and type-kind delta between a
// case's current-period and baseline JSON outputs (S1 only).
type SchemaDiff struct {
	MissingKeys []string
	ExtraKeys   []string
	TypeChanges map[string]string // key -> "old -> new"
}

// FailureExplanation is the structured explanation for one currently
// failing case.
type FailureExplanation struct {
	CaseID              string
	Severity            string
	Category            string
	Signals             []string
	CurrentFailureType  string
	BaselineFailureType string
	SchemaDiff          *SchemaDiff
	LatencyRatio        *float64
	TokenRatio          *float64
}

// Explanation renders Signals as the single-line summary the Report
// Renderer's failure-explanation table shows.
func (e FailureExplanation) Explanation() string {
	if len(e.Signals) == 0 {
		return "cause unknown (needs investigation)"
	}
	return strings.Join(e.Signals, "; ")
}

// ExplainFailures runs ExplainFailuresWithThresholds at the default
// 2x latency / 1.5x token thresholds.
func ExplainFailures(current, baseline []auditlog.RunRecord) []FailureExplanation {
	return ExplainFailuresWithThresholds(current, baseline, defaultLatencyThreshold, defaultTokenThreshold)
}

// ExplainFailuresWithThresholds produces one explanation per currently
// failing case, sorted S1-first then by descending signal count.
func ExplainFailuresWithThresholds(current, baseline []auditlog.RunRecord, latencyThreshold, tokenThreshold float64) []FailureExplanation {
	baselineByCase := make(map[string][]auditlog.RunRecord)
	for _, r := range baseline {
		baselineByCase[r.CaseID] = append(baselineByCase[r.CaseID], r)
	}

	currentFailuresByCase := make(map[string][]auditlog.RunRecord)
	var caseIDs []string
	for _, r := range current {
		if r.Passed {
			continue
		}
		if _, ok := currentFailuresByCase[r.CaseID]; !ok {
			caseIDs = append(caseIDs, r.CaseID)
		}
		currentFailuresByCase[r.CaseID] = append(currentFailuresByCase[r.CaseID], r)
	}
	sort.Strings(caseIDs)

	explanations := make([]FailureExplanation, 0, len(caseIDs))
	for _, caseID := range caseIDs {
		fails := currentFailuresByCase[caseID]
		blRuns := baselineByCase[caseID]

		exp := FailureExplanation{
			CaseID:   caseID,
			Severity: defaultSeverity(fails[0].Severity),
			Category: defaultCategory(fails[0].Category),
		}

		addNewVsPersistentSignal(&exp, blRuns)
		addFailureTypeChangeSignal(&exp, fails, blRuns)
		if exp.Severity == "S1" {
			addSchemaDiffSignal(&exp, fails, blRuns)
		}
		addLatencySpikeSignal(&exp, fails, blRuns, latencyThreshold)
		addTokenIncreaseSignal(&exp, fails, blRuns, tokenThreshold)

		explanations = append(explanations, exp)
	}

	sort.SliceStable(explanations, func(i, j int) bool {
		si, sj := rankSeverity(explanations[i].Severity), rankSeverity(explanations[j].Severity)
		if si != sj {
			return si < sj
		}
		return len(explanations[i].Signals) > len(explanations[j].Signals)
	})
	return explanations
}

func addNewVsPersistentSignal(exp *FailureExplanation, baselineRuns []auditlog.RunRecord) {
	if len(baselineRuns) == 0 {
		exp.Signals = append(exp.Signals, "no baseline data (new case or first run)")
		return
	}
	failed := 0
	for _, r := range baselineRuns {
		if !r.Passed {
			failed++
		}
	}
	if failed == 0 {
		exp.Signals = append(exp.Signals, "new regression: baseline was fully passing")
		return
	}
	rate := float64(failed) / float64(len(baselineRuns)) * 100
	exp.Signals = append(exp.Signals, fmt.Sprintf("persistent failure: baseline failure rate %.0f%%", rate))
}

func addFailureTypeChangeSignal(exp *FailureExplanation, fails, baselineRuns []auditlog.RunRecord) {
	var baselineFails []auditlog.RunRecord
	for _, r := range baselineRuns {
		if !r.Passed {
			baselineFails = append(baselineFails, r)
		}
	}

	curFT := dominantFailureType(fails)
	blFT := dominantFailureType(baselineFails)
	exp.CurrentFailureType = curFT
	exp.BaselineFailureType = blFT

	switch {
	case curFT != "" && blFT != "" && curFT != blFT:
		exp.Signals = append(exp.Signals, fmt.Sprintf("failure type changed: %s -> %s", blFT, curFT))
	case curFT != "":
		exp.Signals = append(exp.Signals, fmt.Sprintf("failure type: %s", curFT))
	}
}

func dominantFailureType(results []auditlog.RunRecord) string {
	counts := make(map[string]int)
	var order []string
	for _, r := range results {
		if r.FailureType == "" {
			continue
		}
		if _, ok := counts[r.FailureType]; !ok {
			order = append(order, r.FailureType)
		}
		counts[r.FailureType]++
	}
	if len(order) == 0 {
		return ""
	}
	best := order[0]
	for _, ft := range order[1:] {
		if counts[ft] > counts[best] {
			best = ft
		}
	}
	return best
}

func addSchemaDiffSignal(exp *FailureExplanation, fails, baselineRuns []auditlog.RunRecord) {
	diff := detectSchemaDiff(fails, baselineRuns)
	if diff == nil {
		return
	}
	exp.SchemaDiff = diff

	var parts []string
	if len(diff.MissingKeys) > 0 {
		parts = append(parts, "missing keys: "+strings.Join(diff.MissingKeys, ", "))
	}
	if len(diff.ExtraKeys) > 0 {
		parts = append(parts, "extra keys: "+strings.Join(diff.ExtraKeys, ", "))
	}
	if len(diff.TypeChanges) > 0 {
		keys := make([]string, 0, len(diff.TypeChanges))
		for k := range diff.TypeChanges {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tc := make([]string, 0, len(keys))
		for _, k := range keys {
			tc = append(tc, fmt.Sprintf("%s: %s", k, diff.TypeChanges[k]))
		}
		parts = append(parts, "type changes: "+strings.Join(tc, ", "))
	}
	if len(parts) > 0 {
		exp.Signals = append(exp.Signals, "JSON schema mismatch: "+strings.Join(parts, "; "))
	}
}

func detectSchemaDiff(currentFails, baselineRuns []auditlog.RunRecord) *SchemaDiff {
	curKeys := collectJSONKeys(currentFails)
	blKeys := collectJSONKeys(baselineRuns)
	if len(curKeys) == 0 && len(blKeys) == 0 {
		return nil
	}

	missing := setDiff(blKeys, curKeys)
	extra := setDiff(curKeys, blKeys)

	curTypes := collectKeyTypes(currentFails)
	blTypes := collectKeyTypes(baselineRuns)
	typeChanges := make(map[string]string)
	for k, ct := range curTypes {
		if bt, ok := blTypes[k]; ok && bt != ct {
			typeChanges[k] = fmt.Sprintf("%s -> %s", bt, ct)
		}
	}

	if len(missing) == 0 && len(extra) == 0 && len(typeChanges) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return &SchemaDiff{MissingKeys: missing, ExtraKeys: extra, TypeChanges: typeChanges}
}

func collectJSONKeys(results []auditlog.RunRecord) map[string]bool {
	keys := make(map[string]bool)
	for _, r := range results {
		for k := range r.ParsedOutputJSON {
			keys[k] = true
		}
	}
	return keys
}

func collectKeyTypes(results []auditlog.RunRecord) map[string]string {
	types := make(map[string]string)
	for _, r := range results {
		for k, v := range r.ParsedOutputJSON {
			types[k] = jsonTypeName(v)
		}
	}
	return types
}

// jsonTypeName names a decoded JSON value's kind. encoding/json
// collapses int and float JSON literals into float64, so an "int" vs
// "float" change is not detectable here, only a
// same-vs-different-kind change.
func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "str"
	case float64:
		return "number"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	case nil:
		return "NoneType"
	default:
		return "unknown"
	}
}

func setDiff(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	return out
}

func addLatencySpikeSignal(exp *FailureExplanation, fails, baselineRuns []auditlog.RunRecord, threshold float64) {
	ratio := latencyRatio(fails, baselineRuns)
	if ratio == nil {
		return
	}
	exp.LatencyRatio = ratio
	if *ratio >= threshold {
		exp.Signals = append(exp.Signals, fmt.Sprintf("latency spike: %.1fx baseline", *ratio))
	}
}

func latencyRatio(currentFails, baselineRuns []auditlog.RunRecord) *float64 {
	return medianRatio(positiveLatencies(currentFails), positiveLatencies(baselineRuns))
}

func positiveLatencies(results []auditlog.RunRecord) []float64 {
	var out []float64
	for _, r := range results {
		if r.LatencyMs > 0 {
			out = append(out, float64(r.LatencyMs))
		}
	}
	return out
}

func addTokenIncreaseSignal(exp *FailureExplanation, fails, baselineRuns []auditlog.RunRecord, threshold float64) {
	ratio := tokenRatio(fails, baselineRuns)
	if ratio == nil {
		return
	}
	exp.TokenRatio = ratio
	if *ratio >= threshold {
		exp.Signals = append(exp.Signals, fmt.Sprintf("token usage increase: %.1fx baseline", *ratio))
	}
}

func tokenRatio(currentFails, baselineRuns []auditlog.RunRecord) *float64 {
	return medianRatio(positiveTokens(currentFails), positiveTokens(baselineRuns))
}

func positiveTokens(results []auditlog.RunRecord) []float64 {
	var out []float64
	for _, r := range results {
		if r.TotalTokens > 0 {
			out = append(out, float64(r.TotalTokens))
		}
	}
	return out
}

func medianRatio(current, baseline []float64) *float64 {
	if len(current) == 0 || len(baseline) == 0 {
		return nil
	}
	baselineMedian := medianOf(baseline)
	if baselineMedian == 0 {
		return nil
	}
	ratio := medianOf(current) / baselineMedian
	return &ratio
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
