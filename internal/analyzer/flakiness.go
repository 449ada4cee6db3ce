package analyzer

import (
	"math"
	"sort"

	"github.com/nulpointcorp/agentreg/internal/auditlog"
)

// CaseStability is one case's stability metrics across its repeated
// runs within a single analysis window. The latency mean is carried
// alongside the standard deviation and coefficient of variation
// because the report's per-case latency section wants it directly
// rather than re-deriving it.
type CaseStability struct {
	CaseID       string
	Severity     string
	Category     string
	TotalRuns    int
	PassedRuns   int
	FailedRuns   int
	PassRate     float64
	IsFlaky      bool
	FailureTypes []string

	LatencyMeanMs *float64
	LatencyStdMs  *float64
	LatencyCV     *float64
}

// ComputeFlakiness groups results by case id and reports stability for
// every case with at least minRuns repetitions, sorted flaky-first,
// then by ascending pass rate, then S1 before S2.
func ComputeFlakiness(results []auditlog.RunRecord, minRuns int) []CaseStability {
	if minRuns < 1 {
		minRuns = 2
	}

	byCase := make(map[string][]auditlog.RunRecord)
	var order []string
	for _, r := range results {
		if _, ok := byCase[r.CaseID]; !ok {
			order = append(order, r.CaseID)
		}
		byCase[r.CaseID] = append(byCase[r.CaseID], r)
	}

	var stats []CaseStability
	for _, caseID := range order {
		runs := byCase[caseID]
		if len(runs) < minRuns {
			continue
		}

		passed := 0
		for _, r := range runs {
			if r.Passed {
				passed++
			}
		}
		failed := len(runs) - passed
		rate := float64(passed) / float64(len(runs)) * 100
		isFlaky := failed > 0 && failed < len(runs)

		ftSet := make(map[string]bool)
		for _, r := range runs {
			if !r.Passed && r.FailureType != "" {
				ftSet[r.FailureType] = true
			}
		}
		failureTypes := make([]string, 0, len(ftSet))
		for ft := range ftSet {
			failureTypes = append(failureTypes, ft)
		}
		sort.Strings(failureTypes)

		var latMean, latStd, latCV *float64
		latencies := positiveLatencies(runs)
		if len(latencies) >= 2 {
			m := meanOf(latencies)
			s := stdevOf(latencies, m)
			latMean = &m
			latStd = &s
			if m > 0 {
				cv := s / m
				latCV = &cv
			}
		}

		stats = append(stats, CaseStability{
			CaseID:        caseID,
			Severity:      defaultSeverity(runs[0].Severity),
			Category:      defaultCategory(runs[0].Category),
			TotalRuns:     len(runs),
			PassedRuns:    passed,
			FailedRuns:    failed,
			PassRate:      rate,
			IsFlaky:       isFlaky,
			FailureTypes:  failureTypes,
			LatencyMeanMs: latMean,
			LatencyStdMs:  latStd,
			LatencyCV:     latCV,
		})
	}

	sort.SliceStable(stats, func(i, j int) bool {
		fi, fj := flakyRank(stats[i].IsFlaky), flakyRank(stats[j].IsFlaky)
		if fi != fj {
			return fi < fj
		}
		if stats[i].PassRate != stats[j].PassRate {
			return stats[i].PassRate < stats[j].PassRate
		}
		return rankSeverity(stats[i].Severity) < rankSeverity(stats[j].Severity)
	})
	return stats
}

// FlakyCases is ComputeFlakiness filtered to the flaky subset.
func FlakyCases(results []auditlog.RunRecord, minRuns int) []CaseStability {
	var out []CaseStability
	for _, s := range ComputeFlakiness(results, minRuns) {
		if s.IsFlaky {
			out = append(out, s)
		}
	}
	return out
}

func flakyRank(flaky bool) int {
	if flaky {
		return 0
	}
	return 1
}

func rankSeverity(sev string) int {
	if sev == "S1" {
		return 0
	}
	return 1
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdevOf computes the sample standard deviation (n-1 denominator).
func stdevOf(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
