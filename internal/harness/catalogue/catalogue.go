// Package catalogue loads the versioned, immutable-after-load set of
// regression test cases the runner drives through the Gateway: read
// once, validate, return an immutable value.
package catalogue

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nulpointcorp/agentreg/internal/severity"
)

// TestCase is one catalogue entry.
type TestCase struct {
	CaseID      string
	Name        string
	InputPrompt string

	// ExpectedOutput holds the S1 JSON exemplar (a JSON-object string
	// defining the required-key-and-type contract) or the S2
	// reference string. Empty when the source column was blank.
	ExpectedOutput string

	Severity severity.Kind
	Category string

	Owner string
	Tags  []string

	// MinPassRate is the optional per-case minimum pass rate in
	// percent (nil when absent or unparseable).
	MinPassRate *float64
}

// requiredColumns are the mandatory columns; only owner, tags, and
// min_pass_rate are optional. Legacy files lacking the optional
// columns are still accepted, but a file missing expected_output
// entirely fails fast here rather than silently loading every case
// with an empty exemplar/reference.
var requiredColumns = []string{"case_id", "name", "input_prompt", "expected_output", "category", "severity"}

// LoadCSV reads one CSV file of test cases.
func LoadCSV(path string) ([]TestCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: open %s: %w", path, err)
	}
	defer f.Close()
	return parseCSV(f, path)
}

func parseCSV(r io.Reader, path string) ([]TestCase, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalogue: %s: read header: %w", path, err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, req := range requiredColumns {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("catalogue: %s: missing required column %q", path, req)
		}
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var cases []TestCase
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalogue: %s: %w", path, err)
		}

		tc := TestCase{
			CaseID:         get(row, "case_id"),
			Name:           get(row, "name"),
			InputPrompt:    get(row, "input_prompt"),
			ExpectedOutput: get(row, "expected_output"),
			Category:       get(row, "category"),
			Severity:       severity.Normalize(get(row, "severity")),
		}

		if owner := strings.TrimSpace(get(row, "owner")); owner != "" {
			tc.Owner = owner
		}

		if rawTags := get(row, "tags"); rawTags != "" {
			for _, t := range strings.Split(rawTags, ";") {
				t = strings.TrimSpace(t)
				if t != "" {
					tc.Tags = append(tc.Tags, t)
				}
			}
		}

		if raw := strings.TrimSpace(get(row, "min_pass_rate")); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				tc.MinPassRate = &v
			}
			// Unparseable min_pass_rate is silently ignored.
		}

		cases = append(cases, tc)
	}

	return cases, nil
}

// LoadDir reads every file matching pattern (default "*.csv") in dir
// and concatenates their cases, in directory-listing order.
func LoadDir(dir, pattern string) ([]TestCase, error) {
	if pattern == "" {
		pattern = "*.csv"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("catalogue: glob %s/%s: %w", dir, pattern, err)
	}

	var all []TestCase
	for _, m := range matches {
		cases, err := LoadCSV(m)
		if err != nil {
			return nil, err
		}
		all = append(all, cases...)
	}
	return all, nil
}

// ByID indexes a loaded catalogue by case id, for the gate checker's
// per-case threshold lookups.
func ByID(cases []TestCase) map[string]TestCase {
	out := make(map[string]TestCase, len(cases))
	for _, c := range cases {
		out[c.CaseID] = c
	}
	return out
}
