package auditlog_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nulpointcorp/agentreg/internal/auditlog"
)

func TestLogAuditWritesDayPartitionedJSONL(t *testing.T) {
	dir := t.TempDir()
	s, err := auditlog.New(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	s.LogAudit(auditlog.AuditRecord{
		RequestID:     "req-1",
		Timestamp:     ts,
		Provider:      "mock",
		Model:         "mock-1",
		MessageDigest: "abc123",
		MessageLength: 42,
		TotalTokens:   10,
	})

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "20260304.jsonl")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected partition file %s: %v", path, err)
	}
	if !strings.Contains(string(raw), `"request_id":"req-1"`) {
		t.Fatalf("partition file missing expected record: %s", raw)
	}
}

func TestReadRunsSkipsUnparseableLines(t *testing.T) {
	dir := t.TempDir()
	day := "20260304"
	path := filepath.Join(dir, day+".jsonl")
	content := `{"kind":"run","run_id":"r1","case_id":"c1","passed":true}
not valid json at all
{"kind":"audit","request_id":"req-x"}
{"kind":"run","run_id":"r1","case_id":"c2","passed":false}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	ts := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	runs, err := auditlog.ReadRuns(dir, ts, ts, nil)
	if err != nil {
		t.Fatalf("ReadRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 run records (bad line + audit record skipped), got %d: %+v", len(runs), runs)
	}
	if runs[0].CaseID != "c1" || runs[1].CaseID != "c2" {
		t.Fatalf("unexpected case IDs: %+v", runs)
	}
}

func TestReadRunsMissingDayReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runs, err := auditlog.ReadRuns(dir, ts, ts, nil)
	if err != nil {
		t.Fatalf("ReadRuns on empty dir: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}
