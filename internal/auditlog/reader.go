package auditlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// kindProbe extracts just the "kind" discriminator from a line so the
// reader can decide which concrete type to unmarshal into, tolerating
// unknown fields on either side for forward compatibility.
type kindProbe struct {
	Kind string `json:"kind"`
}

// ReadRuns loads every RunRecord found in dir across [from, to] (inclusive,
// UTC calendar days). Lines that fail to parse are skipped with a
// warning. The store keeps no index, so a day whose partition file does
// not exist is simply an empty day and logs nothing.
func ReadRuns(dir string, from, to time.Time, log *slog.Logger) ([]RunRecord, error) {
	if log == nil {
		log = slog.Default()
	}
	var out []RunRecord
	err := forEachDay(from, to, func(day string) error {
		lines, err := readPartitionLines(dir, day)
		if err != nil {
			return err
		}
		for _, line := range lines {
			var probe kindProbe
			if err := json.Unmarshal(line, &probe); err != nil {
				log.Warn("auditlog_unparseable_line", slog.String("day", day))
				continue
			}
			if probe.Kind != "run" {
				continue
			}
			var rec RunRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				log.Warn("auditlog_unparseable_run_record", slog.String("day", day))
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// ReadAudits loads every AuditRecord found in dir across [from, to].
func ReadAudits(dir string, from, to time.Time, log *slog.Logger) ([]AuditRecord, error) {
	if log == nil {
		log = slog.Default()
	}
	var out []AuditRecord
	err := forEachDay(from, to, func(day string) error {
		lines, err := readPartitionLines(dir, day)
		if err != nil {
			return err
		}
		for _, line := range lines {
			var probe kindProbe
			if err := json.Unmarshal(line, &probe); err != nil {
				log.Warn("auditlog_unparseable_line", slog.String("day", day))
				continue
			}
			if probe.Kind != "audit" {
				continue
			}
			var rec AuditRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				log.Warn("auditlog_unparseable_audit_record", slog.String("day", day))
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func forEachDay(from, to time.Time, fn func(day string) error) error {
	from, to = from.UTC(), to.UTC()
	if to.Before(from) {
		from, to = to, from
	}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if err := fn(partitionFor(d)); err != nil {
			return err
		}
	}
	return nil
}

func readPartitionLines(dir, day string) ([][]byte, error) {
	path := filepath.Join(dir, day+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
