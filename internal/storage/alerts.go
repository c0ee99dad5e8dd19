// Package storage implements the on-disk formats: line-delimited JSON alert
// persistence and zstd-compressed archives of purged log records.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/coffersTech/logalytics/internal/engine"
)

// SaveAlerts writes one JSON object per line. A write error surfaces to the
// caller; the in-memory alert list the slice was copied from is unaffected.
func SaveAlerts(w io.Writer, alerts []engine.Alert) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, alert := range alerts {
		if err := enc.Encode(alert); err != nil {
			return fmt.Errorf("encoding alert %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// LoadAlerts parses line-delimited alerts. Malformed lines are logged and
// counted as skipped, never fatal. The parsed alerts carry no validation
// against currently-registered rules.
func LoadAlerts(r io.Reader) (alerts []engine.Alert, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var alert engine.Alert
		if err := json.Unmarshal(line, &alert); err != nil {
			slog.Warn("skipping malformed alert line", "line", lineNo, "error", err)
			skipped++
			continue
		}
		alerts = append(alerts, alert)
	}
	if err := scanner.Err(); err != nil {
		return alerts, skipped, fmt.Errorf("reading alert file: %w", err)
	}
	return alerts, skipped, nil
}

// SaveAlertsFile writes the alerts to path via a temp file and atomic
// rename.
func SaveAlertsFile(path string, alerts []engine.Alert) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if err := SaveAlerts(f, alerts); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// LoadAlertsFile reads alerts from path. A missing file is not an error.
func LoadAlertsFile(path string) ([]engine.Alert, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()
	return LoadAlerts(f)
}
