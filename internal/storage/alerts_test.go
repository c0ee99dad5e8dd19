package storage

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/logalytics/internal/engine"
	"github.com/coffersTech/logalytics/internal/model"
)

func sampleAlerts() []engine.Alert {
	rec := model.NewRecord(
		time.Date(2026, 3, 15, 11, 58, 0, 0, time.UTC),
		model.LevelError, "payment gateway timeout")
	rec.ID = 42
	rec.Source = "payments"
	rec.Tags = []string{"prod"}
	rec.Metadata = map[string]any{"region": "eu", "retries": float64(3)}

	return []engine.Alert{
		{
			RuleName:    "error-burst",
			Message:     `Alert "error-burst" triggered: 7 matches in 5m0s`,
			Severity:    engine.SeverityHigh,
			TriggeredAt: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
			Count:       7,
			SampleLogs:  []model.LogRecord{rec},
			Metadata:    map[string]any{"team": "payments"},
		},
		{
			RuleName:    "disk-pressure",
			Message:     `Alert "disk-pressure" triggered: 3 matches in 10m0s`,
			Severity:    engine.SeverityCritical,
			TriggeredAt: time.Date(2026, 3, 15, 12, 5, 0, 0, time.UTC),
			Count:       3,
		},
	}
}

func TestAlerts_RoundTrip(t *testing.T) {
	alerts := sampleAlerts()

	var buf bytes.Buffer
	require.NoError(t, SaveAlerts(&buf, alerts))

	loaded, skipped, err := LoadAlerts(&buf)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Equal(t, alerts, loaded, "round trip must reproduce every field")
}

func TestAlerts_LoadSkipsMalformedLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SaveAlerts(&buf, sampleAlerts()))
	buf.WriteString("this is not json\n")
	buf.WriteString(`{"rule_name":"ok-after-garbage","severity":"low","triggered_at":"2026-03-15T13:00:00Z","count":1,"sample_logs":null,"message":"m"}` + "\n")

	loaded, skipped, err := LoadAlerts(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, loaded, 3)
	assert.Equal(t, "ok-after-garbage", loaded[2].RuleName)
}

func TestAlerts_FileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	alerts := sampleAlerts()

	require.NoError(t, SaveAlertsFile(path, alerts))
	loaded, skipped, err := LoadAlertsFile(path)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, alerts, loaded)
}

func TestAlerts_LoadMissingFile(t *testing.T) {
	loaded, skipped, err := LoadAlertsFile(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Empty(t, loaded)
}
