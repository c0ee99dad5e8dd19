package engine

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/logalytics/internal/model"
)

func TestIngestStream_JSONLines(t *testing.T) {
	e, _ := newAlertTestEngine()

	input := strings.Join([]string{
		`{"timestamp":"2026-03-15T12:00:01Z","level":"ERROR","message":"db timeout","source":"db","tags":["prod"],"metadata":{"retries":3,"region":"eu"}}`,
		`{"timestamp":"2026-03-15T12:00:02Z","level":"INFO","msg":"served request"}`,
		`not json at all`,
		`{"timestamp":"2026-03-15T12:00:03Z","level":"WARN"}`, // no message
		``,
		`{"timestamp":"garbage","level":"INFO","message":"bad time"}`,
		`{"level":"unheard-of","message":"defaults applied"}`,
	}, "\n")

	report, err := e.IngestStream(strings.NewReader(input), FormatJSONLines)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Ingested)
	assert.Equal(t, 3, report.Skipped)
	assert.Positive(t, report.Duration)
	assert.Positive(t, report.RatePerSec)
	assert.Equal(t, 3, e.Len())

	records, err := e.Query(Filter{Level: "ERROR"}, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "db timeout", rec.Message)
	assert.Equal(t, "db", rec.Source)
	assert.Equal(t, []string{"prod"}, rec.Tags)
	assert.Equal(t, float64(3), rec.Metadata["retries"])
	assert.Equal(t, "eu", rec.Metadata["region"])
	assert.True(t, rec.Timestamp.Equal(time.Date(2026, 3, 15, 12, 0, 1, 0, time.UTC)))

	// Unknown level falls back to INFO, missing timestamp to the clock.
	records, err = e.Query(Filter{Keyword: "defaults"}, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.LevelInfo, records[0].Level)
	assert.True(t, records[0].Timestamp.Equal(testBase))
}

func TestIngestStream_PlainText(t *testing.T) {
	e, _ := newAlertTestEngine()

	input := "first line\nsecond line\n\nthird line\n"
	report, err := e.IngestStream(strings.NewReader(input), FormatPlainText)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Ingested)
	assert.Zero(t, report.Skipped)

	records, err := e.Query(Filter{}, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, model.LevelInfo, rec.Level)
		assert.True(t, rec.Timestamp.Equal(testBase))
	}
}

func TestIngestStream_NumericTimestamp(t *testing.T) {
	e := newTestEngine()

	line := `{"timestamp":` + strconv.FormatInt(testBase.UnixNano(), 10) + `,"level":"DEBUG","message":"nano ts"}`
	report, err := e.IngestStream(strings.NewReader(line), FormatJSONLines)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)

	records, err := e.Query(Filter{}, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Timestamp.Equal(testBase))
}

func TestIngestBatch(t *testing.T) {
	e := newTestEngine()
	batch := []model.LogRecord{
		testRecord(1*time.Second, model.LevelInfo, "one"),
		testRecord(2*time.Second, model.LevelWarn, "two"),
		testRecord(3*time.Second, model.LevelError, "three"),
	}
	e.IngestBatch(batch)
	assert.Equal(t, 3, e.Len())

	// IDs are monotonically assigned in ingestion order.
	records, err := e.Query(Filter{}, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Less(t, records[0].ID, records[1].ID)
	assert.Less(t, records[1].ID, records[2].ID)
}
