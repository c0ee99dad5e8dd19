package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/logalytics/internal/engine"
)

func newTestServer(t *testing.T, token string) (*APIServer, http.Handler) {
	t.Helper()
	eng := engine.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv, err := NewAPIServer(eng, token, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return srv, srv.Handler()
}

func doRequest(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_AuthRequired(t *testing.T) {
	_, h := newTestServer(t, "s3cret")

	w := doRequest(h, http.MethodGet, "/api/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(h, http.MethodGet, "/api/stats", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(h, http.MethodGet, "/api/stats", "s3cret", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Metrics and health stay open for scrapers and probes.
	w = doRequest(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = doRequest(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_AuthDisabledWithoutToken(t *testing.T) {
	_, h := newTestServer(t, "")
	w := doRequest(h, http.MethodGet, "/api/stats", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_IngestAndSearch(t *testing.T) {
	_, h := newTestServer(t, "s3cret")

	body := `[
		{"timestamp":"2026-03-15T12:00:00Z","level":"ERROR","message":"db down","source":"db"},
		{"timestamp":"2026-03-15T12:00:01Z","level":"INFO","message":"recovered","source":"db"},
		{"broken": true}
	]`
	w := doRequest(h, http.MethodPost, "/api/ingest", "s3cret", body)
	require.Equal(t, http.StatusOK, w.Code)

	var ingestResp map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ingestResp))
	assert.Equal(t, 2, ingestResp["ingested"])
	assert.Equal(t, 1, ingestResp["skipped"])

	w = doRequest(h, http.MethodPost, "/api/search", "s3cret", `{"level":"ERROR"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var searchResp struct {
		Count   int `json:"count"`
		Records []struct {
			Message string `json:"message"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &searchResp))
	require.Equal(t, 1, searchResp.Count)
	assert.Equal(t, "db down", searchResp.Records[0].Message)

	// The metrics endpoint reflects the ingest.
	w = doRequest(h, http.MethodGet, "/metrics", "", "")
	assert.Contains(t, w.Body.String(), "log_engine_total_logs 2")
}

func TestServer_SearchRejectsInvalidArguments(t *testing.T) {
	_, h := newTestServer(t, "")

	w := doRequest(h, http.MethodPost, "/api/search", "",
		`{"start_time":"2026-03-15T12:00:00Z","end_time":"2026-03-15T11:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(h, http.MethodPost, "/api/search", "", `{"start_time":"not a time"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(h, http.MethodPost, "/api/search", "", `{"page":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(h, http.MethodGet, "/api/search", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_UnrecognizedFilterKeysIgnored(t *testing.T) {
	_, h := newTestServer(t, "")

	doRequest(h, http.MethodPost, "/api/ingest", "",
		`{"timestamp":"2026-03-15T12:00:00Z","level":"INFO","message":"hello"}`)

	w := doRequest(h, http.MethodPost, "/api/search", "", `{"bogus_key":"x","level":"INFO"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestServer_Aggregate(t *testing.T) {
	_, h := newTestServer(t, "")

	doRequest(h, http.MethodPost, "/api/ingest", "", `[
		{"timestamp":"2026-03-15T12:00:00Z","level":"ERROR","message":"a"},
		{"timestamp":"2026-03-15T12:00:01Z","level":"ERROR","message":"b"},
		{"timestamp":"2026-03-15T12:00:02Z","level":"INFO","message":"c"}
	]`)

	w := doRequest(h, http.MethodPost, "/api/aggregate", "", `{"group_by":"level"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Total  int            `json:"total"`
		Groups map[string]int `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, map[string]int{"ERROR": 2, "INFO": 1}, resp.Groups)

	w = doRequest(h, http.MethodPost, "/api/aggregate", "", `{"group_by":"hostname"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Alerts(t *testing.T) {
	srv, h := newTestServer(t, "")
	require.NoError(t, srv.engine.AddAlertRule(engine.AlertRule{
		Name:       "any-error",
		Conditions: engine.RuleConditions{Level: "ERROR"},
		Severity:   engine.SeverityMedium,
		Threshold:  1,
		Window:     time.Hour,
		Cooldown:   time.Hour,
		Enabled:    true,
	}))

	doRequest(h, http.MethodPost, "/api/ingest", "",
		`{"level":"ERROR","message":"trigger it"}`)

	w := doRequest(h, http.MethodGet, "/api/alerts", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Total  int            `json:"total"`
		Alerts []engine.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "any-error", resp.Alerts[0].RuleName)
}
