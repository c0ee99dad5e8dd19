// Package server exposes the engine over HTTP: ingest, search, aggregate,
// stats, alerts, a Prometheus-style metrics endpoint and a websocket alert
// stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/valyala/fastjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/logalytics/internal/engine"
	"github.com/coffersTech/logalytics/internal/model"
)

// APIServer serves the engine API. When a token is configured, every /api
// route requires `Authorization: Bearer <token>`; /metrics and /healthz
// stay open for scrapers and probes.
type APIServer struct {
	engine    *engine.Engine
	stream    *AlertStream
	tokenHash []byte // bcrypt hash; nil disables auth
	logger    *slog.Logger
	parsers   fastjson.ParserPool
	srv       *http.Server
}

// NewAPIServer wires the server and registers the alert stream as a
// notification hook on the engine.
func NewAPIServer(eng *engine.Engine, token string, logger *slog.Logger) (*APIServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &APIServer{
		engine: eng,
		stream: NewAlertStream(logger),
		logger: logger,
	}
	if token != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing API token: %w", err)
		}
		s.tokenHash = hash
	}
	eng.AddNotificationHook(s.stream.Broadcast)
	return s, nil
}

// Handler builds the route table.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.Handle("/api/ingest", s.authMiddleware(http.HandlerFunc(s.handleIngest)))
	mux.Handle("/api/search", s.authMiddleware(http.HandlerFunc(s.handleSearch)))
	mux.Handle("/api/aggregate", s.authMiddleware(http.HandlerFunc(s.handleAggregate)))
	mux.Handle("/api/stats", s.authMiddleware(http.HandlerFunc(s.handleStats)))
	mux.Handle("/api/alerts", s.authMiddleware(http.HandlerFunc(s.handleAlerts)))
	mux.Handle("/api/alerts/stream", s.authMiddleware(http.HandlerFunc(s.stream.HandleWS)))
	return mux
}

// Start runs the HTTP server until Shutdown.
func (s *APIServer) Start(addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and closes stream clients.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.stream.Close()
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *APIServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == nil {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="logalytics"`)
			http.Error(w, "Unauthorized: missing token", http.StatusUnauthorized)
			return
		}
		if bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="logalytics"`)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *APIServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	io.WriteString(w, s.engine.PrometheusText())
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *APIServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.engine.Alerts()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":  len(alerts),
		"alerts": alerts,
	})
}

// handleIngest accepts one JSON record or an array of them.
func (s *APIServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 32*1024*1024))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	parser := s.parsers.Get()
	defer s.parsers.Put(parser)
	v, err := parser.ParseBytes(body)
	if err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	ingested, skipped := 0, 0
	processLog := func(val *fastjson.Value) {
		rec, err := engine.ParseJSONRecord(val)
		if err != nil {
			s.logger.Warn("skipping invalid ingest record", "error", err)
			skipped++
			return
		}
		s.engine.Ingest(rec)
		ingested++
	}
	if v.Type() == fastjson.TypeArray {
		for _, item := range v.GetArray() {
			processLog(item)
		}
	} else {
		processLog(v)
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"ingested": ingested,
		"skipped":  skipped,
	})
}

// searchRequest is the wire form of a query. Unrecognized keys are ignored
// by the JSON decoder, matching the filter-object contract.
type searchRequest struct {
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Level       string   `json:"level"`
	Source      string   `json:"source"`
	Tags        []string `json:"tags"`
	Keyword     string   `json:"keyword"`
	MinSeverity int      `json:"min_severity"`
	SortBy      string   `json:"sort_by"`
	Descending  bool     `json:"descending"`
	Page        int      `json:"page"`
	PageSize    int      `json:"page_size"`
}

func (req searchRequest) filter() (engine.Filter, error) {
	f := engine.Filter{
		Level:       req.Level,
		Source:      req.Source,
		Tags:        req.Tags,
		Keyword:     req.Keyword,
		MinSeverity: req.MinSeverity,
	}
	if req.StartTime != "" {
		ts, err := model.ParseTimestamp(req.StartTime)
		if err != nil {
			return f, fmt.Errorf("start_time: %w", err)
		}
		f.Start = ts
	}
	if req.EndTime != "" {
		ts, err := model.ParseTimestamp(req.EndTime)
		if err != nil {
			return f, fmt.Errorf("end_time: %w", err)
		}
		f.End = ts
	}
	return f, nil
}

func (s *APIServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	f, err := req.filter()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := s.engine.Query(f, engine.QueryOptions{
		SortBy:     req.SortBy,
		Descending: req.Descending,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

type aggregateRequest struct {
	searchRequest
	GroupBy        string         `json:"group_by"`
	HistogramField string         `json:"histogram_field"`
	TopN           map[string]int `json:"top_n"`
}

func (s *APIServer) handleAggregate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	f, err := req.filter()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := s.engine.Query(f, engine.QueryOptions{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := engine.Aggregate(records, engine.AggregateSpec{
		GroupBy:        req.GroupBy,
		HistogramField: req.HistogramField,
		TopN:           req.TopN,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
