package engine

import (
	"sort"

	"github.com/coffersTech/logalytics/internal/index"
	"github.com/coffersTech/logalytics/internal/model"
)

// counters are cumulative ingestion counters. They only ever grow; retention
// purges do not rewind them.
type counters struct {
	totalLogs int64
	byLevel   map[model.Level]int64
	bySource  map[string]int64
	byKeyword map[string]int64
}

func newCounters() counters {
	return counters{
		byLevel:   make(map[model.Level]int64),
		bySource:  make(map[string]int64),
		byKeyword: make(map[string]int64),
	}
}

func (c *counters) count(rec model.LogRecord) {
	c.totalLogs++
	c.byLevel[rec.Level]++
	if rec.Source != "" {
		c.bySource[rec.Source]++
	}
	for _, tok := range index.Tokenize(rec.Message) {
		c.byKeyword[tok]++
	}
}

// Stats is a read-only snapshot of the engine counters.
type Stats struct {
	TotalLogs     int64            `json:"total_logs"`
	IndexedLogs   int              `json:"indexed_logs"`
	IngestionRate float64          `json:"ingestion_rate"`
	Levels        map[string]int64 `json:"levels"`
	Sources       map[string]int64 `json:"sources"`
	TopKeywords   map[string]int64 `json:"top_keywords"`
	AlertsFired   int              `json:"alerts_fired"`
	Rules         int              `json:"rules"`
}

// topKeywordCount bounds the keyword section of snapshots and exports.
const topKeywordCount = 10

// Stats computes a snapshot on demand from the counters maintained by
// ingestion.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		TotalLogs:     e.stats.totalLogs,
		IndexedLogs:   len(e.records),
		IngestionRate: e.IngestionRate(),
		Levels:        make(map[string]int64, len(e.stats.byLevel)),
		Sources:       make(map[string]int64, len(e.stats.bySource)),
		TopKeywords:   make(map[string]int64, topKeywordCount),
		AlertsFired:   len(e.alerts),
		Rules:         len(e.rules),
	}
	for lvl, n := range e.stats.byLevel {
		stats.Levels[lvl.String()] = n
	}
	for src, n := range e.stats.bySource {
		stats.Sources[src] = n
	}
	for _, kw := range e.topKeywordsLocked(topKeywordCount) {
		stats.TopKeywords[kw] = e.stats.byKeyword[kw]
	}
	return stats
}

// topKeywordsLocked returns the n most frequent message tokens, most
// frequent first, ties broken alphabetically for determinism.
func (e *Engine) topKeywordsLocked(n int) []string {
	keywords := make([]string, 0, len(e.stats.byKeyword))
	for kw := range e.stats.byKeyword {
		keywords = append(keywords, kw)
	}
	sort.Slice(keywords, func(i, j int) bool {
		ci, cj := e.stats.byKeyword[keywords[i]], e.stats.byKeyword[keywords[j]]
		if ci != cj {
			return ci > cj
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}
