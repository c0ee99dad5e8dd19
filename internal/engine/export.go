package engine

import (
	"fmt"
	"sort"
	"strings"
)

// PrometheusText renders the stats snapshot as a minimal text exposition:
// one "metric_name value" pair per line, log_engine_ prefix, deterministic
// line order.
func (e *Engine) PrometheusText() string {
	stats := e.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "log_engine_total_logs %d\n", stats.TotalLogs)
	fmt.Fprintf(&b, "log_engine_indexed_logs %d\n", stats.IndexedLogs)
	fmt.Fprintf(&b, "log_engine_ingestion_rate %g\n", stats.IngestionRate)
	fmt.Fprintf(&b, "log_engine_alerts_total %d\n", stats.AlertsFired)
	fmt.Fprintf(&b, "log_engine_rules %d\n", stats.Rules)

	for _, lvl := range sortedKeys(stats.Levels) {
		fmt.Fprintf(&b, "log_engine_level_%s_total %d\n",
			sanitizeMetricName(lvl), stats.Levels[lvl])
	}
	for _, src := range sortedKeys(stats.Sources) {
		fmt.Fprintf(&b, "log_engine_source_%s_total %d\n",
			sanitizeMetricName(src), stats.Sources[src])
	}
	for _, kw := range sortedKeys(stats.TopKeywords) {
		fmt.Fprintf(&b, "log_engine_keyword_%s_total %d\n",
			sanitizeMetricName(kw), stats.TopKeywords[kw])
	}
	return b.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sanitizeMetricName maps arbitrary label text into [a-z0-9_].
func sanitizeMetricName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
