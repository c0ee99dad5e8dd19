package engine

import (
	"fmt"
	"sort"

	"github.com/coffersTech/logalytics/internal/index"
	"github.com/coffersTech/logalytics/internal/model"
)

// AggregateSpec describes which aggregations to compute. All parts are
// optional. Recognized fields: level, source, tags, keyword (message tokens).
type AggregateSpec struct {
	GroupBy        string         `json:"group_by,omitempty"`
	HistogramField string         `json:"histogram_field,omitempty"`
	TopN           map[string]int `json:"top_n,omitempty"`
}

// TopValue is one entry of a top-N ranking.
type TopValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// AggregateResult carries the computed aggregations.
type AggregateResult struct {
	Total     int                   `json:"total"`
	Groups    map[string]int        `json:"groups,omitempty"`
	Histogram map[string]int        `json:"histogram,omitempty"`
	TopN      map[string][]TopValue `json:"top_n,omitempty"`
}

// Aggregate computes grouped counts, a discrete-value histogram and top-N
// rankings over an already-materialized result set, so cost is proportional
// to the filtered set, never the full index.
func Aggregate(records []model.LogRecord, spec AggregateSpec) (AggregateResult, error) {
	result := AggregateResult{Total: len(records)}

	if spec.GroupBy != "" {
		counts, err := countValues(records, spec.GroupBy)
		if err != nil {
			return result, err
		}
		result.Groups = counts
	}

	if spec.HistogramField != "" {
		counts, err := countValues(records, spec.HistogramField)
		if err != nil {
			return result, err
		}
		result.Histogram = counts
	}

	if len(spec.TopN) > 0 {
		result.TopN = make(map[string][]TopValue, len(spec.TopN))
		for field, n := range spec.TopN {
			if n <= 0 {
				return result, fmt.Errorf("%w: top_n for %q must be positive", ErrInvalidQuery, field)
			}
			top, err := topValues(records, field, n)
			if err != nil {
				return result, err
			}
			result.TopN[field] = top
		}
	}

	return result, nil
}

// fieldValues extracts the discrete values a record contributes for a field.
func fieldValues(rec model.LogRecord, field string) ([]string, error) {
	switch field {
	case "level":
		return []string{rec.Level.String()}, nil
	case "source":
		if rec.Source == "" {
			return nil, nil
		}
		return []string{rec.Source}, nil
	case "tags":
		return rec.Tags, nil
	case "keyword":
		return index.Tokenize(rec.Message), nil
	}
	return nil, fmt.Errorf("%w: unknown aggregation field %q", ErrInvalidQuery, field)
}

func countValues(records []model.LogRecord, field string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, rec := range records {
		values, err := fieldValues(rec, field)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			counts[v]++
		}
	}
	return counts, nil
}

// topValues returns the n most frequent values of a field. Ties are broken
// by first-seen order across the input.
func topValues(records []model.LogRecord, field string, n int) ([]TopValue, error) {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, rec := range records {
		values, err := fieldValues(rec, field)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			if _, seen := counts[v]; !seen {
				firstSeen[v] = order
				order++
			}
			counts[v]++
		}
	}

	ranked := make([]TopValue, 0, len(counts))
	for v, c := range counts {
		ranked = append(ranked, TopValue{Value: v, Count: c})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return firstSeen[ranked[i].Value] < firstSeen[ranked[j].Value]
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}
