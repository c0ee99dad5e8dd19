package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/coffersTech/logalytics/internal/index"
	"github.com/coffersTech/logalytics/internal/model"
)

// ErrInvalidQuery marks rejected query arguments. Errors wrapping it are
// caller mistakes, not engine failures.
var ErrInvalidQuery = errors.New("invalid query")

// Filter restricts a query. Zero values mean "no restriction"; all set
// fields are AND-combined. The time range is half-open: [Start, End).
type Filter struct {
	Start       time.Time
	End         time.Time
	Level       string
	Source      string
	Tags        []string // record must carry every listed tag
	Keyword     string   // case-insensitive match in the message
	MinSeverity int
}

// QueryOptions control ordering and pagination.
type QueryOptions struct {
	SortBy     string // "timestamp" (default), "level" or "source"
	Descending bool
	Page       int // zero-indexed
	PageSize   int // 0 disables pagination
}

// Query seeds a candidate set from the most selective available index,
// applies the remaining predicates against each candidate record, then
// stable-sorts and paginates. A page past the available results is an empty
// slice, not an error.
func (e *Engine) Query(f Filter, opts QueryOptions) ([]model.LogRecord, error) {
	lvl, err := validateFilter(f)
	if err != nil {
		return nil, err
	}
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	e.mu.Lock()
	matches := e.collectLocked(f, lvl)
	e.mu.Unlock()

	sortRecords(matches, opts.SortBy, opts.Descending)
	return paginate(matches, opts.Page, opts.PageSize), nil
}

func validateFilter(f Filter) (model.Level, error) {
	var lvl model.Level
	if f.Level != "" {
		parsed, err := model.ParseLevel(f.Level)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		lvl = parsed
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return 0, fmt.Errorf("%w: end_time before start_time", ErrInvalidQuery)
	}
	if f.MinSeverity < 0 {
		return 0, fmt.Errorf("%w: negative min_severity", ErrInvalidQuery)
	}
	return lvl, nil
}

func validateOptions(opts QueryOptions) error {
	switch opts.SortBy {
	case "", "timestamp", "level", "source":
	default:
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, opts.SortBy)
	}
	if opts.Page < 0 {
		return fmt.Errorf("%w: negative page", ErrInvalidQuery)
	}
	if opts.PageSize < 0 {
		return fmt.Errorf("%w: negative page_size", ErrInvalidQuery)
	}
	return nil
}

// collectLocked picks the seeding index and residual-filters the
// candidates, returning copies. Callers hold e.mu.
func (e *Engine) collectLocked(f Filter, lvl model.Level) []model.LogRecord {
	var matches []model.LogRecord
	appendMatch := func(id uint64) {
		rec, ok := e.records[id]
		if ok && matchesFilter(rec, f, lvl) {
			matches = append(matches, rec.Clone())
		}
	}

	switch {
	case !f.Start.IsZero() || !f.End.IsZero():
		start, end := int64(math.MinInt64), int64(math.MaxInt64)
		if !f.Start.IsZero() {
			start = f.Start.UnixNano()
		}
		if !f.End.IsZero() {
			end = f.End.UnixNano()
		}
		for _, id := range e.times.Range(start, end) {
			appendMatch(id)
		}
	case f.Level != "":
		for id := range e.lookup.Level(lvl) {
			appendMatch(id)
		}
	case f.Source != "":
		for id := range e.lookup.Source(f.Source) {
			appendMatch(id)
		}
	case len(f.Tags) > 0:
		for id := range e.smallestTagSet(f.Tags) {
			appendMatch(id)
		}
	case f.Keyword != "" && len(index.Tokenize(f.Keyword)) == 1:
		for id := range e.lookup.Keyword(index.Tokenize(f.Keyword)[0]) {
			appendMatch(id)
		}
	default:
		for id := range e.records {
			appendMatch(id)
		}
	}
	return matches
}

func (e *Engine) smallestTagSet(tags []string) index.IDSet {
	var best index.IDSet
	for i, tag := range tags {
		set := e.lookup.Tag(tag)
		if i == 0 || len(set) < len(best) {
			best = set
		}
		if len(best) == 0 {
			break
		}
	}
	return best
}

// matchesFilter applies every filter predicate to the full record. The
// predicate already covered by the seeding index is cheap to re-check.
func matchesFilter(rec model.LogRecord, f Filter, lvl model.Level) bool {
	if !f.Start.IsZero() && rec.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && !rec.Timestamp.Before(f.End) {
		return false
	}
	if f.Level != "" && rec.Level != lvl {
		return false
	}
	if f.Source != "" && rec.Source != f.Source {
		return false
	}
	for _, tag := range f.Tags {
		if !rec.HasTag(tag) {
			return false
		}
	}
	if f.Keyword != "" &&
		!strings.Contains(strings.ToLower(rec.Message), strings.ToLower(f.Keyword)) {
		return false
	}
	if f.MinSeverity > 0 && rec.Severity < f.MinSeverity {
		return false
	}
	return true
}

func sortRecords(recs []model.LogRecord, sortBy string, descending bool) {
	byTime := func(a, b model.LogRecord) bool {
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	}
	var lessFn func(a, b model.LogRecord) bool
	switch sortBy {
	case "level":
		lessFn = func(a, b model.LogRecord) bool {
			if a.Level != b.Level {
				return a.Level < b.Level
			}
			return byTime(a, b)
		}
	case "source":
		lessFn = func(a, b model.LogRecord) bool {
			if a.Source != b.Source {
				return a.Source < b.Source
			}
			return byTime(a, b)
		}
	default:
		lessFn = byTime
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if descending {
			return lessFn(recs[j], recs[i])
		}
		return lessFn(recs[i], recs[j])
	})
}

func paginate(recs []model.LogRecord, page, pageSize int) []model.LogRecord {
	if pageSize == 0 {
		if page == 0 {
			return recs
		}
		return []model.LogRecord{}
	}
	start := page * pageSize
	if start >= len(recs) {
		return []model.LogRecord{}
	}
	end := start + pageSize
	if end > len(recs) {
		end = len(recs)
	}
	return recs[start:end]
}
