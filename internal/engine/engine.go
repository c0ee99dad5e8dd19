// Package engine implements the log analytics core: multi-index ingestion,
// filtered queries, aggregation, rule-based alerting and metrics snapshots.
//
// One mutex serializes all index, rule and alert mutation. Queries hold the
// same lock while touching the indexes and release it before returning
// copies, so callers never observe a partially-updated index. Batch
// ingestion takes the lock once per record, not once per batch, which bounds
// lock hold time during large file ingests.
package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coffersTech/logalytics/internal/index"
	"github.com/coffersTech/logalytics/internal/model"
)

// Engine owns all index structures and the alert state. Records handed out
// by queries are copies; internal state is never aliased by callers.
type Engine struct {
	mu sync.Mutex

	nextID  uint64
	records map[uint64]model.LogRecord
	times   *index.TimeIndex
	lookup  *index.Secondary

	preHooks  []PreIngestHook
	rules     []*AlertRule
	alerts    []Alert
	notifiers []NotifyFunc

	stats counters

	// Ingestion rate, sampled by the stats ticker.
	ingestCounter int64 // atomic
	ingestRate    atomic.Value // float64

	logger *slog.Logger

	// now is swappable so cooldown behavior is deterministic under test.
	now func() time.Time
}

// New creates an empty engine. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		records: make(map[uint64]model.LogRecord),
		times:   index.NewTimeIndex(),
		lookup:  index.NewSecondary(),
		stats:   newCounters(),
		logger:  logger,
		now:     time.Now,
	}
	e.ingestRate.Store(0.0)
	return e
}

// Len returns the number of records currently indexed.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

// Record returns a copy of the record with the given ID.
func (e *Engine) Record(id uint64) (model.LogRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return model.LogRecord{}, false
	}
	return rec.Clone(), true
}

// Delete removes a record from every index under a single lock acquisition.
// It reports whether the record existed. Updates to identity fields are
// modeled as Delete followed by a fresh Ingest.
func (e *Engine) Delete(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteLocked(id)
}

// commitLocked assigns the record its identity and installs it in all
// indexes and counters. Callers hold e.mu.
func (e *Engine) commitLocked(rec model.LogRecord) model.LogRecord {
	e.nextID++
	rec.ID = e.nextID
	rec.Severity = rec.Level.Score()

	e.records[rec.ID] = rec
	e.times.Insert(rec.Timestamp.UnixNano(), rec.ID)
	e.lookup.Add(rec)
	e.stats.count(rec)
	atomic.AddInt64(&e.ingestCounter, 1)
	return rec
}

func (e *Engine) deleteLocked(id uint64) bool {
	rec, ok := e.records[id]
	if !ok {
		return false
	}
	e.times.Delete(rec.Timestamp.UnixNano(), id)
	e.lookup.Remove(rec)
	delete(e.records, id)
	return true
}

// StartRateTicker samples the ingestion counter to maintain a logs/sec rate.
// It runs until the process exits.
func (e *Engine) StartRateTicker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			count := atomic.SwapInt64(&e.ingestCounter, 0)
			e.ingestRate.Store(float64(count) / interval.Seconds())
		}
	}()
}

// IngestionRate returns the most recent sampled ingestion rate in logs/sec.
func (e *Engine) IngestionRate() float64 {
	return e.ingestRate.Load().(float64)
}
