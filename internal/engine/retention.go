package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/coffersTech/logalytics/internal/model"
)

// ArchiveFunc receives the records removed by a purge, in ascending
// timestamp order, before they leave the indexes.
type ArchiveFunc func([]model.LogRecord) error

// PurgeBefore removes every record with timestamp before cutoff from all
// indexes and returns the number removed. When an archive sink is given it
// runs first, outside the lock; an archive failure aborts the purge and
// leaves the indexes untouched.
func (e *Engine) PurgeBefore(cutoff time.Time, archive ArchiveFunc) (int, error) {
	e.mu.Lock()
	ids := e.times.Range(math.MinInt64, cutoff.UnixNano())
	expired := make([]model.LogRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := e.records[id]; ok {
			expired = append(expired, rec.Clone())
		}
	}
	e.mu.Unlock()

	if len(expired) == 0 {
		return 0, nil
	}
	if archive != nil {
		if err := archive(expired); err != nil {
			return 0, fmt.Errorf("archiving %d expired records: %w", len(expired), err)
		}
	}

	purged := 0
	e.mu.Lock()
	for _, rec := range expired {
		if e.deleteLocked(rec.ID) {
			purged++
		}
	}
	e.mu.Unlock()
	return purged, nil
}

// RunRetention purges records older than retention every interval, until
// the context is canceled. Purge failures are logged and retried on the
// next tick.
func (e *Engine) RunRetention(ctx context.Context, retention, interval time.Duration, archive ArchiveFunc) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("retention loop started",
		"retention", retention, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := e.now().Add(-retention)
			purged, err := e.PurgeBefore(cutoff, archive)
			if err != nil {
				e.logger.Error("retention purge failed", "error", err)
				continue
			}
			if purged > 0 {
				e.logger.Info("expired records purged",
					"purged", purged, "cutoff", cutoff)
			}
		}
	}
}
