package engine

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/logalytics/internal/model"
)

// HookDecision is the keep-or-drop outcome of a pre-ingest hook.
type HookDecision int

const (
	KeepRecord HookDecision = iota
	DropRecord
)

// PreIngestHook may enrich the record in place, or signal DropRecord to
// filter it out. A hook returning an error is skipped: the record continues
// through the pipeline with its pre-hook state.
type PreIngestHook func(rec *model.LogRecord) (HookDecision, error)

// AddPreIngestHook registers a hook. Hooks run in registration order on
// every ingested record, before any index is touched.
func (e *Engine) AddPreIngestHook(hook PreIngestHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preHooks = append(e.preHooks, hook)
}

// Ingest runs the record through the pre-ingest hooks, commits it to all
// indexes under one lock acquisition, and evaluates the alert rules against
// it. Notification hooks for any fired alerts run after the lock is
// released, so they may call back into the engine.
func (e *Engine) Ingest(rec model.LogRecord) {
	rec, keep := e.applyHooks(rec)
	if !keep {
		return
	}

	e.mu.Lock()
	rec = e.commitLocked(rec)
	fired := e.evalRulesLocked(rec)
	e.mu.Unlock()

	e.notify(fired)
}

// IngestBatch ingests each record under its own short-held lock
// acquisition, so large batches do not starve concurrent queries.
func (e *Engine) IngestBatch(recs []model.LogRecord) {
	for _, rec := range recs {
		e.Ingest(rec)
	}
}

func (e *Engine) applyHooks(rec model.LogRecord) (model.LogRecord, bool) {
	e.mu.Lock()
	hooks := e.preHooks
	e.mu.Unlock()

	for i, hook := range hooks {
		work := rec.Clone()
		decision, err := hook(&work)
		if err != nil {
			e.logger.Warn("pre-ingest hook failed, skipping it",
				"hook", i, "error", err)
			continue
		}
		if decision == DropRecord {
			return rec, false
		}
		rec = work
	}
	return rec, true
}

// StreamFormat selects how IngestStream interprets each input line.
type StreamFormat int

const (
	// FormatJSONLines expects one JSON object per line.
	FormatJSONLines StreamFormat = iota
	// FormatPlainText treats each line as a message with default
	// level INFO and the current time as timestamp.
	FormatPlainText
)

// IngestReport summarizes a stream ingestion run.
type IngestReport struct {
	Ingested   int           `json:"ingested"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration"`
	RatePerSec float64       `json:"rate_per_sec"`
}

// IngestStream reads line-delimited records from r. Malformed lines are
// logged and counted as skipped; a bad line never aborts the stream.
func (e *Engine) IngestStream(r io.Reader, format StreamFormat) (IngestReport, error) {
	var report IngestReport
	start := time.Now()

	var parser fastjson.Parser
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec model.LogRecord
		switch format {
		case FormatPlainText:
			rec = model.NewRecord(e.now(), model.LevelInfo, string(line))
		default:
			v, err := parser.ParseBytes(line)
			if err != nil {
				e.logger.Warn("skipping malformed log line",
					"line", lineNo, "error", err)
				report.Skipped++
				continue
			}
			rec, err = recordFromJSON(v, e.now)
			if err != nil {
				e.logger.Warn("skipping invalid log line",
					"line", lineNo, "error", err)
				report.Skipped++
				continue
			}
		}

		e.Ingest(rec)
		report.Ingested++
	}

	report.Duration = time.Since(start)
	if secs := report.Duration.Seconds(); secs > 0 {
		report.RatePerSec = float64(report.Ingested) / secs
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("reading log stream: %w", err)
	}
	return report, nil
}

// ParseJSONRecord builds a record from a parsed JSON object. Recognized
// fields: timestamp (ISO-8601 string or UnixNano number), level, message
// (or msg), source, tags, metadata. Unrecognized fields are ignored.
func ParseJSONRecord(v *fastjson.Value) (model.LogRecord, error) {
	return recordFromJSON(v, time.Now)
}

func recordFromJSON(v *fastjson.Value, now func() time.Time) (model.LogRecord, error) {
	msg := string(v.GetStringBytes("message"))
	if msg == "" {
		msg = string(v.GetStringBytes("msg"))
	}
	if msg == "" {
		return model.LogRecord{}, fmt.Errorf("missing message field")
	}

	level := model.LevelInfo
	if lvlBytes := v.GetStringBytes("level"); len(lvlBytes) > 0 {
		if lvl, err := model.ParseLevel(string(lvlBytes)); err == nil {
			level = lvl
		}
	}

	ts := now()
	if tsBytes := v.GetStringBytes("timestamp"); len(tsBytes) > 0 {
		parsed, err := model.ParseTimestamp(string(tsBytes))
		if err != nil {
			return model.LogRecord{}, err
		}
		ts = parsed
	} else if tsNum := v.GetInt64("timestamp"); tsNum > 0 {
		ts = time.Unix(0, tsNum)
	}

	rec := model.NewRecord(ts, level, msg)
	rec.Source = string(v.GetStringBytes("source"))

	for _, tv := range v.GetArray("tags") {
		if tag := string(tv.GetStringBytes()); tag != "" {
			rec.Tags = append(rec.Tags, tag)
		}
	}

	if meta := v.GetObject("metadata"); meta != nil {
		rec.Metadata = make(map[string]any)
		meta.Visit(func(key []byte, mv *fastjson.Value) {
			switch mv.Type() {
			case fastjson.TypeString:
				rec.Metadata[string(key)] = string(mv.GetStringBytes())
			case fastjson.TypeNumber:
				rec.Metadata[string(key)] = mv.GetFloat64()
			case fastjson.TypeTrue:
				rec.Metadata[string(key)] = true
			case fastjson.TypeFalse:
				rec.Metadata[string(key)] = false
			}
		})
	}
	return rec, nil
}
