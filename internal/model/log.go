package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Level is a dictionary-encoded log severity.
type Level uint8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ParseLevel converts a level name to its encoded form.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(s) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL", "CRITICAL":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "INFO"
	}
}

// Score returns the numeric severity score for the level.
func (l Level) Score() int {
	switch l {
	case LevelTrace:
		return 0
	case LevelDebug:
		return 10
	case LevelInfo:
		return 20
	case LevelWarn:
		return 30
	case LevelError:
		return 40
	case LevelFatal:
		return 50
	default:
		return 20
	}
}

// MarshalJSON encodes the level by name so persisted records stay readable.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}

// LogRecord represents a structured log entry. The ID is assigned by the
// engine at ingestion time and is the key used by all secondary indexes.
// Timestamp and Level are identity fields: once a record is indexed they are
// never mutated in place, updates are a delete followed by a reinsert.
type LogRecord struct {
	ID        uint64         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Source    string         `json:"source,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Severity  int            `json:"severity"`
}

// NewRecord builds a record with its derived severity score.
func NewRecord(ts time.Time, level Level, message string) LogRecord {
	return LogRecord{
		Timestamp: ts,
		Level:     level,
		Message:   message,
		Severity:  level.Score(),
	}
}

// Age reports how old the record is relative to now.
func (r LogRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.Timestamp)
}

// HasTag reports whether the record carries the given tag.
func (r LogRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never alias engine-owned state.
func (r LogRecord) Clone() LogRecord {
	out := r
	if r.Tags != nil {
		out.Tags = make([]string, len(r.Tags))
		copy(out.Tags, r.Tags)
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// timestampFormats are tried in order when parsing wire timestamps.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"02/Jan/2006:15:04:05 -0700", // common log format
}

// ParseTimestamp parses an ISO-8601 (or common log format) timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampFormats {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
