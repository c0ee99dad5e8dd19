package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/logalytics/internal/model"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{"simple", "Connection refused", []string{"connection", "refused"}},
		{"punctuation", "db.query failed: timeout!", []string{"db", "query", "failed", "timeout"}},
		{"dedupe", "retry retry RETRY", []string{"retry"}},
		{"digits", "error 503 from upstream", []string{"error", "503", "from", "upstream"}},
		{"empty", "  ...  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.message))
		})
	}
}

func TestSecondary_AddRemove(t *testing.T) {
	s := NewSecondary()

	rec := model.NewRecord(time.Now(), model.LevelError, "disk full on volume")
	rec.ID = 1
	rec.Source = "storage-svc"
	rec.Tags = []string{"disk", "prod"}
	s.Add(rec)

	assert.Contains(t, s.Level(model.LevelError), uint64(1))
	assert.Contains(t, s.Source("storage-svc"), uint64(1))
	assert.Contains(t, s.Tag("disk"), uint64(1))
	assert.Contains(t, s.Tag("prod"), uint64(1))
	assert.Contains(t, s.Keyword("disk"), uint64(1))
	assert.Contains(t, s.Keyword("volume"), uint64(1))
	assert.Contains(t, s.Keyword("DISK"), uint64(1), "keyword lookup is case-insensitive")

	// Removal must clear the id from every index it participates in.
	s.Remove(rec)
	assert.Empty(t, s.Level(model.LevelError))
	assert.Empty(t, s.Source("storage-svc"))
	assert.Empty(t, s.Tag("disk"))
	assert.Empty(t, s.Keyword("volume"))
	assert.Zero(t, s.KeywordCount())
}

func TestSecondary_SharedKeys(t *testing.T) {
	s := NewSecondary()

	a := model.NewRecord(time.Now(), model.LevelInfo, "request ok")
	a.ID = 1
	a.Tags = []string{"api"}
	b := model.NewRecord(time.Now(), model.LevelInfo, "request slow")
	b.ID = 2
	b.Tags = []string{"api"}
	s.Add(a)
	s.Add(b)

	require.Len(t, s.Tag("api"), 2)
	require.Len(t, s.Keyword("request"), 2)

	s.Remove(a)
	assert.NotContains(t, s.Tag("api"), uint64(1))
	assert.Contains(t, s.Tag("api"), uint64(2))
	assert.Contains(t, s.Keyword("request"), uint64(2))
}
