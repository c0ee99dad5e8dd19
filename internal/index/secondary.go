package index

import (
	"strings"
	"unicode"

	"github.com/coffersTech/logalytics/internal/model"
)

// IDSet is a set of record identifiers.
type IDSet map[uint64]struct{}

// Secondary maintains the discrete-key indexes: level, source and tag map
// directly to ID sets, and an inverted keyword index maps message tokens to
// the IDs of the records containing them. All four are maintained
// incrementally; there is no global rebuild.
type Secondary struct {
	byLevel   map[model.Level]IDSet
	bySource  map[string]IDSet
	byTag     map[string]IDSet
	byKeyword map[string]IDSet
}

// NewSecondary returns empty secondary indexes.
func NewSecondary() *Secondary {
	return &Secondary{
		byLevel:   make(map[model.Level]IDSet),
		bySource:  make(map[string]IDSet),
		byTag:     make(map[string]IDSet),
		byKeyword: make(map[string]IDSet),
	}
}

// Add indexes the record under its level, source, tags and message tokens.
func (s *Secondary) Add(rec model.LogRecord) {
	addTo(s.byLevel, rec.Level, rec.ID)
	if rec.Source != "" {
		addTo(s.bySource, rec.Source, rec.ID)
	}
	for _, tag := range rec.Tags {
		addTo(s.byTag, tag, rec.ID)
	}
	for _, tok := range Tokenize(rec.Message) {
		addTo(s.byKeyword, tok, rec.ID)
	}
}

// Remove deletes the record's ID from every index it participates in.
// A missed removal would leave a dangling reference, so Remove must be
// driven from the same record value that was passed to Add.
func (s *Secondary) Remove(rec model.LogRecord) {
	removeFrom(s.byLevel, rec.Level, rec.ID)
	if rec.Source != "" {
		removeFrom(s.bySource, rec.Source, rec.ID)
	}
	for _, tag := range rec.Tags {
		removeFrom(s.byTag, tag, rec.ID)
	}
	for _, tok := range Tokenize(rec.Message) {
		removeFrom(s.byKeyword, tok, rec.ID)
	}
}

// Level returns the ID set for a level. The returned set is engine-owned.
func (s *Secondary) Level(l model.Level) IDSet { return s.byLevel[l] }

// Source returns the ID set for a source.
func (s *Secondary) Source(src string) IDSet { return s.bySource[src] }

// Tag returns the ID set for a tag.
func (s *Secondary) Tag(tag string) IDSet { return s.byTag[tag] }

// Keyword returns the ID set for a message token.
func (s *Secondary) Keyword(tok string) IDSet { return s.byKeyword[strings.ToLower(tok)] }

// KeywordCount returns the number of distinct indexed tokens.
func (s *Secondary) KeywordCount() int { return len(s.byKeyword) }

func addTo[K comparable](m map[K]IDSet, key K, id uint64) {
	set, ok := m[key]
	if !ok {
		set = make(IDSet)
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeFrom[K comparable](m map[K]IDSet, key K, id uint64) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

// Tokenize lowercases the message and splits it on any non-alphanumeric
// rune, deduplicating the resulting tokens.
func Tokenize(message string) []string {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
