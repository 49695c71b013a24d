// Package aggregate defines the leaderboard cache row: the mean score
// over samples for a (model, language, subject, task) slice, keyed by
// fingerprint.
package aggregate

import "time"

// Key identifies one cache row.
type Key struct {
	Fingerprint string
	ModelName   string
	Language    string
	SubjectType string
	TaskType    string
}

// Row is a full cache entry: key plus value.
type Row struct {
	Key
	Score          float64
	SampleCount    int
	LastUpdated    time.Time
	Quarantine     bool
	QuarantineNote string
	SourceTaskID   string
}

// Filter narrows a Browse query. Zero-value fields are
// unconstrained.
type Filter struct {
	Language          string
	SubjectType       string
	TaskType          string
	ModelNameContains string
	ScoreMin          *float64
	ScoreMax          *float64
	UpdatedAfter      *time.Time
	IncludeQuarantined bool
}

// Matches reports whether row satisfies the filter.
func (f Filter) Matches(row Row) bool {
	if !f.IncludeQuarantined && row.Quarantine {
		return false
	}
	if f.Language != "" && row.Language != f.Language {
		return false
	}
	if f.SubjectType != "" && row.SubjectType != f.SubjectType {
		return false
	}
	if f.TaskType != "" && row.TaskType != f.TaskType {
		return false
	}
	if f.ModelNameContains != "" && !containsFold(row.ModelName, f.ModelNameContains) {
		return false
	}
	if f.ScoreMin != nil && row.Score < *f.ScoreMin {
		return false
	}
	if f.ScoreMax != nil && row.Score > *f.ScoreMax {
		return false
	}
	if f.UpdatedAfter != nil && !row.LastUpdated.After(*f.UpdatedAfter) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 {
		return true
	}
	if nl > hl {
		return false
	}
	hLower := toLower(haystack)
	nLower := toLower(needle)
	for i := 0; i+nl <= hl; i++ {
		if hLower[i:i+nl] == nLower {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
