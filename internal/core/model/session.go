package model

import "time"

// Snapshot is the full state of one upload session. Snapshots are treated as
// immutable: every mutation builds a new value which the store swaps in.
type Snapshot struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Columns   []string  `json:"columns"`
	Rows      []Row     `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
	Analysis  *Analysis `json:"analysis,omitempty"`

	// Version increases by one with every stored change.
	Version int64 `json:"version"`
}

// Analysis is the result of one successful analyze run plus the verdicts
// recorded against its groups.
type Analysis struct {
	Columns    []string         `json:"columns"`
	Threshold  float64          `json:"threshold"`
	Vectors    [][]float32      `json:"vectors,omitempty"`
	Groups     []DuplicateGroup `json:"groups"`
	Verdicts   map[string]bool  `json:"verdicts"`
	AnalyzedAt time.Time        `json:"analyzed_at"`
}

// HasColumn reports whether the session's upload contains column.
func (s *Snapshot) HasColumn(column string) bool {
	for _, c := range s.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// WithAnalysis returns a shallow copy of s carrying a.
func (s *Snapshot) WithAnalysis(a *Analysis) *Snapshot {
	next := *s
	next.Analysis = a
	return &next
}

// Group looks up a group by id.
func (a *Analysis) Group(id string) (DuplicateGroup, bool) {
	for _, g := range a.Groups {
		if g.DuplicateID == id {
			return g, true
		}
	}
	return DuplicateGroup{}, false
}

// Status returns the verdict status of the group with the given id.
func (a *Analysis) Status(id string) VerdictStatus {
	v, ok := a.Verdicts[id]
	switch {
	case !ok:
		return StatusPending
	case v:
		return StatusConfirmed
	default:
		return StatusFalsePositive
	}
}
