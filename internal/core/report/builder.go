package report

import (
	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/core/model"
	"github.com/agenthands/dsstrack/internal/core/review"
)

// DuplicateEntry is one row of the duplicates view.
type DuplicateEntry struct {
	DuplicateID    string              `json:"duplicate_id"`
	Status         model.VerdictStatus `json:"status"`
	OriginalIndex  int                 `json:"original_index"`
	CanonicalIndex int                 `json:"canonical_index"`
	IsCanonical    bool                `json:"is_canonical"`
	Scores         map[int]float64     `json:"similarity_scores"`
	Values         map[string]string   `json:"values"`
}

type Summary struct {
	TotalRows        int      `json:"total_rows"`
	DeduplicatedRows int      `json:"deduplicated_rows"`
	RowsRemoved      int      `json:"rows_removed"`
	TotalGroups      int      `json:"total_groups"`
	GroupsReviewed   int      `json:"groups_reviewed"`
	Confirmed        int      `json:"confirmed"`
	Rejected         int      `json:"rejected"`
	Pending          int      `json:"pending"`
	RowsInGroups     int      `json:"rows_in_groups"`
	Threshold        float64  `json:"threshold"`
	ColumnsAnalyzed  []string `json:"columns_analyzed"`
}

// Report holds the four views of a reviewed session.
type Report struct {
	Filename     string           `json:"filename"`
	Columns      []string         `json:"columns"`
	Original     []model.Row      `json:"original"`
	Deduplicated []model.Row      `json:"deduplicated"`
	Duplicates   []DuplicateEntry `json:"duplicates"`
	Summary      Summary          `json:"summary"`
}

// Build derives the report from snap. Only confirmed groups are collapsed;
// false positives and pending groups keep all their rows.
func Build(snap *model.Snapshot) (*Report, error) {
	if snap == nil || snap.Analysis == nil {
		return nil, common.ErrSessionNotAnalyzed
	}
	a := snap.Analysis

	drop := make(map[int]bool)
	var entries []DuplicateEntry
	rowsInGroups := 0
	for _, g := range a.Groups {
		status := a.Status(g.DuplicateID)
		canonical := g.Representative()
		rowsInGroups += len(g.Members)
		for _, m := range g.Members {
			idx := m.Row.OriginalIndex
			if status == model.StatusConfirmed && idx != canonical {
				drop[idx] = true
			}
			entries = append(entries, DuplicateEntry{
				DuplicateID:    g.DuplicateID,
				Status:         status,
				OriginalIndex:  idx,
				CanonicalIndex: canonical,
				IsCanonical:    idx == canonical,
				Scores:         m.Scores,
				Values:         m.Row.Values,
			})
		}
	}

	dedup := make([]model.Row, 0, len(snap.Rows)-len(drop))
	for _, r := range snap.Rows {
		if !drop[r.OriginalIndex] {
			dedup = append(dedup, r)
		}
	}

	counts := review.Tally(a)
	return &Report{
		Filename:     snap.Filename,
		Columns:      snap.Columns,
		Original:     snap.Rows,
		Deduplicated: dedup,
		Duplicates:   entries,
		Summary: Summary{
			TotalRows:        len(snap.Rows),
			DeduplicatedRows: len(dedup),
			RowsRemoved:      len(snap.Rows) - len(dedup),
			TotalGroups:      counts.Total,
			GroupsReviewed:   counts.Reviewed,
			Confirmed:        counts.Confirmed,
			Rejected:         counts.Rejected,
			Pending:          counts.Pending,
			RowsInGroups:     rowsInGroups,
			Threshold:        a.Threshold,
			ColumnsAnalyzed:  a.Columns,
		},
	}, nil
}
