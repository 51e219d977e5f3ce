package review

import (
	"fmt"

	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/core/model"
)

// Counts summarises the verdicts recorded against an analysis.
type Counts struct {
	Total     int `json:"total_groups"`
	Reviewed  int `json:"total_reviewed"`
	Confirmed int `json:"confirmed"`
	Rejected  int `json:"rejected"`
	Pending   int `json:"pending"`
}

// Record returns a copy of analysis with the verdict for duplicateID set.
// The input is left untouched so the caller can discard the result on a
// later failure.
func Record(analysis *model.Analysis, duplicateID string, isDuplicate bool) (*model.Analysis, error) {
	if analysis == nil {
		return nil, common.ErrSessionNotAnalyzed
	}
	if _, ok := analysis.Group(duplicateID); !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownGroup, duplicateID)
	}

	next := *analysis
	next.Verdicts = make(map[string]bool, len(analysis.Verdicts)+1)
	for id, v := range analysis.Verdicts {
		next.Verdicts[id] = v
	}
	next.Verdicts[duplicateID] = isDuplicate
	return &next, nil
}

// Pending lists the ids of groups without a verdict, in group order.
func Pending(analysis *model.Analysis) []string {
	if analysis == nil {
		return nil
	}
	var out []string
	for _, g := range analysis.Groups {
		if _, ok := analysis.Verdicts[g.DuplicateID]; !ok {
			out = append(out, g.DuplicateID)
		}
	}
	return out
}

// Tally counts verdicts. Verdicts for ids outside the current group set
// are ignored.
func Tally(analysis *model.Analysis) Counts {
	var c Counts
	if analysis == nil {
		return c
	}
	c.Total = len(analysis.Groups)
	for _, g := range analysis.Groups {
		switch analysis.Status(g.DuplicateID) {
		case model.StatusConfirmed:
			c.Confirmed++
		case model.StatusFalsePositive:
			c.Rejected++
		default:
			c.Pending++
		}
	}
	c.Reviewed = c.Confirmed + c.Rejected
	return c
}
