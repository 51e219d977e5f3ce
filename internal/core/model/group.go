package model

// GroupMember is a row inside a duplicate group. Scores maps the original
// index of another member to the similarity that directly linked the two.
// Members joined only transitively have no entry.
type GroupMember struct {
	Row    Row             `json:"row"`
	Scores map[int]float64 `json:"similarity_scores"`
}

// DuplicateGroup is a connected component of at least two rows.
type DuplicateGroup struct {
	DuplicateID string        `json:"duplicate_id"`
	Members     []GroupMember `json:"members"`
}

// Indices returns the original indices of the members in group order.
func (g DuplicateGroup) Indices() []int {
	out := make([]int, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.Row.OriginalIndex
	}
	return out
}

// Representative is the member kept when the group is collapsed.
func (g DuplicateGroup) Representative() int {
	if len(g.Members) == 0 {
		return -1
	}
	min := g.Members[0].Row.OriginalIndex
	for _, m := range g.Members[1:] {
		if m.Row.OriginalIndex < min {
			min = m.Row.OriginalIndex
		}
	}
	return min
}

type VerdictStatus string

const (
	StatusConfirmed     VerdictStatus = "confirmed"
	StatusFalsePositive VerdictStatus = "false_positive"
	StatusPending       VerdictStatus = "pending"
)
