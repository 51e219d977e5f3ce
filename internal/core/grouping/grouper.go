package grouping

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/core/model"
)

// Grouper clusters rows into duplicate groups: every pair whose cosine
// similarity reaches the threshold is linked, and each connected component
// with at least two rows becomes a group. Comparison is O(N^2) in the row
// count, which bounds it to spreadsheet-sized inputs.
type Grouper struct {
	IDGenerator func() string
	Similarity  func(a, b []float32) float64
}

func NewGrouper() *Grouper {
	return &Grouper{
		IDGenerator: func() string { return uuid.New().String() },
		Similarity:  CosineSimilarity,
	}
}

type edge struct {
	i, j int
	sim  float64
}

// ValidateThreshold accepts thresholds in (0, 1].
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold <= 0 || threshold > 1 {
		return fmt.Errorf("%w (got %v)", common.ErrInvalidThreshold, threshold)
	}
	return nil
}

// Group returns the duplicate groups for rows, where vectors[k] is the
// embedding of rows[k]. Groups are ordered by their lowest original index and
// members ascend by original index.
func (g *Grouper) Group(rows []model.Row, vectors [][]float32, threshold float64) ([]model.DuplicateGroup, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if len(rows) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d rows", len(vectors), len(rows))
	}
	if len(rows) < 2 {
		return []model.DuplicateGroup{}, nil
	}

	// Rows are addressed by slice position; sort positions by original index
	// so component order follows it even if rows arrive unordered.
	order := sortedPositions(rows)

	ds := NewDisjointSet(len(order))
	var edges []edge
	for a := 0; a < len(order); a++ {
		for b := a + 1; b < len(order); b++ {
			sim := g.Similarity(vectors[order[a]], vectors[order[b]])
			if sim >= threshold {
				ds.Union(a, b)
				edges = append(edges, edge{i: a, j: b, sim: sim})
			}
		}
	}

	groupOf := make(map[int]int)
	slot := make(map[int]int)
	groups := []model.DuplicateGroup{}
	for _, comp := range ds.Components() {
		if len(comp) < 2 {
			continue
		}
		group := model.DuplicateGroup{
			DuplicateID: g.IDGenerator(),
			Members:     make([]model.GroupMember, len(comp)),
		}
		for k, pos := range comp {
			groupOf[pos] = len(groups)
			slot[pos] = k
			group.Members[k] = model.GroupMember{
				Row:    rows[order[pos]],
				Scores: make(map[int]float64),
			}
		}
		groups = append(groups, group)
	}

	for _, e := range edges {
		members := groups[groupOf[e.i]].Members
		ri, rj := rows[order[e.i]], rows[order[e.j]]
		members[slot[e.i]].Scores[rj.OriginalIndex] = e.sim
		members[slot[e.j]].Scores[ri.OriginalIndex] = e.sim
	}

	return groups, nil
}

func sortedPositions(rows []model.Row) []int {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rows[order[a]].OriginalIndex < rows[order[b]].OriginalIndex
	})
	return order
}
