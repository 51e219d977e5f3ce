package compose

import (
	"strings"

	"github.com/agenthands/dsstrack/internal/core/model"
)

// DefaultSeparator joins column values into one comparison string.
const DefaultSeparator = " "

// Text builds the comparison string for row from the selected columns, in
// order. Absent cells and unknown columns contribute an empty string.
func Text(row model.Row, columns []string, sep string) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = row.Values[col]
	}
	return strings.Join(parts, sep)
}

// Texts applies Text to every row.
func Texts(rows []model.Row, columns []string, sep string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = Text(r, columns, sep)
	}
	return out
}

// Selection filters columns down to the ones known to the dataset, dropping
// repeats while keeping the caller's order. unknown lists what was dropped.
func Selection(columns []string, known func(string) bool) (selected, unknown []string) {
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		if known(c) {
			selected = append(selected, c)
		} else {
			unknown = append(unknown, c)
		}
	}
	return selected, unknown
}
