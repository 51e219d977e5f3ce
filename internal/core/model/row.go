package model

// Row is one record of an uploaded dataset. OriginalIndex is its 0-based
// position in the upload and never changes.
type Row struct {
	OriginalIndex int               `json:"original_index"`
	Values        map[string]string `json:"values"`
}

// Value returns the cell for column and whether it was present.
func (r Row) Value(column string) (string, bool) {
	v, ok := r.Values[column]
	return v, ok
}
