package tabular

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/agenthands/dsstrack/internal/core/model"
	"github.com/agenthands/dsstrack/internal/core/report"
)

const (
	SheetOriginal     = "Original Data"
	SheetDeduplicated = "De-duplicated Data"
	SheetDuplicates   = "Duplicates"
	SheetStatistics   = "Statistics"

	ContentType = xlsxMIME
)

// ReportFilename derives the download name from the uploaded file name.
func ReportFilename(uploaded string) string {
	base := filepath.Base(uploaded)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "data"
	}
	return stem + "_duplicate_report.xlsx"
}

// WriteReport renders rep as a workbook with one sheet per report view.
func WriteReport(rep *report.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetOriginal); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetDeduplicated, SheetDuplicates, SheetStatistics} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", name, err)
		}
	}

	if err := writeRows(f, SheetOriginal, rep.Columns, rep.Original); err != nil {
		return nil, err
	}
	if err := writeRows(f, SheetDeduplicated, rep.Columns, rep.Deduplicated); err != nil {
		return nil, err
	}
	if err := writeDuplicates(f, rep); err != nil {
		return nil, err
	}
	if err := writeStatistics(f, rep.Summary); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("stream sheet %q: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("sheet %q row %d: %w", sheet, i+1, err)
		}
	}
	return sw.Flush()
}

func header(names ...string) []interface{} {
	out := make([]interface{}, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

func writeRows(f *excelize.File, sheet string, columns []string, rows []model.Row) error {
	out := make([][]interface{}, 0, len(rows)+1)
	out = append(out, header(columns...))
	for _, r := range rows {
		out = append(out, cells(columns, r.Values))
	}
	return writeSheet(f, sheet, out)
}

func cells(columns []string, values map[string]string) []interface{} {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = values[c]
	}
	return row
}

func writeDuplicates(f *excelize.File, rep *report.Report) error {
	if len(rep.Duplicates) == 0 {
		return writeSheet(f, SheetDuplicates, [][]interface{}{header("No duplicate groups")})
	}

	cols := append(append([]string(nil), rep.Columns...),
		"Original_Row_Index", "Canonical_Row_Index", "Is_Canonical",
		"Duplicate_Group_ID", "Review_Status", "Similarity_Scores")
	out := [][]interface{}{header(cols...)}
	for _, d := range rep.Duplicates {
		row := cells(rep.Columns, d.Values)
		row = append(row, d.OriginalIndex, d.CanonicalIndex, d.IsCanonical,
			d.DuplicateID, string(d.Status), formatScores(d.Scores))
		out = append(out, row)
	}
	return writeSheet(f, SheetDuplicates, out)
}

// formatScores renders "3:0.9123; 7:0.8800" in ascending row order.
func formatScores(scores map[int]float64) string {
	keys := make([]int, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strconv.Itoa(k) + ":" + strconv.FormatFloat(scores[k], 'f', 4, 64)
	}
	return strings.Join(parts, "; ")
}

func writeStatistics(f *excelize.File, s report.Summary) error {
	out := [][]interface{}{
		header("Metric", "Value"),
		{"Original Row Count", s.TotalRows},
		{"De-duplicated Row Count", s.DeduplicatedRows},
		{"Rows Removed", s.RowsRemoved},
		{"Potential Duplicate Groups Identified", s.TotalGroups},
		{"Groups Reviewed", s.GroupsReviewed},
		{"Groups Confirmed as Duplicates", s.Confirmed},
		{"Groups Confirmed as Non-Duplicates", s.Rejected},
		{"Groups Pending Review", s.Pending},
		{"Total Rows in Potential Duplicate Groups", s.RowsInGroups},
		{"Similarity Threshold Used", s.Threshold},
		{"Columns Analyzed", strings.Join(s.ColumnsAnalyzed, ", ")},
	}
	return writeSheet(f, SheetStatistics, out)
}
