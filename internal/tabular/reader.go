package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"

	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/core/model"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Table is a parsed upload: the header row and the data rows numbered from 0.
type Table struct {
	Columns []string
	Rows    []model.Row
}

type Options struct {
	// MaxRows rejects files with more data rows; 0 means unlimited.
	MaxRows int
}

// Read parses a CSV or XLSX upload. The format comes from the file
// extension, falling back to content sniffing when there is none.
// Every failure wraps common.ErrParseFailure.
func Read(filename string, data []byte, opts Options) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: file is empty", common.ErrParseFailure)
	}

	var (
		records [][]string
		err     error
	)
	switch format(filename, data) {
	case "csv":
		records, err = readCSV(data)
	case "xlsx":
		records, err = readXLSX(data)
	case "xls":
		return nil, fmt.Errorf("%w: legacy .xls workbooks are not supported, save as .xlsx", common.ErrParseFailure)
	default:
		return nil, fmt.Errorf("%w: only CSV and Excel files are supported", common.ErrParseFailure)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrParseFailure, err)
	}

	t, err := build(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrParseFailure, err)
	}
	if opts.MaxRows > 0 && len(t.Rows) > opts.MaxRows {
		return nil, fmt.Errorf("%w: %d rows exceeds the limit of %d", common.ErrParseFailure, len(t.Rows), opts.MaxRows)
	}
	return t, nil
}

func format(filename string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "csv"
	case ".xlsx":
		return "xlsx"
	case ".xls":
		return "xls"
	case "":
	default:
		return ""
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is(xlsxMIME):
		return "xlsx"
	case mt.Is("application/vnd.ms-excel"):
		return "xls"
	case mt.Is("text/csv"), mt.Is("text/plain"), mt.Is("text/tab-separated-values"):
		return "csv"
	}
	return ""
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// sniffDelimiter picks the most frequent of ',', ';' and '\t' in the header
// line, ignoring quoted text. Commas win ties.
func sniffDelimiter(data []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')
	counts := map[rune]int{}
	inQuotes := false
	for _, c := range line {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case !inQuotes && (c == ',' || c == ';' || c == '\t'):
			counts[c]++
		}
	}
	best := ','
	for _, c := range []rune{';', '\t'} {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// build turns raw records into a Table. Blank lines are dropped, blank
// headers become "Unnamed: <i>" and repeated headers get ".1", ".2" suffixes.
func build(records [][]string) (*Table, error) {
	var header []string
	var body [][]string
	for _, rec := range records {
		if blank(rec) {
			continue
		}
		if header == nil {
			header = rec
			continue
		}
		body = append(body, rec)
	}
	if header == nil {
		return nil, errors.New("file is empty")
	}
	if len(body) == 0 {
		return nil, errors.New("file has a header but no data rows")
	}

	width := len(header)
	for _, rec := range body {
		width = max(width, len(rec))
	}
	columns := headerNames(header, width)

	rows := make([]model.Row, len(body))
	for i, rec := range body {
		values := make(map[string]string, len(rec))
		for c, v := range rec {
			values[columns[c]] = v
		}
		rows[i] = model.Row{OriginalIndex: i, Values: values}
	}
	return &Table{Columns: columns, Rows: rows}, nil
}

func headerNames(header []string, width int) []string {
	columns := make([]string, width)
	seen := make(map[string]int, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		base := name
		for seen[name] > 0 {
			name = base + "." + strconv.Itoa(seen[base])
			seen[base]++
		}
		seen[name]++
		columns[i] = name
	}
	return columns
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
