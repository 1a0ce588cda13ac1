// Package tabular turns uploaded CSV and XLSX files into header-keyed rows.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("only Excel files (.xlsx, .xls) and CSV files (.csv) are supported")
	ErrNoHeaders         = errors.New("file has no column headers")
	ErrNoRows            = errors.New("file has no data rows")
)

// Row is one non-blank data line. Index is 1-based and contiguous.
type Row struct {
	Index   int
	Content map[string]any
}

type Table struct {
	Columns []string
	Rows    []Row
}

// Parse picks the parser from the file extension.
func Parse(filename string, r io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx", ".xls":
		return ParseXLSX(r)
	}
	return nil, ErrUnsupportedFormat
}

func ParseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	for _, rec := range records {
		for _, cell := range rec {
			if !utf8.ValidString(cell) {
				return nil, errors.New("csv file must be UTF-8 encoded")
			}
		}
	}
	return build(records, func(headers []string) []string {
		out := make([]string, 0, len(headers))
		for _, h := range headers {
			if h = strings.TrimSpace(h); h != "" {
				out = append(out, h)
			}
		}
		return out
	})
}

// ParseXLSX reads the first sheet. Headers stop at the first empty cell.
func ParseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse xlsx: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoHeaders
	}
	records, err := f.GetRows(sheets[f.GetActiveSheetIndex()])
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	return build(records, func(headers []string) []string {
		out := make([]string, 0, len(headers))
		for _, h := range headers {
			if strings.TrimSpace(h) == "" {
				break
			}
			out = append(out, strings.TrimSpace(h))
		}
		return out
	})
}

func build(records [][]string, headerFn func([]string) []string) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrNoHeaders
	}
	headers := headerFn(records[0])
	if len(headers) == 0 {
		return nil, ErrNoHeaders
	}
	t := &Table{Columns: headers}
	for _, rec := range records[1:] {
		blank := true
		for i := 0; i < len(rec) && i < len(headers); i++ {
			if strings.TrimSpace(rec[i]) != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		content := make(map[string]any, len(headers))
		for i, h := range headers {
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			content[h] = v
		}
		t.Rows = append(t.Rows, Row{Index: len(t.Rows) + 1, Content: content})
	}
	if len(t.Rows) == 0 {
		return nil, ErrNoRows
	}
	return t, nil
}
