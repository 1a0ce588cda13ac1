package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"
)

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	exportSheet = "Ratings"
)

var averageNumFmt = "0.0#"

// ParseExportFormat defaults to xlsx.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", invalidf("unsupported export format %q (want csv or xlsx)", s)
}

func (f ExportFormat) ContentType() string {
	if f == FormatCSV {
		return contentTypeCSV
	}
	return contentTypeXLSX
}

func cellString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case int64:
		return strconv.FormatInt(c, 10)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case fmt.Stringer:
		return c.String()
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// WriteCSV streams the table as comma-separated text.
func WriteCSV(w io.Writer, t *ExportTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for row := range t.Rows {
		rec = rec[:0]
		for _, v := range row {
			rec = append(rec, cellString(v))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX streams the table into a single-sheet workbook. Numbers are
// written as numeric cells.
func WriteXLSX(w io.Writer, t *ExportTable) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	oneDecimal, err := f.NewStyle(&excelize.Style{CustomNumFmt: &averageNumFmt})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	n := 1
	for row := range t.Rows {
		n++
		cells := make([]any, len(row))
		for i, v := range row {
			if d, ok := v.(Average); ok {
				cells[i] = excelize.Cell{StyleID: oneDecimal, Value: math.Round(float64(d)*100) / 100}
				continue
			}
			cells[i] = v
		}
		axis, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, cells); err != nil {
			return fmt.Errorf("write row %d: %w", n, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	_, err = f.WriteTo(w)
	return err
}

func writeExport(w io.Writer, format ExportFormat, t *ExportTable) error {
	if format == FormatCSV {
		return WriteCSV(w, t)
	}
	return WriteXLSX(w, t)
}
