package tabular

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	in := "\ufeffprompt, response \nhello,world\n,\n  bye ,now\n"
	tbl, err := Parse("batch.CSV", strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tbl.Columns) != 2 || tbl.Columns[0] != "prompt" || tbl.Columns[1] != "response" {
		t.Fatalf("columns = %q", tbl.Columns)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows = %d, want 2 (blank line skipped)", len(tbl.Rows))
	}
	if tbl.Rows[1].Index != 2 || tbl.Rows[1].Content["prompt"] != "bye" {
		t.Fatalf("second row = %+v", tbl.Rows[1])
	}
}

func TestParseCSVErrors(t *testing.T) {
	if _, err := Parse("a.csv", strings.NewReader("")); !errors.Is(err, ErrNoHeaders) {
		t.Fatalf("empty file err = %v", err)
	}
	if _, err := Parse("a.csv", strings.NewReader("prompt\n\n")); !errors.Is(err, ErrNoRows) {
		t.Fatalf("header only err = %v", err)
	}
	if _, err := Parse("a.csv", strings.NewReader("p\n\xff\xfe\n")); err == nil {
		t.Fatal("invalid UTF-8 accepted")
	}
	if _, err := Parse("a.json", strings.NewReader("{}")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("json err = %v", err)
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"prompt", "score", "", "ignored"},
		{"first", 3},
		{},
		{"second", 4},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	tbl, err := Parse("batch.xlsx", &buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tbl.Columns) != 2 {
		t.Fatalf("columns = %q, want headers up to the first empty cell", tbl.Columns)
	}
	if len(tbl.Rows) != 2 || tbl.Rows[1].Content["score"] != "4" || tbl.Rows[1].Index != 2 {
		t.Fatalf("rows = %+v", tbl.Rows)
	}
}
