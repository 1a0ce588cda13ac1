package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func readCSV(b []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(b))
	return r.ReadAll()
}

func intPtr(v int) *int { return &v }

func testSession() (*Session, []*DataRow) {
	sess := &Session{ID: "s1", Name: "batch", Columns: []string{"prompt", "answer"}}
	rows := []*DataRow{
		{ID: "r1", SessionID: "s1", RowIndex: 1, Content: map[string]any{"prompt": "hi", "answer": "hello"}},
		{ID: "r2", SessionID: "s1", RowIndex: 2, Content: map[string]any{"prompt": "n", "answer": float64(42)}},
	}
	return sess, rows
}

func renderCSV(t *testing.T, table *ExportTable) [][]string {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	recs, err := readCSV(buf.Bytes())
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return recs
}

func TestExportLegacyRatingAverage(t *testing.T) {
	sess, rows := testSession()
	schema := LegacySchema{Type: TypeRating, Config: RatingConfig{Min: 1, Max: 5}}
	ratings := []*Rating{
		{ID: "a", DataRowID: "r1", RaterID: "u1", RaterUsername: "alice", RatingValue: intPtr(3), Comment: "meh"},
		{ID: "b", DataRowID: "r1", RaterID: "u2", RaterUsername: "bob", RatingValue: intPtr(5)},
		{ID: "c", DataRowID: "r1", RaterID: "u3", RaterUsername: "carol"},
	}
	recs := renderCSV(t, BuildExportTable(sess, schema, rows, ratings))

	wantHeader := "Row #|prompt|answer|Rating (alice)|Comment (alice)|Rating (bob)|Comment (bob)|Rating (carol)|Comment (carol)|Avg Rating|# of Ratings"
	if got := strings.Join(recs[0], "|"); got != wantHeader {
		t.Fatalf("header = %s\nwant     %s", got, wantHeader)
	}
	row1 := recs[1]
	if row1[3] != "3" || row1[4] != "meh" || row1[5] != "5" || row1[7] != "" {
		t.Fatalf("row 1 = %q", row1)
	}
	if row1[9] != "4.0" || row1[10] != "3" {
		t.Fatalf("avg/count = %q/%q, want 4.0/3", row1[9], row1[10])
	}
	row2 := recs[2]
	if row2[2] != "42" || row2[9] != "" || row2[10] != "0" {
		t.Fatalf("row 2 = %q", row2)
	}
}

func TestAverageString(t *testing.T) {
	for in, want := range map[float64]string{4: "4.0", 3.456: "3.46", 2.5: "2.5", 10: "10.0"} {
		if got := Average(in).String(); got != want {
			t.Fatalf("Average(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestExportMultiQuestionColumns(t *testing.T) {
	sess, rows := testSession()
	schema := MultiQuestionSchema{Questions: []*Question{
		{Key: "cmp", Label: "Compare", Order: 1, Type: TypePairwise, Config: PairwiseConfig{ShowConfidence: true}},
		{Key: "scores", Label: "Scores", Order: 0, Type: TypeMultiCriteria, Config: MultiCriteriaConfig{Criteria: []Criterion{
			{Key: "quality", Label: "Quality", Min: 1, Max: 5},
			{Key: "safety", Label: "Safety", Min: 1, Max: 5},
		}}},
		{Key: "tags", Label: "Tags", Order: 2, Type: TypeMultiLabel, Config: MultiLabelConfig{Options: []Option{
			{Value: "funny", Label: "Funny"}, {Value: "rude", Label: "Rude"},
		}}},
	}}
	ratings := []*Rating{{
		ID: "a", DataRowID: "r1", RaterID: "u1", RaterUsername: "rater1",
		Response: json.RawMessage(`{"scores":{"criteria":{"quality":4}},"cmp":{"winner":"a","confidence":"high"},"tags":{"selected":["rude","funny"]}}`),
	}, {
		ID: "b", DataRowID: "r2", RaterID: "u1", RaterUsername: "rater1",
		Response: json.RawMessage(`{"cmp":{"winner":"tie","confidence":"none"}}`),
	}}
	recs := renderCSV(t, BuildExportTable(sess, schema, rows, ratings))

	want := []string{
		"Row #", "prompt", "answer",
		"Scores: Quality (rater1)", "Scores: Safety (rater1)",
		"Compare Winner (rater1)", "Compare Confidence (rater1)",
		"Tags (rater1)", "Comment (rater1)", "# of Ratings",
	}
	if got := strings.Join(recs[0], "|"); got != strings.Join(want, "|") {
		t.Fatalf("header = %q\nwant     %q", recs[0], want)
	}
	if got := recs[1]; got[3] != "4" || got[4] != "" || got[5] != "A" || got[6] != "high" || got[7] != "Rude, Funny" {
		t.Fatalf("row 1 = %q", got)
	}
	if got := recs[2]; got[3] != "" || got[5] != "TIE" || got[6] != "" || got[9] != "1" {
		t.Fatalf("row 2 = %q", got)
	}
}

func TestExportRatersSortedAndEmptySession(t *testing.T) {
	sess, rows := testSession()
	schema := LegacySchema{Type: TypeText, Config: TextConfig{}}
	ratings := []*Rating{
		{ID: "1", DataRowID: "r2", RaterID: "z", RaterUsername: "zed", Response: json.RawMessage(`{"text":"late"}`)},
		{ID: "2", DataRowID: "r1", RaterID: "a", RaterUsername: "amy", Response: json.RawMessage(`{"text":"early"}`)},
	}
	table := BuildExportTable(sess, schema, rows, ratings)
	want := "Row #|prompt|answer|Response (amy)|Comment (amy)|Response (zed)|Comment (zed)|# of Ratings"
	if got := strings.Join(table.Columns, "|"); got != want {
		t.Fatalf("columns = %s, want %s", got, want)
	}

	empty := BuildExportTable(&Session{Columns: []string{"x"}}, schema, nil, nil)
	recs := renderCSV(t, empty)
	if len(recs) != 1 || strings.Join(recs[0], "|") != "Row #|x|# of Ratings" {
		t.Fatalf("empty export = %q", recs)
	}
}

func TestWriteXLSX(t *testing.T) {
	sess, rows := testSession()
	schema := LegacySchema{Type: TypeRating, Config: RatingConfig{Min: 1, Max: 5}}
	ratings := []*Rating{{ID: "a", DataRowID: "r1", RaterID: "u1", RaterUsername: "alice", RatingValue: intPtr(4), RatedAt: time.Now()}}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, BuildExportTable(sess, schema, rows, ratings)); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	got, err := f.GetRows("Ratings", excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("sheet has %d rows, want 3", len(got))
	}
	if got[0][0] != ColumnRowNumber || got[1][3] != "4" {
		t.Fatalf("sheet rows = %q", got)
	}
	if avg := got[1][5]; avg != "4" {
		t.Fatalf("avg cell = %q, want numeric 4", avg)
	}
}

func TestParseExportFormat(t *testing.T) {
	for in, want := range map[string]ExportFormat{"": FormatXLSX, "xlsx": FormatXLSX, "csv": FormatCSV} {
		got, err := ParseExportFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseExportFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	_, err := ParseExportFormat("pdf")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
		t.Fatalf("ParseExportFormat(pdf) err = %v, want invalid", err)
	}
}
