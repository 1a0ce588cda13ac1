package services

import (
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	ColumnRowNumber = "Row #"
	ColumnAvgRating = "Avg Rating"
	ColumnCount     = "# of Ratings"
)

// Average is a mean rounded to two decimals. It prints with at least one
// decimal, so 4 renders as "4.0" and 3.456 as "3.46".
type Average float64

func (a Average) String() string {
	s := strconv.FormatFloat(math.Round(float64(a)*100)/100, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// ExportTable is the flat projection of a session. Rows is single-pass: it
// formats each data row only when the consumer asks for it. Cells are
// strings, int64 values or Average.
type ExportTable struct {
	Columns []string
	Rows    iter.Seq[[]any]
}

type rater struct {
	id       string
	username string
}

// raterRoster lists every rater with at least one rating in the session,
// ordered by username then id.
func raterRoster(ratings []*Rating) []rater {
	seen := map[string]bool{}
	out := []rater{}
	for _, r := range ratings {
		if seen[r.RaterID] {
			continue
		}
		seen[r.RaterID] = true
		out = append(out, rater{id: r.RaterID, username: r.RaterUsername})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].username == out[j].username {
			return out[i].id < out[j].id
		}
		return out[i].username < out[j].username
	})
	return out
}

// answerFormatter emits the cells one question contributes for one rater.
// A nil answer yields empty cells.
type answerFormatter struct {
	headers func(rater string) []string
	cells   func(a *Answer, r *Rating) []any
}

func emptyCells(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = ""
	}
	return out
}

// formatterFor returns the column names and cell formatter for one question.
// prefix is the question label in multi-question mode and empty in legacy
// mode.
func formatterFor(prefix string, cfg QuestionConfig, legacy bool) answerFormatter {
	name := func(suffix, rater string) string {
		if prefix == "" {
			return fmt.Sprintf("%s (%s)", suffix, rater)
		}
		if suffix == "" {
			return fmt.Sprintf("%s (%s)", prefix, rater)
		}
		return fmt.Sprintf("%s %s (%s)", prefix, suffix, rater)
	}
	single := func(legacySuffix string, cell func(a *Answer, r *Rating) any) answerFormatter {
		suffix := ""
		if legacy {
			suffix = legacySuffix
		}
		return answerFormatter{
			headers: func(rater string) []string { return []string{name(suffix, rater)} },
			cells: func(a *Answer, r *Rating) []any {
				if r == nil {
					return emptyCells(1)
				}
				return []any{cell(a, r)}
			},
		}
	}

	switch c := cfg.(type) {
	case RatingConfig:
		return single("Rating", func(a *Answer, r *Rating) any {
			if legacy && r.RatingValue != nil {
				return int64(*r.RatingValue)
			}
			if a == nil {
				return ""
			}
			return exportScalar(a.Value)
		})
	case BinaryConfig:
		return single("Rating", func(a *Answer, _ *Rating) any {
			if a == nil {
				return ""
			}
			return exportScalar(a.Value)
		})
	case MultiLabelConfig:
		return single("Rating", func(a *Answer, _ *Rating) any {
			if a == nil {
				return ""
			}
			if len(a.Selected) == 0 {
				return exportScalar(a.Value)
			}
			labels := make([]string, 0, len(a.Selected))
			for _, v := range a.Selected {
				labels = append(labels, optionLabel(c.Options, v))
			}
			return strings.Join(labels, ", ")
		})
	case TextConfig:
		return single("Response", func(a *Answer, _ *Rating) any {
			if a == nil || a.Text == nil {
				return ""
			}
			return *a.Text
		})
	case MultiCriteriaConfig:
		return answerFormatter{
			headers: func(rater string) []string {
				out := make([]string, 0, len(c.Criteria))
				for _, cr := range c.Criteria {
					if prefix == "" {
						out = append(out, fmt.Sprintf("%s (%s)", cr.Label, rater))
					} else {
						out = append(out, fmt.Sprintf("%s: %s (%s)", prefix, cr.Label, rater))
					}
				}
				return out
			},
			cells: func(a *Answer, _ *Rating) []any {
				out := emptyCells(len(c.Criteria))
				if a == nil {
					return out
				}
				for i, cr := range c.Criteria {
					if v, ok := a.Criteria[cr.Key]; ok {
						out[i] = int64(v)
					}
				}
				return out
			},
		}
	case PairwiseConfig:
		return answerFormatter{
			headers: func(rater string) []string {
				return []string{name("Winner", rater), name("Confidence", rater)}
			},
			cells: func(a *Answer, _ *Rating) []any {
				if a == nil {
					return emptyCells(2)
				}
				confidence := a.Confidence
				if confidence == "none" {
					confidence = ""
				}
				return []any{strings.ToUpper(a.Winner), confidence}
			},
		}
	}
	return single("Response", func(a *Answer, _ *Rating) any {
		if a == nil {
			return ""
		}
		return exportScalar(a.Value)
	})
}

func optionLabel(opts []Option, value string) string {
	for _, o := range opts {
		if o.Value == value && o.Label != "" {
			return o.Label
		}
	}
	return value
}

// exportScalar renders a decoded JSON scalar. Integral numbers become int64.
func exportScalar(v any) any {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case bool:
		if n {
			return "true"
		}
		return "false"
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		return n.String()
	}
	if f, ok := numberValue(v); ok {
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	}
	return fmt.Sprint(v)
}

type exportColumn struct {
	key    string
	format answerFormatter
}

// BuildExportTable flattens a session's rows and ratings under the project's
// schema. Every rater in the roster gets a full column group on every row.
func BuildExportTable(sess *Session, schema ProjectSchema, rows []*DataRow, ratings []*Rating) *ExportTable {
	roster := raterRoster(ratings)

	var (
		columns []exportColumn
		legacy  bool
		avg     bool
	)
	switch sc := schema.(type) {
	case MultiQuestionSchema:
		qs := append([]*Question(nil), sc.Questions...)
		sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
		for _, q := range qs {
			columns = append(columns, exportColumn{key: q.Key, format: formatterFor(q.Label, q.Config, false)})
		}
	case LegacySchema:
		legacy = true
		avg = sc.Type == TypeRating
		columns = []exportColumn{{format: formatterFor("", sc.Config, true)}}
	}

	headers := []string{ColumnRowNumber}
	headers = append(headers, sess.Columns...)
	for _, r := range roster {
		for _, c := range columns {
			headers = append(headers, c.format.headers(r.username)...)
		}
		headers = append(headers, fmt.Sprintf("Comment (%s)", r.username))
	}
	if avg {
		headers = append(headers, ColumnAvgRating)
	}
	headers = append(headers, ColumnCount)

	byRow := map[string]map[string]*Rating{}
	counts := map[string]int{}
	for _, r := range ratings {
		if byRow[r.DataRowID] == nil {
			byRow[r.DataRowID] = map[string]*Rating{}
		}
		byRow[r.DataRowID][r.RaterID] = r
		counts[r.DataRowID]++
	}

	seq := func(yield func([]any) bool) {
		for _, row := range rows {
			out := make([]any, 0, len(headers))
			out = append(out, int64(row.RowIndex))
			for _, col := range sess.Columns {
				v, ok := row.Content[col]
				if !ok || v == nil {
					out = append(out, "")
					continue
				}
				out = append(out, exportScalar(v))
			}
			var (
				sum    float64
				valued int
			)
			for _, rr := range roster {
				rec := byRow[row.ID][rr.id]
				out = append(out, ratingCells(rec, columns, legacy)...)
				if rec != nil && rec.RatingValue != nil {
					sum += float64(*rec.RatingValue)
					valued++
				}
				if rec == nil {
					out = append(out, "")
				} else {
					out = append(out, rec.Comment)
				}
			}
			if avg {
				if valued == 0 {
					out = append(out, "")
				} else {
					out = append(out, Average(sum/float64(valued)))
				}
			}
			out = append(out, int64(counts[row.ID]))
			if !yield(out) {
				return
			}
		}
	}
	return &ExportTable{Columns: headers, Rows: seq}
}

// ratingCells formats one rater's record across every question column.
// Records that fail to decode export as empty cells.
func ratingCells(rec *Rating, columns []exportColumn, legacy bool) []any {
	var out []any
	if legacy {
		var a *Answer
		if rec != nil {
			a, _ = DecodeAnswer(rec.Response)
		}
		return append(out, columns[0].format.cells(a, rec)...)
	}
	var rs ResponseSet
	if rec != nil {
		rs, _ = DecodeResponseSet(rec.Response)
	}
	for _, c := range columns {
		var a *Answer
		if ans, ok := rs[c.key]; ok {
			a = &ans
		}
		if a == nil {
			out = append(out, emptyCells(len(c.format.headers("")))...)
			continue
		}
		out = append(out, c.format.cells(a, rec)...)
	}
	return out
}
