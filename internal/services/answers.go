package services

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"unicode/utf8"
)

// Answer is one response to one question. Which fields are set depends on
// the question type: Value for rating and binary, Selected for multi_label,
// Criteria for multi_criteria, Winner/Confidence for pairwise, Text for text.
type Answer struct {
	Value      any            `json:"value,omitempty"`
	Selected   []string       `json:"selected,omitempty"`
	Criteria   map[string]int `json:"criteria,omitempty"`
	Winner     string         `json:"winner,omitempty"`
	Confidence string         `json:"confidence,omitempty"`
	Text       *string        `json:"text,omitempty"`
}

// ResponseSet maps question keys to answers in multi-question mode.
type ResponseSet map[string]Answer

// DecodeResponseSet parses a stored multi-question response.
func DecodeResponseSet(raw json.RawMessage) (ResponseSet, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ResponseSet{}, nil
	}
	var rs ResponseSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, invalidf("response: %v", err)
	}
	if rs == nil {
		rs = ResponseSet{}
	}
	return rs, nil
}

// DecodeAnswer parses a stored single-answer response. A missing response
// yields nil.
func DecodeAnswer(raw json.RawMessage) (*Answer, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var a Answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, invalidf("response: %v", err)
	}
	return &a, nil
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func intValue(v any) (int, bool) {
	f, ok := numberValue(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// valuesEqual is strict: numbers compare numerically, strings and bools by
// value, and values of different kinds never match.
func valuesEqual(a, b any) bool {
	if af, ok := numberValue(a); ok {
		bf, ok := numberValue(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// ValidateAnswer checks an answer against its question's typed config.
func ValidateAnswer(key string, cfg QuestionConfig, a Answer) error {
	switch c := cfg.(type) {
	case RatingConfig:
		v, ok := intValue(a.Value)
		if !ok {
			return invalidf("%s: rating value must be an integer", key)
		}
		if v < c.Min || v > c.Max {
			return invalidf("%s: rating value %d outside [%d, %d]", key, v, c.Min, c.Max)
		}
	case BinaryConfig:
		v, ok := a.Value.(string)
		if !ok {
			return invalidf("%s: binary value must be a string", key)
		}
		if !hasOption(c.Options, v) {
			return invalidf("%s: unknown option %q", key, v)
		}
	case MultiLabelConfig:
		seen := make(map[string]struct{}, len(a.Selected))
		for _, s := range a.Selected {
			if !hasOption(c.Options, s) {
				return invalidf("%s: unknown option %q", key, s)
			}
			if _, dup := seen[s]; dup {
				return invalidf("%s: option %q selected twice", key, s)
			}
			seen[s] = struct{}{}
		}
		if len(a.Selected) < c.MinSelect {
			return invalidf("%s: select at least %d option(s)", key, c.MinSelect)
		}
		if c.MaxSelect != nil && len(a.Selected) > *c.MaxSelect {
			return invalidf("%s: select at most %d option(s)", key, *c.MaxSelect)
		}
	case MultiCriteriaConfig:
		byKey := make(map[string]Criterion, len(c.Criteria))
		for _, cr := range c.Criteria {
			byKey[cr.Key] = cr
		}
		keys := make([]string, 0, len(a.Criteria))
		for k := range a.Criteria {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cr, ok := byKey[k]
			if !ok {
				return invalidf("%s: unknown criterion %q", key, k)
			}
			if v := a.Criteria[k]; v < cr.Min || v > cr.Max {
				return invalidf("%s: criterion %q value %d outside [%d, %d]", key, k, v, cr.Min, cr.Max)
			}
		}
	case PairwiseConfig:
		switch a.Winner {
		case "a", "b":
		case "tie":
			if !c.AllowTie {
				return invalidf("%s: ties are not allowed", key)
			}
		default:
			return invalidf("%s: winner must be one of a, b, tie", key)
		}
	case TextConfig:
		if a.Text == nil {
			return invalidf("%s: text required", key)
		}
		if c.MaxLength > 0 && utf8.RuneCountInString(*a.Text) > c.MaxLength {
			return invalidf("%s: text longer than %d characters", key, c.MaxLength)
		}
	default:
		return invalidf("%s: unsupported question config", key)
	}
	return nil
}

func hasOption(opts []Option, v string) bool {
	for _, o := range opts {
		if o.Value == v {
			return true
		}
	}
	return false
}

// answered reports whether an answer carries anything for its type.
func answered(a Answer) bool {
	return a.Value != nil || len(a.Selected) > 0 || len(a.Criteria) > 0 || a.Winner != "" || a.Text != nil
}

// ValidateResponseSet validates a multi-question response against the
// schema. Keys outside the schema are rejected, and visible required
// questions must be answered.
func ValidateResponseSet(schema MultiQuestionSchema, rs ResponseSet) error {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q := schema.Lookup(k)
		if q == nil {
			return invalidf("response: unknown question key %q", k)
		}
		if !answered(rs[k]) {
			continue
		}
		if err := ValidateAnswer(k, q.Config, rs[k]); err != nil {
			return err
		}
	}
	for _, q := range schema.Questions {
		if !q.Required || !IsVisible(q, rs) {
			continue
		}
		if a, ok := rs[q.Key]; !ok || !answered(a) {
			return invalidf("response: question %q is required", q.Key)
		}
	}
	return nil
}
