package services

import (
	"encoding/json"
	"testing"
)

func TestValidateAnswer(t *testing.T) {
	maxTwo := 2
	labels := MultiLabelConfig{Options: []Option{{Value: "a"}, {Value: "b"}, {Value: "c"}}, MinSelect: 1, MaxSelect: &maxTwo}
	criteria := MultiCriteriaConfig{Criteria: []Criterion{{Key: "quality", Label: "Quality", Min: 1, Max: 5}}}

	cases := []struct {
		name string
		cfg  QuestionConfig
		a    Answer
		ok   bool
	}{
		{"rating in range", RatingConfig{Min: 1, Max: 5}, Answer{Value: float64(3)}, true},
		{"rating out of range", RatingConfig{Min: 1, Max: 5}, Answer{Value: float64(6)}, false},
		{"rating fractional", RatingConfig{Min: 1, Max: 5}, Answer{Value: 2.5}, false},
		{"rating string", RatingConfig{Min: 1, Max: 5}, Answer{Value: "3"}, false},
		{"binary known", DefaultConfig(TypeBinary), Answer{Value: "yes"}, true},
		{"binary unknown", DefaultConfig(TypeBinary), Answer{Value: "maybe"}, false},
		{"labels ok", labels, Answer{Selected: []string{"a", "c"}}, true},
		{"labels too many", labels, Answer{Selected: []string{"a", "b", "c"}}, false},
		{"labels too few", labels, Answer{Selected: []string{}}, false},
		{"labels duplicate", labels, Answer{Selected: []string{"a", "a"}}, false},
		{"labels unknown", labels, Answer{Selected: []string{"z"}}, false},
		{"criteria partial", criteria, Answer{Criteria: map[string]int{"quality": 4}}, true},
		{"criteria unknown", criteria, Answer{Criteria: map[string]int{"speed": 4}}, false},
		{"criteria out of range", criteria, Answer{Criteria: map[string]int{"quality": 0}}, false},
		{"pairwise b", PairwiseConfig{}, Answer{Winner: "b"}, true},
		{"pairwise tie not allowed", PairwiseConfig{}, Answer{Winner: "tie"}, false},
		{"pairwise tie allowed", PairwiseConfig{AllowTie: true}, Answer{Winner: "tie"}, true},
		{"text too long", TextConfig{MaxLength: 3}, Answer{Text: strPtr("abcd")}, false},
		{"text multibyte fits", TextConfig{MaxLength: 3}, Answer{Text: strPtr("日本語")}, true},
	}
	for _, tc := range cases {
		err := ValidateAnswer("q", tc.cfg, tc.a)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err = %v, want ok=%v", tc.name, err, tc.ok)
		}
		if err != nil {
			if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
				t.Fatalf("%s: err = %v, want invalid", tc.name, err)
			}
		}
	}
}

func TestValidateResponseSet(t *testing.T) {
	schema := MultiQuestionSchema{Questions: []*Question{
		{Key: "ok", Type: TypeBinary, Config: DefaultConfig(TypeBinary), Required: true},
		{Key: "why", Type: TypeText, Config: TextConfig{}, Required: true,
			Conditional: &ConditionalRule{Question: "ok", Equals: "no"}},
	}}

	if err := ValidateResponseSet(schema, ResponseSet{"ok": {Value: "yes"}}); err != nil {
		t.Fatalf("hidden required question should not be required: %v", err)
	}
	if err := ValidateResponseSet(schema, ResponseSet{"ok": {Value: "no"}}); err == nil {
		t.Fatal("visible required question left blank was accepted")
	}
	if err := ValidateResponseSet(schema, ResponseSet{"ok": {Value: "no"}, "why": {Text: strPtr("off topic")}}); err != nil {
		t.Fatalf("complete response rejected: %v", err)
	}
	if err := ValidateResponseSet(schema, ResponseSet{"ok": {Value: "yes"}, "stray": {Value: "x"}}); err == nil {
		t.Fatal("unknown key accepted")
	}
	if err := ValidateResponseSet(schema, ResponseSet{}); err == nil {
		t.Fatal("missing required answer accepted")
	}
}

func TestDecodeResponseSet(t *testing.T) {
	rs, err := DecodeResponseSet(json.RawMessage(`null`))
	if err != nil || len(rs) != 0 {
		t.Fatalf("null = %v, %v", rs, err)
	}
	rs, err = DecodeResponseSet(json.RawMessage(`{"tags":{"selected":["a"]},"cmp":{"winner":"a","confidence":"low"}}`))
	if err != nil {
		t.Fatalf("DecodeResponseSet: %v", err)
	}
	if rs["cmp"].Winner != "a" || rs["cmp"].Confidence != "low" || rs["tags"].Selected[0] != "a" {
		t.Fatalf("decoded = %+v", rs)
	}
	if _, err := DecodeResponseSet(json.RawMessage(`[1,2]`)); err == nil {
		t.Fatal("array accepted as response set")
	}
}
