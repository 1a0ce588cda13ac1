package services

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidKey(t *testing.T) {
	for _, k := range []string{"a", "quality", "q_2", "x9"} {
		if !ValidKey(k) {
			t.Fatalf("ValidKey(%q) = false, want true", k)
		}
	}
	for _, k := range []string{"", "Quality", "2q", "_x", "bad key", "a-b"} {
		if ValidKey(k) {
			t.Fatalf("ValidKey(%q) = true, want false", k)
		}
	}
}

func TestValidateConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		typ  QuestionType
		raw  string
	}{
		{"rating min above max", TypeRating, `{"min":5,"max":1}`},
		{"rating without bounds", TypeRating, `{"labels":{"1":"Poor","5":"Excellent"}}`},
		{"rating without max", TypeRating, `{"min":1}`},
		{"criterion without bounds", TypeMultiCriteria, `{"criteria":[{"key":"quality","label":"Quality"}]}`},
		{"criterion without min", TypeMultiCriteria, `{"criteria":[{"key":"quality","label":"Quality","max":5}]}`},
		{"binary without options", TypeBinary, `{"options":[]}`},
		{"multi_label max below min", TypeMultiLabel, `{"options":[{"value":"a","label":"A"}],"min_select":2,"max_select":1}`},
		{"multi_criteria without criteria", TypeMultiCriteria, `{"criteria":[]}`},
		{"unknown type", QuestionType("stars"), `{}`},
		{"malformed json", TypeRating, `{"min":`},
	}
	for _, tc := range cases {
		if _, err := ValidateConfig(tc.typ, json.RawMessage(tc.raw)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestValidateConfigDefaults(t *testing.T) {
	cfg, err := ValidateConfig(TypeRating, nil)
	if err != nil {
		t.Fatalf("ValidateConfig(rating, nil): %v", err)
	}
	rc, ok := cfg.(RatingConfig)
	if !ok || rc.Min != 1 || rc.Max != 5 {
		t.Fatalf("default rating config = %#v", cfg)
	}
	if _, err := ValidateConfig(TypePairwise, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("ValidateConfig(pairwise, {}): %v", err)
	}
}

func TestValidateConfigNamesMissingBound(t *testing.T) {
	_, err := ValidateConfig(TypeRating, json.RawMessage(`{"max":5}`))
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid || !strings.Contains(se.Message, "min") {
		t.Fatalf("err = %v, want invalid naming min", err)
	}
	cfg, err := ValidateConfig(TypeRating, json.RawMessage(`{"min":0,"max":10}`))
	if err != nil {
		t.Fatalf("explicit zero min rejected: %v", err)
	}
	if rc := cfg.(RatingConfig); rc.Min != 0 || rc.Max != 10 {
		t.Fatalf("config = %+v", rc)
	}
}

func TestPairwiseFlagsDefaultOn(t *testing.T) {
	cfg, err := ValidateConfig(TypePairwise, json.RawMessage(`{"show_confidence":true}`))
	if err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
	pc := cfg.(PairwiseConfig)
	if !pc.AllowTie || !pc.ShowConfidence {
		t.Fatalf("config = %+v, want both flags on", pc)
	}
	if err := ValidateAnswer("cmp", pc, Answer{Winner: "tie"}); err != nil {
		t.Fatalf("tie rejected: %v", err)
	}

	cfg, err = ValidateConfig(TypePairwise, json.RawMessage(`{"allow_tie":false}`))
	if err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
	if pc := cfg.(PairwiseConfig); pc.AllowTie || !pc.ShowConfidence {
		t.Fatalf("config = %+v, want tie off and confidence on", pc)
	}
}

func TestBuildSchema(t *testing.T) {
	p := &Project{ID: "p", EvaluationType: TypeBinary, EvaluationConfig: json.RawMessage(`{"options":[{"value":"yes","label":"Yes"}]}`)}
	sc, err := BuildSchema(p, nil)
	if err != nil {
		t.Fatalf("BuildSchema: %v", err)
	}
	legacy, ok := sc.(LegacySchema)
	if !ok || legacy.Type != TypeBinary {
		t.Fatalf("schema = %#v, want binary LegacySchema", sc)
	}

	// The flag alone is not enough; a multi-question schema needs questions.
	p.UseMultiQuestions = true
	if sc, _ := BuildSchema(p, nil); sc == nil {
		t.Fatal("nil schema")
	} else if _, ok := sc.(LegacySchema); !ok {
		t.Fatalf("schema without questions = %T, want LegacySchema", sc)
	}
	qs := []*Question{{Key: "q", Type: TypeText, Config: TextConfig{}}}
	sc, err = BuildSchema(p, qs)
	if err != nil {
		t.Fatalf("BuildSchema(multi): %v", err)
	}
	if m, ok := sc.(MultiQuestionSchema); !ok || m.Lookup("q") == nil || m.Lookup("nope") != nil {
		t.Fatalf("schema = %#v", sc)
	}
}

func TestCheckConditionals(t *testing.T) {
	q := func(key, dep string) *Question {
		out := &Question{Key: key, Type: TypeBinary}
		if dep != "" {
			out.Conditional = &ConditionalRule{Question: dep, Equals: "yes"}
		}
		return out
	}
	if err := checkConditionals([]*Question{q("a", ""), q("b", "a"), q("c", "b")}); err != nil {
		t.Fatalf("chain: %v", err)
	}
	if err := checkConditionals([]*Question{q("a", "a")}); err == nil {
		t.Fatal("self reference accepted")
	}
	if err := checkConditionals([]*Question{q("a", "missing")}); err == nil {
		t.Fatal("unknown reference accepted")
	}
	if err := checkConditionals([]*Question{q("a", "c"), q("b", "a"), q("c", "b")}); err == nil {
		t.Fatal("cycle accepted")
	}
}

func TestDecodeConditional(t *testing.T) {
	if r, err := decodeConditional(json.RawMessage(`null`)); r != nil || err != nil {
		t.Fatalf("null = %v, %v", r, err)
	}
	if _, err := decodeConditional(json.RawMessage(`{"question":"a","equals":"x","not_equals":"y"}`)); err == nil {
		t.Fatal("two operators accepted")
	}
	if _, err := decodeConditional(json.RawMessage(`{"question":"a","contains":3}`)); err == nil {
		t.Fatal("non-string contains accepted")
	}
	r, err := decodeConditional(json.RawMessage(`{"question":"a","not_equals":"no"}`))
	if err != nil || r.Question != "a" || r.NotEquals != "no" {
		t.Fatalf("decodeConditional = %+v, %v", r, err)
	}
}
