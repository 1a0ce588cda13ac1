package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type QuestionType string

const (
	TypeRating        QuestionType = "rating"
	TypeBinary        QuestionType = "binary"
	TypeMultiLabel    QuestionType = "multi_label"
	TypeMultiCriteria QuestionType = "multi_criteria"
	TypePairwise      QuestionType = "pairwise"
	TypeText          QuestionType = "text"
)

var QuestionTypes = []QuestionType{TypeRating, TypeBinary, TypeMultiLabel, TypeMultiCriteria, TypePairwise, TypeText}

func (t QuestionType) Valid() bool {
	for _, v := range QuestionTypes {
		if v == t {
			return true
		}
	}
	return false
}

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidKey reports whether key is usable as a question or criterion key.
func ValidKey(key string) bool { return keyPattern.MatchString(key) }

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type Criterion struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// QuestionConfig is the closed set of per-type configurations. Only the types
// in this file implement it.
type QuestionConfig interface {
	Type() QuestionType
	validate() error
}

type RatingConfig struct {
	Min    int               `json:"min"`
	Max    int               `json:"max"`
	Labels map[string]string `json:"labels,omitempty"`
}

type BinaryConfig struct {
	Options []Option `json:"options"`
}

type MultiLabelConfig struct {
	Options   []Option `json:"options"`
	MinSelect int      `json:"min_select"`
	MaxSelect *int     `json:"max_select,omitempty"`
}

type MultiCriteriaConfig struct {
	Criteria []Criterion `json:"criteria"`
}

type PairwiseConfig struct {
	ShowConfidence bool `json:"show_confidence"`
	AllowTie       bool `json:"allow_tie"`
}

// UnmarshalJSON treats absent flags as enabled.
func (c *PairwiseConfig) UnmarshalJSON(b []byte) error {
	var raw struct {
		ShowConfidence *bool `json:"show_confidence"`
		AllowTie       *bool `json:"allow_tie"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.ShowConfidence = raw.ShowConfidence == nil || *raw.ShowConfidence
	c.AllowTie = raw.AllowTie == nil || *raw.AllowTie
	return nil
}

type TextConfig struct {
	Placeholder string `json:"placeholder,omitempty"`
	MaxLength   int    `json:"max_length,omitempty"`
	Multiline   bool   `json:"multiline"`
}

func (RatingConfig) Type() QuestionType        { return TypeRating }
func (BinaryConfig) Type() QuestionType        { return TypeBinary }
func (MultiLabelConfig) Type() QuestionType    { return TypeMultiLabel }
func (MultiCriteriaConfig) Type() QuestionType { return TypeMultiCriteria }
func (PairwiseConfig) Type() QuestionType      { return TypePairwise }
func (TextConfig) Type() QuestionType          { return TypeText }

func (c RatingConfig) validate() error {
	if c.Min > c.Max {
		return invalidf("rating config: min (%d) must not exceed max (%d)", c.Min, c.Max)
	}
	return nil
}

func (c BinaryConfig) validate() error {
	if len(c.Options) == 0 {
		return NewInvalidError("binary config: options must not be empty")
	}
	return validateOptions("binary", c.Options)
}

func (c MultiLabelConfig) validate() error {
	if len(c.Options) == 0 {
		return NewInvalidError("multi_label config: options must not be empty")
	}
	if err := validateOptions("multi_label", c.Options); err != nil {
		return err
	}
	if c.MinSelect < 0 {
		return NewInvalidError("multi_label config: min_select must be >= 0")
	}
	if c.MaxSelect != nil {
		if *c.MaxSelect < c.MinSelect {
			return invalidf("multi_label config: max_select (%d) must be >= min_select (%d)", *c.MaxSelect, c.MinSelect)
		}
		if *c.MaxSelect > len(c.Options) {
			return invalidf("multi_label config: max_select (%d) exceeds option count (%d)", *c.MaxSelect, len(c.Options))
		}
	}
	if c.MinSelect > len(c.Options) {
		return invalidf("multi_label config: min_select (%d) exceeds option count (%d)", c.MinSelect, len(c.Options))
	}
	return nil
}

func (c MultiCriteriaConfig) validate() error {
	if len(c.Criteria) == 0 {
		return NewInvalidError("multi_criteria config: criteria must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Criteria))
	for _, cr := range c.Criteria {
		if strings.TrimSpace(cr.Key) == "" {
			return NewInvalidError("multi_criteria config: criterion key required")
		}
		if _, dup := seen[cr.Key]; dup {
			return invalidf("multi_criteria config: duplicate criterion key %q", cr.Key)
		}
		seen[cr.Key] = struct{}{}
		if strings.TrimSpace(cr.Label) == "" {
			return invalidf("multi_criteria config: criterion %q needs a label", cr.Key)
		}
		if cr.Min > cr.Max {
			return invalidf("multi_criteria config: criterion %q min (%d) must not exceed max (%d)", cr.Key, cr.Min, cr.Max)
		}
	}
	return nil
}

func (PairwiseConfig) validate() error { return nil }

func (c TextConfig) validate() error {
	if c.MaxLength < 0 {
		return NewInvalidError("text config: max_length must be >= 0")
	}
	return nil
}

func validateOptions(kind string, opts []Option) error {
	seen := make(map[string]struct{}, len(opts))
	for _, o := range opts {
		if strings.TrimSpace(o.Value) == "" {
			return invalidf("%s config: option value required", kind)
		}
		if _, dup := seen[o.Value]; dup {
			return invalidf("%s config: duplicate option value %q", kind, o.Value)
		}
		seen[o.Value] = struct{}{}
	}
	return nil
}

// DefaultConfig returns the canonical configuration used when none is supplied.
func DefaultConfig(t QuestionType) QuestionConfig {
	switch t {
	case TypeRating:
		return RatingConfig{Min: 1, Max: 5, Labels: map[string]string{"1": "Poor", "5": "Excellent"}}
	case TypeBinary:
		return BinaryConfig{Options: []Option{{Value: "yes", Label: "Yes"}, {Value: "no", Label: "No"}}}
	case TypeMultiLabel:
		return MultiLabelConfig{Options: []Option{{Value: "option1", Label: "Option 1"}}}
	case TypeMultiCriteria:
		return MultiCriteriaConfig{Criteria: []Criterion{{Key: "quality", Label: "Quality", Min: 1, Max: 5}}}
	case TypePairwise:
		return PairwiseConfig{ShowConfidence: true, AllowTie: true}
	case TypeText:
		return TextConfig{Multiline: true}
	}
	return nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}

// DecodeConfig turns a stored config blob into its typed form without
// validating it. A missing or empty blob yields the type's default.
func DecodeConfig(t QuestionType, raw json.RawMessage) (QuestionConfig, error) {
	if !t.Valid() {
		return nil, invalidf("unknown question type %q", t)
	}
	if isEmptyJSON(raw) {
		return DefaultConfig(t), nil
	}
	var (
		cfg QuestionConfig
		err error
	)
	switch t {
	case TypeRating:
		var c RatingConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case TypeBinary:
		var c BinaryConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case TypeMultiLabel:
		var c MultiLabelConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case TypeMultiCriteria:
		var c MultiCriteriaConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case TypePairwise:
		var c PairwiseConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case TypeText:
		var c TextConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	}
	if err != nil {
		return nil, invalidf("%s config: %v", t, err)
	}
	return cfg, nil
}

// requireBounds rejects rating and multi_criteria configs that leave out min
// or max. Zero values cannot stand in for a missing bound.
func requireBounds(t QuestionType, raw json.RawMessage) error {
	type bounds struct {
		Key string `json:"key"`
		Min *int   `json:"min"`
		Max *int   `json:"max"`
	}
	missing := func(b bounds) string {
		switch {
		case b.Min == nil:
			return "min"
		case b.Max == nil:
			return "max"
		}
		return ""
	}
	switch t {
	case TypeRating:
		var b bounds
		if err := json.Unmarshal(raw, &b); err != nil {
			return invalidf("%s config: %v", t, err)
		}
		if f := missing(b); f != "" {
			return invalidf("rating config: %s required", f)
		}
	case TypeMultiCriteria:
		var c struct {
			Criteria []bounds `json:"criteria"`
		}
		if err := json.Unmarshal(raw, &c); err != nil {
			return invalidf("%s config: %v", t, err)
		}
		for _, cr := range c.Criteria {
			if f := missing(cr); f != "" {
				return invalidf("multi_criteria config: criterion %q %s required", cr.Key, f)
			}
		}
	}
	return nil
}

// ValidateConfig decodes and validates a config for the declared type.
func ValidateConfig(t QuestionType, raw json.RawMessage) (QuestionConfig, error) {
	cfg, err := DecodeConfig(t, raw)
	if err != nil {
		return nil, err
	}
	if !isEmptyJSON(raw) {
		if err := requireBounds(t, raw); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EncodeConfig is the inverse of DecodeConfig.
func EncodeConfig(cfg QuestionConfig) (json.RawMessage, error) {
	if cfg == nil {
		return nil, nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode %s config: %w", cfg.Type(), err)
	}
	return b, nil
}

// ConditionalRule gates a question on another question's answer. Exactly one
// of Equals, NotEquals or Contains is set.
type ConditionalRule struct {
	Question  string `json:"question"`
	Equals    any    `json:"equals,omitempty"`
	NotEquals any    `json:"not_equals,omitempty"`
	Contains  any    `json:"contains,omitempty"`
}

func (r *ConditionalRule) validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return NewInvalidError("conditional: question key required")
	}
	ops := 0
	for _, v := range []any{r.Equals, r.NotEquals, r.Contains} {
		if v != nil {
			ops++
		}
	}
	if ops != 1 {
		return NewInvalidError("conditional: exactly one of equals, not_equals, contains is required")
	}
	if r.Contains != nil {
		if _, ok := r.Contains.(string); !ok {
			return NewInvalidError("conditional: contains expects a string value")
		}
	}
	return nil
}

type Question struct {
	ID          string           `json:"id"`
	ProjectID   string           `json:"project_id"`
	Order       int              `json:"order"`
	Key         string           `json:"key"`
	Label       string           `json:"label"`
	Description string           `json:"description,omitempty"`
	Type        QuestionType     `json:"question_type"`
	Config      QuestionConfig   `json:"config"`
	Required    bool             `json:"required"`
	Conditional *ConditionalRule `json:"conditional,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ProjectSchema is the evaluation schema of a project, decided once at read
// time: either LegacySchema or MultiQuestionSchema.
type ProjectSchema interface {
	isProjectSchema()
}

type LegacySchema struct {
	Type   QuestionType
	Config QuestionConfig
}

type MultiQuestionSchema struct {
	Questions []*Question
}

func (LegacySchema) isProjectSchema()        {}
func (MultiQuestionSchema) isProjectSchema() {}

// Lookup returns the question with key, if any.
func (s MultiQuestionSchema) Lookup(key string) *Question {
	for _, q := range s.Questions {
		if q.Key == key {
			return q
		}
	}
	return nil
}

// BuildSchema decides the schema variant for a project and its questions.
func BuildSchema(p *Project, questions []*Question) (ProjectSchema, error) {
	if p.UseMultiQuestions && len(questions) > 0 {
		return MultiQuestionSchema{Questions: questions}, nil
	}
	t := p.EvaluationType
	if t == "" {
		t = TypeRating
	}
	cfg, err := DecodeConfig(t, p.EvaluationConfig)
	if err != nil {
		return nil, err
	}
	return LegacySchema{Type: t, Config: cfg}, nil
}
