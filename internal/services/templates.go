package services

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Template is a named, reusable set of questions.
type Template struct {
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description" json:"description"`
	Questions   []TemplateQuestion `yaml:"questions" json:"questions"`
}

type TemplateQuestion struct {
	Key         string               `yaml:"key" json:"key"`
	Label       string               `yaml:"label" json:"label"`
	Description string               `yaml:"description,omitempty" json:"description,omitempty"`
	Type        QuestionType         `yaml:"question_type" json:"question_type"`
	Required    bool                 `yaml:"required" json:"required"`
	Config      map[string]any       `yaml:"config,omitempty" json:"config,omitempty"`
	Conditional *TemplateConditional `yaml:"conditional,omitempty" json:"conditional,omitempty"`
}

type TemplateConditional struct {
	Question  string `yaml:"question" json:"question"`
	Equals    any    `yaml:"equals,omitempty" json:"equals,omitempty"`
	NotEquals any    `yaml:"not_equals,omitempty" json:"not_equals,omitempty"`
	Contains  any    `yaml:"contains,omitempty" json:"contains,omitempty"`
}

// LoadTemplates parses every embedded template, sorted by name.
func LoadTemplates() ([]Template, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	out := make([]Template, 0, len(entries))
	for _, e := range entries {
		b, err := templateFS.ReadFile(path.Join("templates", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", e.Name(), err)
		}
		var t Template
		if err := yaml.Unmarshal(b, &t); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", e.Name(), err)
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t Template) inputs() ([]QuestionInput, error) {
	out := make([]QuestionInput, 0, len(t.Questions))
	for _, tq := range t.Questions {
		tq := tq
		in := QuestionInput{
			Key:      &tq.Key,
			Label:    &tq.Label,
			Type:     &tq.Type,
			Required: &tq.Required,
		}
		if tq.Description != "" {
			in.Description = &tq.Description
		}
		if len(tq.Config) > 0 {
			b, err := json.Marshal(tq.Config)
			if err != nil {
				return nil, fmt.Errorf("template %s/%s config: %w", t.Name, tq.Key, err)
			}
			in.Config = b
		}
		if tq.Conditional != nil {
			b, err := json.Marshal(tq.Conditional)
			if err != nil {
				return nil, fmt.Errorf("template %s/%s conditional: %w", t.Name, tq.Key, err)
			}
			in.Conditional = b
		}
		out = append(out, in)
	}
	return out, nil
}

func (s *QuestionService) Templates() ([]Template, error) {
	return LoadTemplates()
}

// ApplyTemplate bulk-creates a template's questions on the project.
func (s *QuestionService) ApplyTemplate(ctx context.Context, who Principal, projectID, name string) (*BulkResult[*Question], error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	for _, t := range templates {
		if t.Name != name {
			continue
		}
		inputs, err := t.inputs()
		if err != nil {
			return nil, err
		}
		return s.BulkCreate(ctx, who, projectID, inputs)
	}
	return nil, NewNotFoundError("template not found: " + name)
}
