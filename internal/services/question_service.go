package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type QuestionStore interface {
	AccessStore
	ListQuestions(ctx context.Context, projectID string) ([]*Question, error)
	GetQuestion(ctx context.Context, id string) (*Question, error)
	// InsertQuestion also switches the project into multi-question mode in the
	// same transaction. A taken key yields ErrDuplicateKey.
	InsertQuestion(ctx context.Context, q *Question) error
	UpdateQuestion(ctx context.Context, q *Question) error
	// DeleteQuestion returns how many questions remain. When none remain the
	// project leaves multi-question mode in the same transaction.
	DeleteQuestion(ctx context.Context, projectID, id string) (int, error)
	// ReorderQuestions sets order = index for every listed id that belongs to
	// the project, all or nothing, and returns how many were updated.
	ReorderQuestions(ctx context.Context, projectID string, ids []string) (int, error)
}

// QuestionInput carries create and partial-update fields. For Conditional a
// nil value means unchanged and a JSON null clears the rule.
type QuestionInput struct {
	Key         *string         `json:"key"`
	Label       *string         `json:"label"`
	Description *string         `json:"description"`
	Type        *QuestionType   `json:"question_type"`
	Config      json.RawMessage `json:"config"`
	Required    *bool           `json:"required"`
	Conditional json.RawMessage `json:"conditional"`
	Order       *int            `json:"order"`
}

type QuestionService struct {
	store       QuestionStore
	schemas     *SchemaLoader
	now         func() time.Time
	idGenerator func() string
}

func NewQuestionService(store QuestionStore, schemas *SchemaLoader) *QuestionService {
	return &QuestionService{
		store:       store,
		schemas:     schemas,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: newID,
	}
}

func (s *QuestionService) List(ctx context.Context, who Principal, projectID string) ([]*Question, error) {
	if _, err := projectForRead(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	return s.store.ListQuestions(ctx, projectID)
}

func (s *QuestionService) Get(ctx context.Context, who Principal, projectID, id string) (*Question, error) {
	if _, err := projectForRead(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	return s.loadQuestion(ctx, projectID, id)
}

func (s *QuestionService) loadQuestion(ctx context.Context, projectID, id string) (*Question, error) {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil || q.ProjectID != projectID {
		return nil, NewNotFoundError("question not found: " + id)
	}
	return q, nil
}

func (s *QuestionService) Create(ctx context.Context, who Principal, projectID string, in QuestionInput) (*Question, error) {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	existing, err := s.store.ListQuestions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	q, err := s.createOne(ctx, projectID, existing, in)
	if err != nil {
		return nil, err
	}
	s.schemas.Invalidate(projectID)
	return q, nil
}

// BulkCreate creates each question independently, in order, so later items
// may depend on keys created earlier in the same request.
func (s *QuestionService) BulkCreate(ctx context.Context, who Principal, projectID string, inputs []QuestionInput) (*BulkResult[*Question], error) {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, NewInvalidError("questions required")
	}
	existing, err := s.store.ListQuestions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	res := &BulkResult[*Question]{Created: []*Question{}, Errors: []BulkItemError{}}
	for i, in := range inputs {
		q, err := s.createOne(ctx, projectID, existing, in)
		if err != nil {
			ref := ""
			if in.Key != nil {
				ref = *in.Key
			}
			res.Errors = append(res.Errors, bulkItemError(i, ref, err))
			continue
		}
		existing = append(existing, q)
		res.Created = append(res.Created, q)
	}
	if len(res.Created) > 0 {
		s.schemas.Invalidate(projectID)
	}
	return res.finish(len(inputs), fmt.Sprintf("all %d questions failed", len(inputs)))
}

func (s *QuestionService) createOne(ctx context.Context, projectID string, existing []*Question, in QuestionInput) (*Question, error) {
	if in.Key == nil || in.Label == nil || in.Type == nil {
		return nil, NewInvalidError("key, label and question_type are required")
	}
	q := &Question{
		ID:        s.idGenerator(),
		ProjectID: projectID,
		Key:       *in.Key,
		Label:     strings.TrimSpace(*in.Label),
		Type:      *in.Type,
		Required:  true,
		Order:     len(existing),
		CreatedAt: s.now(),
	}
	if in.Description != nil {
		q.Description = *in.Description
	}
	if in.Required != nil {
		q.Required = *in.Required
	}
	if in.Order != nil {
		q.Order = *in.Order
	}
	if err := checkQuestionFields(q); err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.Key == q.Key {
			return nil, NewConflictError(fmt.Sprintf("question key %q already exists", q.Key))
		}
	}
	cfg, err := ValidateConfig(q.Type, in.Config)
	if err != nil {
		return nil, err
	}
	q.Config = cfg
	if q.Conditional, err = decodeConditional(in.Conditional); err != nil {
		return nil, err
	}
	if err := checkConditionals(append(append([]*Question{}, existing...), q)); err != nil {
		return nil, err
	}
	if err := s.store.InsertQuestion(ctx, q); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, NewConflictError(fmt.Sprintf("question key %q already exists", q.Key))
		}
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

func checkQuestionFields(q *Question) error {
	if !ValidKey(q.Key) {
		return invalidf("question key %q must match ^[a-z][a-z0-9_]*$", q.Key)
	}
	if q.Label == "" {
		return NewInvalidError("label required")
	}
	if !q.Type.Valid() {
		return invalidf("unknown question type %q", q.Type)
	}
	if q.Order < 0 {
		return NewInvalidError("order must be >= 0")
	}
	return nil
}

func decodeConditional(raw json.RawMessage) (*ConditionalRule, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var rule ConditionalRule
	if err := json.Unmarshal(trimmed, &rule); err != nil {
		return nil, invalidf("conditional: %v", err)
	}
	if err := rule.validate(); err != nil {
		return nil, err
	}
	return &rule, nil
}

// checkConditionals verifies that every rule points at another question of
// the same set and that the rules never form a cycle.
func checkConditionals(questions []*Question) error {
	deps := make(map[string]string, len(questions))
	keys := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		keys[q.Key] = struct{}{}
	}
	for _, q := range questions {
		if q.Conditional == nil {
			continue
		}
		ref := q.Conditional.Question
		if ref == q.Key {
			return invalidf("conditional: question %q cannot depend on itself", q.Key)
		}
		if _, ok := keys[ref]; !ok {
			return invalidf("conditional: question %q references unknown question %q", q.Key, ref)
		}
		deps[q.Key] = ref
	}
	// Each question has at most one dependency, so following the chain from
	// every start either ends or revisits a key.
	starts := make([]string, 0, len(deps))
	for k := range deps {
		starts = append(starts, k)
	}
	sort.Strings(starts)
	for _, start := range starts {
		seen := map[string]struct{}{start: {}}
		for cur, ok := deps[start]; ok; cur, ok = deps[cur] {
			if _, loop := seen[cur]; loop {
				return invalidf("conditional: dependencies of question %q form a cycle", start)
			}
			seen[cur] = struct{}{}
		}
	}
	return nil
}

func dependents(questions []*Question, key string) []string {
	var out []string
	for _, q := range questions {
		if q.Conditional != nil && q.Conditional.Question == key && q.Key != key {
			out = append(out, q.Key)
		}
	}
	return out
}

func (s *QuestionService) Update(ctx context.Context, who Principal, projectID, id string, in QuestionInput) (*Question, error) {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	current, err := s.loadQuestion(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListQuestions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	q := *current
	if in.Key != nil && *in.Key != current.Key {
		if deps := dependents(all, current.Key); len(deps) > 0 {
			return nil, NewConflictError(fmt.Sprintf("question key %q is referenced by %s", current.Key, strings.Join(deps, ", ")))
		}
		for _, e := range all {
			if e.ID != q.ID && e.Key == *in.Key {
				return nil, NewConflictError(fmt.Sprintf("question key %q already exists", *in.Key))
			}
		}
		q.Key = *in.Key
	}
	if in.Label != nil {
		q.Label = strings.TrimSpace(*in.Label)
	}
	if in.Description != nil {
		q.Description = *in.Description
	}
	if in.Required != nil {
		q.Required = *in.Required
	}
	if in.Order != nil {
		q.Order = *in.Order
	}
	typeChanged := in.Type != nil && *in.Type != current.Type
	if in.Type != nil {
		q.Type = *in.Type
	}
	if err := checkQuestionFields(&q); err != nil {
		return nil, err
	}
	if typeChanged || in.Config != nil {
		cfg, err := ValidateConfig(q.Type, in.Config)
		if err != nil {
			return nil, err
		}
		q.Config = cfg
	}
	if in.Conditional != nil {
		if q.Conditional, err = decodeConditional(in.Conditional); err != nil {
			return nil, err
		}
	}
	replaced := make([]*Question, 0, len(all))
	for _, e := range all {
		if e.ID == q.ID {
			replaced = append(replaced, &q)
			continue
		}
		replaced = append(replaced, e)
	}
	if err := checkConditionals(replaced); err != nil {
		return nil, err
	}
	if err := s.store.UpdateQuestion(ctx, &q); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, NewConflictError(fmt.Sprintf("question key %q already exists", q.Key))
		}
		return nil, fmt.Errorf("update question: %w", err)
	}
	s.schemas.Invalidate(projectID)
	return &q, nil
}

// Delete removes a question. Questions other rules depend on cannot be
// deleted.
func (s *QuestionService) Delete(ctx context.Context, who Principal, projectID, id string) error {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return err
	}
	q, err := s.loadQuestion(ctx, projectID, id)
	if err != nil {
		return err
	}
	all, err := s.store.ListQuestions(ctx, projectID)
	if err != nil {
		return err
	}
	if deps := dependents(all, q.Key); len(deps) > 0 {
		return NewConflictError(fmt.Sprintf("question %q is referenced by %s", q.Key, strings.Join(deps, ", ")))
	}
	if _, err := s.store.DeleteQuestion(ctx, projectID, id); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	s.schemas.Invalidate(projectID)
	return nil
}

// Reorder assigns order = index to the listed ids. Ids that are not part of
// the project are ignored.
func (s *QuestionService) Reorder(ctx context.Context, who Principal, projectID string, ids []string) ([]*Question, error) {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, NewInvalidError("question_ids required")
	}
	if _, err := s.store.ReorderQuestions(ctx, projectID, ids); err != nil {
		return nil, fmt.Errorf("reorder questions: %w", err)
	}
	s.schemas.Invalidate(projectID)
	return s.store.ListQuestions(ctx, projectID)
}
