package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ExampleStore interface {
	AccessStore
	ListExamples(ctx context.Context, projectID string) ([]*AnnotationExample, error)
	GetExample(ctx context.Context, id string) (*AnnotationExample, error)
	InsertExample(ctx context.Context, e *AnnotationExample) error
	UpdateExample(ctx context.Context, e *AnnotationExample) error
	DeleteExample(ctx context.Context, id string) (bool, error)
	ReorderExamples(ctx context.Context, projectID string, ids []string) (int, error)
}

// ExampleInput carries create and partial-update fields. Nil means unchanged.
type ExampleInput struct {
	Title           *string         `json:"title"`
	Content         map[string]any  `json:"content"`
	ExampleResponse json.RawMessage `json:"example_response"`
	Explanation     *string         `json:"explanation"`
	IsPositive      *bool           `json:"is_positive"`
	Order           *int            `json:"order"`
}

// ExampleService manages the worked examples shown to raters alongside a
// project's instructions.
type ExampleService struct {
	store       ExampleStore
	now         func() time.Time
	idGenerator func() string
}

func NewExampleService(store ExampleStore) *ExampleService {
	return &ExampleService{
		store:       store,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: newID,
	}
}

func (s *ExampleService) List(ctx context.Context, who Principal, projectID string) ([]*AnnotationExample, error) {
	if _, err := projectForRead(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	return s.store.ListExamples(ctx, projectID)
}

func (s *ExampleService) Create(ctx context.Context, who Principal, projectID string, in ExampleInput) (*AnnotationExample, error) {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	existing, err := s.store.ListExamples(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.createOne(ctx, projectID, len(existing), in)
}

func (s *ExampleService) createOne(ctx context.Context, projectID string, defaultOrder int, in ExampleInput) (*AnnotationExample, error) {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return nil, NewInvalidError("title required")
	}
	e := &AnnotationExample{
		ID:         s.idGenerator(),
		ProjectID:  projectID,
		IsPositive: true,
		Order:      defaultOrder,
		CreatedAt:  s.now(),
	}
	applyExampleInput(e, in)
	if e.Content == nil {
		e.Content = map[string]any{}
	}
	if err := s.store.InsertExample(ctx, e); err != nil {
		return nil, fmt.Errorf("insert example: %w", err)
	}
	return e, nil
}

func applyExampleInput(e *AnnotationExample, in ExampleInput) {
	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		e.Content = in.Content
	}
	if in.ExampleResponse != nil {
		e.ExampleResponse = in.ExampleResponse
	}
	if in.Explanation != nil {
		e.Explanation = *in.Explanation
	}
	if in.IsPositive != nil {
		e.IsPositive = *in.IsPositive
	}
	if in.Order != nil {
		e.Order = *in.Order
	}
}

// BulkCreate inserts each example independently and reports per-item
// failures.
func (s *ExampleService) BulkCreate(ctx context.Context, who Principal, projectID string, inputs []ExampleInput) (*BulkResult[*AnnotationExample], error) {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, NewInvalidError("examples required")
	}
	existing, err := s.store.ListExamples(ctx, projectID)
	if err != nil {
		return nil, err
	}
	res := &BulkResult[*AnnotationExample]{Created: []*AnnotationExample{}, Errors: []BulkItemError{}}
	for i, in := range inputs {
		ref := ""
		if in.Title != nil {
			ref = *in.Title
		}
		e, err := s.createOne(ctx, projectID, len(existing)+len(res.Created), in)
		if err != nil {
			res.Errors = append(res.Errors, bulkItemError(i, ref, err))
			continue
		}
		res.Created = append(res.Created, e)
	}
	return res.finish(len(inputs), fmt.Sprintf("all %d examples failed", len(inputs)))
}

func (s *ExampleService) exampleForWrite(ctx context.Context, who Principal, id string) (*AnnotationExample, error) {
	e, err := s.store.GetExample(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, NewNotFoundError("example not found: " + id)
	}
	if _, err := projectForWrite(ctx, s.store, who, e.ProjectID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *ExampleService) Update(ctx context.Context, who Principal, id string, in ExampleInput) (*AnnotationExample, error) {
	e, err := s.exampleForWrite(ctx, who, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, NewInvalidError("title must not be empty")
	}
	applyExampleInput(e, in)
	if err := s.store.UpdateExample(ctx, e); err != nil {
		return nil, fmt.Errorf("update example: %w", err)
	}
	return e, nil
}

func (s *ExampleService) Delete(ctx context.Context, who Principal, id string) error {
	if _, err := s.exampleForWrite(ctx, who, id); err != nil {
		return err
	}
	if _, err := s.store.DeleteExample(ctx, id); err != nil {
		return fmt.Errorf("delete example: %w", err)
	}
	return nil
}

func (s *ExampleService) Reorder(ctx context.Context, who Principal, projectID string, ids []string) ([]*AnnotationExample, error) {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, NewInvalidError("example_ids required")
	}
	if _, err := s.store.ReorderExamples(ctx, projectID, ids); err != nil {
		return nil, fmt.Errorf("reorder examples: %w", err)
	}
	return s.store.ListExamples(ctx, projectID)
}
