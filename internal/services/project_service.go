package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ProjectStore interface {
	AccessStore
	InsertProject(ctx context.Context, p *Project) error
	UpdateProject(ctx context.Context, p *Project) error
	// DeleteProject cascades to questions, sessions, rows, ratings, media
	// metadata, examples and assignments.
	DeleteProject(ctx context.Context, id string) (bool, error)
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]*Project, error)
	ListProjectsForRater(ctx context.Context, raterID string) ([]*Project, error)
	ListQuestions(ctx context.Context, projectID string) ([]*Question, error)
	GetUser(ctx context.Context, id string) (*User, error)
	AddAssignment(ctx context.Context, projectID, raterID string, at time.Time) (bool, error)
	RemoveAssignment(ctx context.Context, projectID, raterID string) (bool, error)
	ListAssignedRaters(ctx context.Context, projectID string) ([]UserBasic, error)
	ProjectStats(ctx context.Context, projectID string) (*ProjectStats, error)
}

// ProjectInput carries create and partial-update fields. Nil means unchanged.
type ProjectInput struct {
	Name              *string         `json:"name"`
	Description       *string         `json:"description"`
	Instructions      *string         `json:"instructions"`
	EvaluationType    *QuestionType   `json:"evaluation_type"`
	EvaluationConfig  json.RawMessage `json:"evaluation_config"`
	UseMultiQuestions *bool           `json:"use_multi_questions"`
}

type ProjectListItem struct {
	*Project
	ProjectStats
}

type ProjectDetail struct {
	*Project
	ProjectStats
	Questions      []*Question `json:"questions"`
	AssignedRaters []UserBasic `json:"assigned_raters"`
}

type ProjectService struct {
	store       ProjectStore
	storage     MediaStorage
	schemas     *SchemaLoader
	now         func() time.Time
	idGenerator func() string
}

func NewProjectService(store ProjectStore, storage MediaStorage, schemas *SchemaLoader) *ProjectService {
	return &ProjectService{
		store:       store,
		storage:     storage,
		schemas:     schemas,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: newID,
	}
}

func (s *ProjectService) Create(ctx context.Context, who Principal, in ProjectInput) (*Project, error) {
	if who.Role != RoleRequester {
		return nil, NewForbiddenError("requester role required")
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, NewInvalidError("name required")
	}
	now := s.now()
	p := &Project{
		ID:             s.idGenerator(),
		OwnerID:        who.UserID,
		Name:           strings.TrimSpace(*in.Name),
		EvaluationType: TypeRating,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := applyProjectInput(p, in, true); err != nil {
		return nil, err
	}
	if err := s.store.InsertProject(ctx, p); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

// applyProjectInput copies set fields onto p and re-validates the legacy
// evaluation settings whenever the type or config changes.
func applyProjectInput(p *Project, in ProjectInput, creating bool) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return NewInvalidError("name must not be empty")
		}
		p.Name = name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Instructions != nil {
		p.Instructions = *in.Instructions
	}
	if in.UseMultiQuestions != nil {
		p.UseMultiQuestions = *in.UseMultiQuestions
	}
	typeChanged := in.EvaluationType != nil && *in.EvaluationType != p.EvaluationType
	if in.EvaluationType != nil {
		p.EvaluationType = *in.EvaluationType
	}
	if !creating && !typeChanged && in.EvaluationConfig == nil {
		return nil
	}
	raw := in.EvaluationConfig
	if raw == nil && !typeChanged {
		raw = p.EvaluationConfig
	}
	cfg, err := ValidateConfig(p.EvaluationType, raw)
	if err != nil {
		return err
	}
	encoded, err := EncodeConfig(cfg)
	if err != nil {
		return err
	}
	p.EvaluationConfig = encoded
	return nil
}

func (s *ProjectService) List(ctx context.Context, who Principal) ([]*ProjectListItem, error) {
	var (
		projects []*Project
		err      error
	)
	switch who.Role {
	case RoleRequester:
		projects, err = s.store.ListProjectsByOwner(ctx, who.UserID)
	case RoleRater:
		projects, err = s.store.ListProjectsForRater(ctx, who.UserID)
	default:
		return nil, NewForbiddenError("unknown role")
	}
	if err != nil {
		return nil, err
	}
	out := make([]*ProjectListItem, 0, len(projects))
	for _, p := range projects {
		st, err := s.store.ProjectStats(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &ProjectListItem{Project: p, ProjectStats: *st})
	}
	return out, nil
}

func (s *ProjectService) Get(ctx context.Context, who Principal, id string) (*ProjectDetail, error) {
	p, err := projectForRead(ctx, s.store, who, id)
	if err != nil {
		return nil, err
	}
	questions, err := s.store.ListQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	raters, err := s.store.ListAssignedRaters(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := s.store.ProjectStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProjectDetail{Project: p, ProjectStats: *st, Questions: questions, AssignedRaters: raters}, nil
}

func (s *ProjectService) Update(ctx context.Context, who Principal, id string, in ProjectInput) (*Project, error) {
	p, err := projectForWrite(ctx, s.store, who, id)
	if err != nil {
		return nil, err
	}
	if err := applyProjectInput(p, in, false); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()
	if err := s.store.UpdateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	s.schemas.Invalidate(id)
	return p, nil
}

func (s *ProjectService) Delete(ctx context.Context, who Principal, id string) error {
	if _, err := projectForWrite(ctx, s.store, who, id); err != nil {
		return err
	}
	if _, err := s.store.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	s.schemas.Invalidate(id)
	if s.storage != nil {
		if err := s.storage.DeleteProject(id); err != nil {
			return fmt.Errorf("delete project media: %w", err)
		}
	}
	return nil
}

// AssignRaters assigns every listed rater, skipping those already assigned,
// and returns the ids that were newly assigned.
func (s *ProjectService) AssignRaters(ctx context.Context, who Principal, projectID string, raterIDs []string) ([]string, error) {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	if len(raterIDs) == 0 {
		return nil, NewInvalidError("rater_ids required")
	}
	for _, id := range raterIDs {
		u, err := s.store.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil || u.Role != RoleRater {
			return nil, invalidf("user %s is not a rater", id)
		}
	}
	added := []string{}
	now := s.now()
	for _, id := range raterIDs {
		ok, err := s.store.AddAssignment(ctx, projectID, id, now)
		if err != nil {
			return nil, fmt.Errorf("assign rater %s: %w", id, err)
		}
		if ok {
			added = append(added, id)
		}
	}
	return added, nil
}

func (s *ProjectService) RemoveRater(ctx context.Context, who Principal, projectID, raterID string) error {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return err
	}
	ok, err := s.store.RemoveAssignment(ctx, projectID, raterID)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("assignment not found: " + raterID)
	}
	return nil
}

func (s *ProjectService) Stats(ctx context.Context, who Principal, projectID string) (*ProjectStats, error) {
	if _, err := projectForRead(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	return s.store.ProjectStats(ctx, projectID)
}
