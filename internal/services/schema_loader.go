package services

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// SchemaStore is the read side needed to assemble a ProjectSchema.
type SchemaStore interface {
	GetProject(ctx context.Context, id string) (*Project, error)
	ListQuestions(ctx context.Context, projectID string) ([]*Question, error)
}

// SchemaLoader resolves project schemas through an in-process TTL cache.
// Every write to a project's questions or evaluation settings must call
// Invalidate.
type SchemaLoader struct {
	store SchemaStore
	cache *cache.Cache

	mu          sync.Mutex
	generations map[string]uint64
}

func NewSchemaLoader(store SchemaStore, ttl time.Duration) *SchemaLoader {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SchemaLoader{store: store, cache: cache.New(ttl, 2*ttl), generations: map[string]uint64{}}
}

func (l *SchemaLoader) generation(projectID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generations[projectID]
}

// Load returns the project and its schema. A missing project yields NotFound.
// A schema built while an Invalidate ran for the same project is returned but
// not cached.
func (l *SchemaLoader) Load(ctx context.Context, projectID string) (*Project, ProjectSchema, error) {
	gen := l.generation(projectID)
	p, err := l.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, NewNotFoundError("project not found: " + projectID)
	}
	if cached, ok := l.cache.Get(projectID); ok {
		return p, cached.(ProjectSchema), nil
	}
	questions, err := l.store.ListQuestions(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	schema, err := BuildSchema(p, questions)
	if err != nil {
		return nil, nil, err
	}
	l.mu.Lock()
	if l.generations[projectID] == gen {
		l.cache.SetDefault(projectID, schema)
	}
	l.mu.Unlock()
	return p, schema, nil
}

func (l *SchemaLoader) Invalidate(projectID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.generations[projectID]++
	l.cache.Delete(projectID)
	l.mu.Unlock()
}
