package services

import (
	"context"
	"sync"
	"testing"
	"time"
)

// blockingSchemaStore parks the first ListQuestions call until release is
// closed, after reading the question list.
type blockingSchemaStore struct {
	mu        sync.Mutex
	project   *Project
	questions []*Question
	entered   chan struct{}
	release   chan struct{}
	blocked   bool
}

func (s *blockingSchemaStore) GetProject(_ context.Context, id string) (*Project, error) {
	return s.project, nil
}

func (s *blockingSchemaStore) ListQuestions(_ context.Context, _ string) ([]*Question, error) {
	s.mu.Lock()
	out := append([]*Question(nil), s.questions...)
	block := !s.blocked
	s.blocked = true
	s.mu.Unlock()
	if block {
		close(s.entered)
		<-s.release
	}
	return out, nil
}

func (s *blockingSchemaStore) add(q *Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions = append(s.questions, q)
}

func TestSchemaLoaderDropsStaleBuild(t *testing.T) {
	store := &blockingSchemaStore{
		project:   &Project{ID: "p", UseMultiQuestions: true},
		questions: []*Question{{Key: "a", Type: TypeText, Config: TextConfig{}}},
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	loader := NewSchemaLoader(store, time.Minute)
	ctx := context.Background()

	done := make(chan ProjectSchema)
	go func() {
		_, sc, err := loader.Load(ctx, "p")
		if err != nil {
			t.Errorf("Load: %v", err)
		}
		done <- sc
	}()

	<-store.entered
	store.add(&Question{Key: "b", Type: TypeText, Config: TextConfig{}})
	loader.Invalidate("p")
	close(store.release)

	if stale := (<-done).(MultiQuestionSchema); len(stale.Questions) != 1 {
		t.Fatalf("in-flight load saw %d questions, want 1", len(stale.Questions))
	}
	_, sc, err := loader.Load(ctx, "p")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fresh := sc.(MultiQuestionSchema)
	if fresh.Lookup("b") == nil {
		t.Fatalf("schema after Invalidate has %d questions, want the new key b", len(fresh.Questions))
	}
	if err := ValidateResponseSet(fresh, ResponseSet{"b": {Text: strPtr("ok")}}); err != nil {
		t.Fatalf("answer for new key rejected: %v", err)
	}
}

func TestSchemaLoaderCachesUntilInvalidate(t *testing.T) {
	store := &blockingSchemaStore{
		project:   &Project{ID: "p", UseMultiQuestions: true},
		questions: []*Question{{Key: "a", Type: TypeText, Config: TextConfig{}}},
		blocked:   true,
	}
	loader := NewSchemaLoader(store, time.Minute)
	ctx := context.Background()
	if _, _, err := loader.Load(ctx, "p"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	store.add(&Question{Key: "b", Type: TypeText, Config: TextConfig{}})
	_, sc, _ := loader.Load(ctx, "p")
	if len(sc.(MultiQuestionSchema).Questions) != 1 {
		t.Fatal("cached schema was not served")
	}
	loader.Invalidate("p")
	_, sc, _ = loader.Load(ctx, "p")
	if len(sc.(MultiQuestionSchema).Questions) != 2 {
		t.Fatal("Invalidate did not drop the cached schema")
	}
}
