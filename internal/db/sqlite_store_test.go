package db

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/soaringjerry/hitlrate/internal/services"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "data", "hitl.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	ctx := context.Background()
	if err := RunMigrations(ctx, conn, ""); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	// A second run must be a no-op.
	if err := RunMigrations(ctx, conn, ""); err != nil {
		t.Fatalf("RunMigrations again: %v", err)
	}
	st, err := NewSQLiteStore(conn, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return st
}

type fixture struct {
	owner, rater *services.User
	project      *services.Project
	session      *services.Session
	rows         []*services.DataRow
}

func seed(t *testing.T, st *SQLiteStore) fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := fixture{
		owner: &services.User{ID: "u-owner", Username: "owner", PasswordHash: "x", Role: services.RoleRequester, CreatedAt: now},
		rater: &services.User{ID: "u-rater", Username: "rater1", PasswordHash: "x", Role: services.RoleRater, CreatedAt: now},
	}
	for _, u := range []*services.User{f.owner, f.rater} {
		if err := st.InsertUser(ctx, u); err != nil {
			t.Fatalf("InsertUser(%s): %v", u.Username, err)
		}
	}
	f.project = &services.Project{
		ID: "p1", OwnerID: f.owner.ID, Name: "Eval", EvaluationType: services.TypeRating,
		EvaluationConfig: json.RawMessage(`{"min":1,"max":5}`), CreatedAt: now, UpdatedAt: now,
	}
	if err := st.InsertProject(ctx, f.project); err != nil {
		t.Fatalf("InsertProject: %v", err)
	}
	f.session = &services.Session{ID: "s1", ProjectID: "p1", Name: "batch", Filename: "batch.csv", Columns: []string{"prompt"}, CreatedAt: now}
	for i := 1; i <= 3; i++ {
		f.rows = append(f.rows, &services.DataRow{
			ID: "r" + string(rune('0'+i)), SessionID: "s1", RowIndex: i,
			Content: map[string]any{"prompt": "q" + string(rune('0'+i))},
		})
	}
	if err := st.CreateSession(ctx, f.session, f.rows); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return f
}

func TestSQLiteUsersAndMissingRecords(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	f := seed(t, st)

	u, err := st.GetUserByUsername(ctx, "rater1")
	if err != nil || u == nil || u.ID != f.rater.ID || u.Role != services.RoleRater {
		t.Fatalf("GetUserByUsername = %+v, %v", u, err)
	}
	if err := st.InsertUser(ctx, &services.User{ID: "other", Username: "rater1", PasswordHash: "x", Role: services.RoleRater}); err == nil {
		t.Fatal("expected conflict for duplicate username")
	} else {
		var se *services.ServiceError
		if !errors.As(err, &se) || se.Code != services.ErrorConflict {
			t.Fatalf("duplicate username error = %v, want conflict", err)
		}
	}
	if p, err := st.GetProject(ctx, "missing"); p != nil || err != nil {
		t.Fatalf("GetProject(missing) = %v, %v; want nil, nil", p, err)
	}
	if r, err := st.GetRating(ctx, "r1", f.rater.ID); r != nil || err != nil {
		t.Fatalf("GetRating(unrated) = %v, %v; want nil, nil", r, err)
	}
}

func TestSQLiteUpsertRatingKeepsID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	f := seed(t, st)

	v := 3
	first, err := st.UpsertRating(ctx, &services.Rating{
		ID: "rt-1", DataRowID: "r1", SessionID: "s1", RaterID: f.rater.ID,
		RatingValue: &v, Comment: "ok", RatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("UpsertRating: %v", err)
	}
	if first.ID != "rt-1" || first.RaterUsername != "rater1" || *first.RatingValue != 3 {
		t.Fatalf("first = %+v", first)
	}

	second, err := st.UpsertRating(ctx, &services.Rating{
		ID: "rt-2", DataRowID: "r1", SessionID: "s1", RaterID: f.rater.ID,
		Response: json.RawMessage(`{"q":"yes"}`), RatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("UpsertRating again: %v", err)
	}
	if second.ID != "rt-1" {
		t.Fatalf("id = %q, want the original rt-1", second.ID)
	}
	if second.RatingValue != nil || second.Comment != "" || string(second.Response) != `{"q":"yes"}` {
		t.Fatalf("second = %+v", second)
	}
	all, err := st.ListSessionRatings(ctx, "s1")
	if err != nil || len(all) != 1 {
		t.Fatalf("ListSessionRatings = %d records, %v; want 1", len(all), err)
	}
}

func TestSQLiteListRowsFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	f := seed(t, st)

	if _, err := st.UpsertRating(ctx, &services.Rating{ID: "rt", DataRowID: "r2", SessionID: "s1", RaterID: f.rater.ID, RatedAt: time.Now()}); err != nil {
		t.Fatalf("UpsertRating: %v", err)
	}

	cases := []struct {
		filter services.RowFilter
		rater  string
		want   []int
	}{
		{services.FilterAll, f.rater.ID, []int{1, 2, 3}},
		{services.FilterRated, f.rater.ID, []int{2}},
		{services.FilterUnrated, f.rater.ID, []int{1, 3}},
		{services.FilterRated, f.owner.ID, nil},
	}
	for _, tc := range cases {
		rows, total, err := st.ListRows(ctx, services.RowQuery{SessionID: "s1", RaterID: tc.rater, Filter: tc.filter})
		if err != nil {
			t.Fatalf("ListRows(%s): %v", tc.filter, err)
		}
		if total != len(tc.want) || len(rows) != len(tc.want) {
			t.Fatalf("ListRows(%s, %s): total = %d, len = %d, want %d", tc.filter, tc.rater, total, len(rows), len(tc.want))
		}
		for i, r := range rows {
			if r.RowIndex != tc.want[i] {
				t.Fatalf("ListRows(%s)[%d].RowIndex = %d, want %d", tc.filter, i, r.RowIndex, tc.want[i])
			}
		}
	}

	page, total, err := st.ListRows(ctx, services.RowQuery{SessionID: "s1", Filter: services.FilterAll, Limit: 1, Offset: 1})
	if err != nil || total != 3 || len(page) != 1 || page[0].RowIndex != 2 {
		t.Fatalf("paged ListRows = %v, total %d, %v", page, total, err)
	}
	if got := page[0].Content["prompt"]; got != "q2" {
		t.Fatalf("content prompt = %v, want q2", got)
	}

	if n, err := st.CountRatedRows(ctx, "s1", ""); err != nil || n != 1 {
		t.Fatalf("CountRatedRows(any) = %d, %v; want 1", n, err)
	}
}

func TestSQLiteQuestionsToggleMultiMode(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st)

	q := &services.Question{
		ID: "q1", ProjectID: "p1", Key: "quality", Label: "Quality", Type: services.TypeRating,
		Config: services.RatingConfig{Min: 1, Max: 5}, Required: true, CreatedAt: time.Now(),
	}
	if err := st.InsertQuestion(ctx, q); err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}
	dup := *q
	dup.ID = "q2"
	if err := st.InsertQuestion(ctx, &dup); !errors.Is(err, services.ErrDuplicateKey) {
		t.Fatalf("duplicate key error = %v, want ErrDuplicateKey", err)
	}
	p, _ := st.GetProject(ctx, "p1")
	if !p.UseMultiQuestions {
		t.Fatal("project should be in multi-question mode after insert")
	}

	follow := &services.Question{
		ID: "q3", ProjectID: "p1", Order: 1, Key: "why", Label: "Why", Type: services.TypeText,
		Config:      services.TextConfig{Multiline: true},
		Conditional: &services.ConditionalRule{Question: "quality", Equals: "1"},
		CreatedAt:   time.Now(),
	}
	if err := st.InsertQuestion(ctx, follow); err != nil {
		t.Fatalf("InsertQuestion(follow): %v", err)
	}
	got, err := st.GetQuestion(ctx, "q3")
	if err != nil || got.Conditional == nil || got.Conditional.Question != "quality" {
		t.Fatalf("GetQuestion = %+v, %v", got, err)
	}
	if cfg, ok := got.Config.(services.TextConfig); !ok || !cfg.Multiline {
		t.Fatalf("config = %#v, want multiline TextConfig", got.Config)
	}

	if n, err := st.ReorderQuestions(ctx, "p1", []string{"q3", "q1", "nope"}); err != nil || n != 2 {
		t.Fatalf("ReorderQuestions = %d, %v; want 2", n, err)
	}
	qs, _ := st.ListQuestions(ctx, "p1")
	if len(qs) != 2 || qs[0].ID != "q3" {
		t.Fatalf("order after reorder = %v", qs)
	}

	for _, id := range []string{"q1", "q3"} {
		if _, err := st.DeleteQuestion(ctx, "p1", id); err != nil {
			t.Fatalf("DeleteQuestion(%s): %v", id, err)
		}
	}
	p, _ = st.GetProject(ctx, "p1")
	if p.UseMultiQuestions {
		t.Fatal("project should leave multi-question mode once no questions remain")
	}
}

func TestSQLiteDeleteProjectCascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	f := seed(t, st)

	if _, err := st.AddAssignment(ctx, "p1", f.rater.ID, time.Now()); err != nil {
		t.Fatalf("AddAssignment: %v", err)
	}
	if added, _ := st.AddAssignment(ctx, "p1", f.rater.ID, time.Now()); added {
		t.Fatal("second AddAssignment should report no change")
	}
	if _, err := st.UpsertRating(ctx, &services.Rating{ID: "rt", DataRowID: "r1", SessionID: "s1", RaterID: f.rater.ID, RatedAt: time.Now()}); err != nil {
		t.Fatalf("UpsertRating: %v", err)
	}
	stats, err := st.ProjectStats(ctx, "p1")
	if err != nil || stats.SessionCount != 1 || stats.TotalRows != 3 || stats.RatedRows != 1 {
		t.Fatalf("ProjectStats = %+v, %v", stats, err)
	}

	ok, err := st.DeleteProject(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("DeleteProject = %v, %v", ok, err)
	}
	if sess, _ := st.GetSession(ctx, "s1"); sess != nil {
		t.Fatal("session survived project delete")
	}
	if row, _ := st.GetDataRow(ctx, "r1"); row != nil {
		t.Fatal("row survived project delete")
	}
	if assigned, _ := st.IsAssigned(ctx, "p1", f.rater.ID); assigned {
		t.Fatal("assignment survived project delete")
	}
	if rs, _ := st.ListRatingsForRows(ctx, []string{"r1"}); len(rs) != 0 {
		t.Fatalf("ratings survived project delete: %v", rs)
	}
}
