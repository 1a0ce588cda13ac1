package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soaringjerry/hitlrate/internal/services"
)

// memoryStore keeps everything in maps behind one lock. Every method runs
// under that lock, so multi-record writes are atomic. Records are copied on
// the way in and out.
type memoryStore struct {
	mu          sync.RWMutex
	users       map[string]*services.User
	usernames   map[string]string
	projects    map[string]*services.Project
	assignments map[string]map[string]time.Time
	questions   map[string]*services.Question
	sessions    map[string]*services.Session
	rows        map[string]*services.DataRow
	sessionRows map[string][]string
	ratings     map[string]*services.Rating
	ratingKeys  map[string]string
	media       map[string]*services.MediaFile
	examples    map[string]*services.AnnotationExample
}

func NewMemoryStore() Store { return newMemoryStore() }

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:       map[string]*services.User{},
		usernames:   map[string]string{},
		projects:    map[string]*services.Project{},
		assignments: map[string]map[string]time.Time{},
		questions:   map[string]*services.Question{},
		sessions:    map[string]*services.Session{},
		rows:        map[string]*services.DataRow{},
		sessionRows: map[string][]string{},
		ratings:     map[string]*services.Rating{},
		ratingKeys:  map[string]string{},
		media:       map[string]*services.MediaFile{},
		examples:    map[string]*services.AnnotationExample{},
	}
}

func ratingKey(rowID, raterID string) string { return rowID + "|" + raterID }

func copyUser(u *services.User) *services.User {
	c := *u
	return &c
}

func copyProject(p *services.Project) *services.Project {
	c := *p
	c.EvaluationConfig = append([]byte(nil), p.EvaluationConfig...)
	return &c
}

func copyQuestion(q *services.Question) *services.Question {
	c := *q
	if q.Conditional != nil {
		rule := *q.Conditional
		c.Conditional = &rule
	}
	return &c
}

func copySession(s *services.Session) *services.Session {
	c := *s
	c.Columns = append([]string(nil), s.Columns...)
	return &c
}

func copyRow(r *services.DataRow) *services.DataRow {
	c := *r
	c.Content = make(map[string]any, len(r.Content))
	for k, v := range r.Content {
		c.Content[k] = v
	}
	return &c
}

func copyRating(r *services.Rating) *services.Rating {
	c := *r
	if r.RatingValue != nil {
		v := *r.RatingValue
		c.RatingValue = &v
	}
	if r.TimeSpentMS != nil {
		v := *r.TimeSpentMS
		c.TimeSpentMS = &v
	}
	c.Response = append([]byte(nil), r.Response...)
	return &c
}

func copyMedia(m *services.MediaFile) *services.MediaFile {
	c := *m
	return &c
}

func copyExample(e *services.AnnotationExample) *services.AnnotationExample {
	c := *e
	c.Content = make(map[string]any, len(e.Content))
	for k, v := range e.Content {
		c.Content[k] = v
	}
	c.ExampleResponse = append([]byte(nil), e.ExampleResponse...)
	return &c
}

// Users

func (s *memoryStore) GetUser(_ context.Context, id string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

func (s *memoryStore) GetUserByUsername(_ context.Context, username string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.usernames[username]; ok {
		return copyUser(s.users[id]), nil
	}
	return nil, nil
}

func (s *memoryStore) InsertUser(_ context.Context, u *services.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usernames[u.Username]; ok {
		return services.NewConflictError("username already registered")
	}
	s.users[u.ID] = copyUser(u)
	s.usernames[u.Username] = u.ID
	return nil
}

func (s *memoryStore) ListUsersByRole(_ context.Context, role services.Role) ([]*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.User{}
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Projects and assignments

func (s *memoryStore) GetProject(_ context.Context, id string) (*services.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.projects[id]; ok {
		return copyProject(p), nil
	}
	return nil, nil
}

func (s *memoryStore) IsAssigned(_ context.Context, projectID, raterID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.assignments[projectID][raterID]
	return ok, nil
}

func (s *memoryStore) InsertProject(_ context.Context, p *services.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = copyProject(p)
	return nil
}

func (s *memoryStore) UpdateProject(_ context.Context, p *services.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return services.NewNotFoundError("project not found: " + p.ID)
	}
	s.projects[p.ID] = copyProject(p)
	return nil
}

func (s *memoryStore) DeleteProject(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return false, nil
	}
	for qid, q := range s.questions {
		if q.ProjectID == id {
			delete(s.questions, qid)
		}
	}
	for sid, sess := range s.sessions {
		if sess.ProjectID == id {
			s.deleteSessionLocked(sid)
		}
	}
	for mid, m := range s.media {
		if m.ProjectID == id {
			delete(s.media, mid)
		}
	}
	for eid, e := range s.examples {
		if e.ProjectID == id {
			delete(s.examples, eid)
		}
	}
	delete(s.assignments, id)
	delete(s.projects, id)
	return true, nil
}

func sortProjects(ps []*services.Project) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].CreatedAt.After(ps[j].CreatedAt) })
}

func (s *memoryStore) ListProjectsByOwner(_ context.Context, ownerID string) ([]*services.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Project{}
	for _, p := range s.projects {
		if p.OwnerID == ownerID {
			out = append(out, copyProject(p))
		}
	}
	sortProjects(out)
	return out, nil
}

func (s *memoryStore) ListProjectsForRater(_ context.Context, raterID string) ([]*services.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Project{}
	for pid, raters := range s.assignments {
		if _, ok := raters[raterID]; ok {
			if p, ok := s.projects[pid]; ok {
				out = append(out, copyProject(p))
			}
		}
	}
	sortProjects(out)
	return out, nil
}

func (s *memoryStore) AddAssignment(_ context.Context, projectID, raterID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignments[projectID] == nil {
		s.assignments[projectID] = map[string]time.Time{}
	}
	if _, ok := s.assignments[projectID][raterID]; ok {
		return false, nil
	}
	s.assignments[projectID][raterID] = at
	return true, nil
}

func (s *memoryStore) RemoveAssignment(_ context.Context, projectID, raterID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[projectID][raterID]; !ok {
		return false, nil
	}
	delete(s.assignments[projectID], raterID)
	return true, nil
}

func (s *memoryStore) ListAssignedRaters(_ context.Context, projectID string) ([]services.UserBasic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []services.UserBasic{}
	for id := range s.assignments[projectID] {
		if u, ok := s.users[id]; ok {
			out = append(out, services.UserBasic{ID: u.ID, Username: u.Username})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *memoryStore) ProjectStats(_ context.Context, projectID string) (*services.ProjectStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rated := map[string]bool{}
	for _, r := range s.ratings {
		rated[r.DataRowID] = true
	}
	st := &services.ProjectStats{}
	for sid, sess := range s.sessions {
		if sess.ProjectID != projectID {
			continue
		}
		st.SessionCount++
		for _, rid := range s.sessionRows[sid] {
			st.TotalRows++
			if rated[rid] {
				st.RatedRows++
			}
		}
	}
	return st, nil
}

// Questions

func (s *memoryStore) listQuestionsLocked(projectID string) []*services.Question {
	out := []*services.Question{}
	for _, q := range s.questions {
		if q.ProjectID == projectID {
			out = append(out, copyQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *memoryStore) ListQuestions(_ context.Context, projectID string) ([]*services.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listQuestionsLocked(projectID), nil
}

func (s *memoryStore) GetQuestion(_ context.Context, id string) (*services.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.questions[id]; ok {
		return copyQuestion(q), nil
	}
	return nil, nil
}

func (s *memoryStore) keyTakenLocked(projectID, key, exceptID string) bool {
	for _, q := range s.questions {
		if q.ProjectID == projectID && q.Key == key && q.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *memoryStore) InsertQuestion(_ context.Context, q *services.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyTakenLocked(q.ProjectID, q.Key, "") {
		return services.ErrDuplicateKey
	}
	s.questions[q.ID] = copyQuestion(q)
	if p, ok := s.projects[q.ProjectID]; ok {
		p.UseMultiQuestions = true
	}
	return nil
}

func (s *memoryStore) UpdateQuestion(_ context.Context, q *services.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; !ok {
		return services.NewNotFoundError("question not found: " + q.ID)
	}
	if s.keyTakenLocked(q.ProjectID, q.Key, q.ID) {
		return services.ErrDuplicateKey
	}
	s.questions[q.ID] = copyQuestion(q)
	return nil
}

func (s *memoryStore) DeleteQuestion(_ context.Context, projectID, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.questions, id)
	remaining := len(s.listQuestionsLocked(projectID))
	if remaining == 0 {
		if p, ok := s.projects[projectID]; ok {
			p.UseMultiQuestions = false
		}
	}
	return remaining, nil
}

func (s *memoryStore) ReorderQuestions(_ context.Context, projectID string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i, id := range ids {
		if q, ok := s.questions[id]; ok && q.ProjectID == projectID {
			q.Order = i
			n++
		}
	}
	return n, nil
}

// Sessions and rows

func (s *memoryStore) CreateSession(_ context.Context, sess *services.Session, rows []*services.DataRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = copySession(sess)
	ids := make([]string, 0, len(rows))
	sorted := append([]*services.DataRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RowIndex < sorted[j].RowIndex })
	for _, r := range sorted {
		s.rows[r.ID] = copyRow(r)
		ids = append(ids, r.ID)
	}
	s.sessionRows[sess.ID] = ids
	return nil
}

func (s *memoryStore) GetSession(_ context.Context, id string) (*services.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[id]; ok {
		return copySession(sess), nil
	}
	return nil, nil
}

func (s *memoryStore) ListSessions(_ context.Context, projectID string) ([]*services.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Session{}
	for _, sess := range s.sessions {
		if sess.ProjectID == projectID {
			out = append(out, copySession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) deleteSessionLocked(id string) {
	for _, rid := range s.sessionRows[id] {
		delete(s.rows, rid)
	}
	for key, ratingID := range s.ratingKeys {
		if r := s.ratings[ratingID]; r != nil && r.SessionID == id {
			delete(s.ratings, ratingID)
			delete(s.ratingKeys, key)
		}
	}
	delete(s.sessionRows, id)
	delete(s.sessions, id)
}

func (s *memoryStore) DeleteSession(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	s.deleteSessionLocked(id)
	return true, nil
}

func (s *memoryStore) CountRows(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessionRows[sessionID]), nil
}

func (s *memoryStore) ratedByLocked(rowID, raterID string) bool {
	if raterID != "" {
		_, ok := s.ratingKeys[ratingKey(rowID, raterID)]
		return ok
	}
	for _, r := range s.ratings {
		if r.DataRowID == rowID {
			return true
		}
	}
	return false
}

func (s *memoryStore) CountRatedRows(_ context.Context, sessionID, raterID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rid := range s.sessionRows[sessionID] {
		if s.ratedByLocked(rid, raterID) {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) GetDataRow(_ context.Context, id string) (*services.DataRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rows[id]; ok {
		return copyRow(r), nil
	}
	return nil, nil
}

func (s *memoryStore) ListRows(_ context.Context, q services.RowQuery) ([]*services.DataRow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := []string{}
	for _, rid := range s.sessionRows[q.SessionID] {
		switch q.Filter {
		case services.FilterRated:
			if !s.ratedByLocked(rid, q.RaterID) {
				continue
			}
		case services.FilterUnrated:
			if s.ratedByLocked(rid, q.RaterID) {
				continue
			}
		}
		matched = append(matched, rid)
	}
	total := len(matched)
	out := []*services.DataRow{}
	for i := q.Offset; i < total && (q.Limit <= 0 || i < q.Offset+q.Limit); i++ {
		out = append(out, copyRow(s.rows[matched[i]]))
	}
	return out, total, nil
}

func (s *memoryStore) ListSessionRows(_ context.Context, sessionID string) ([]*services.DataRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.DataRow, 0, len(s.sessionRows[sessionID]))
	for _, rid := range s.sessionRows[sessionID] {
		out = append(out, copyRow(s.rows[rid]))
	}
	return out, nil
}

// Ratings

func (s *memoryStore) withUsernameLocked(r *services.Rating) *services.Rating {
	c := copyRating(r)
	if u, ok := s.users[r.RaterID]; ok {
		c.RaterUsername = u.Username
	}
	return c
}

func (s *memoryStore) GetRating(_ context.Context, rowID, raterID string) (*services.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.ratingKeys[ratingKey(rowID, raterID)]; ok {
		return s.withUsernameLocked(s.ratings[id]), nil
	}
	return nil, nil
}

func (s *memoryStore) UpsertRating(_ context.Context, r *services.Rating) (*services.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ratingKey(r.DataRowID, r.RaterID)
	rec := copyRating(r)
	if id, ok := s.ratingKeys[key]; ok {
		rec.ID = id
	}
	s.ratings[rec.ID] = rec
	s.ratingKeys[key] = rec.ID
	return s.withUsernameLocked(rec), nil
}

func (s *memoryStore) DeleteRating(_ context.Context, rowID, raterID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ratingKey(rowID, raterID)
	id, ok := s.ratingKeys[key]
	if !ok {
		return false, nil
	}
	delete(s.ratings, id)
	delete(s.ratingKeys, key)
	return true, nil
}

func sortRatings(rs []*services.Rating) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].RatedAt.Equal(rs[j].RatedAt) {
			return rs[i].RatedAt.Before(rs[j].RatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func (s *memoryStore) ListRatingsForRows(_ context.Context, rowIDs []string) ([]*services.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(rowIDs))
	for _, id := range rowIDs {
		want[id] = true
	}
	out := []*services.Rating{}
	for _, r := range s.ratings {
		if want[r.DataRowID] {
			out = append(out, s.withUsernameLocked(r))
		}
	}
	sortRatings(out)
	return out, nil
}

func (s *memoryStore) ListSessionRatings(_ context.Context, sessionID string) ([]*services.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Rating{}
	for _, r := range s.ratings {
		if r.SessionID == sessionID {
			out = append(out, s.withUsernameLocked(r))
		}
	}
	sortRatings(out)
	return out, nil
}

// Media

func (s *memoryStore) InsertMedia(_ context.Context, m *services.MediaFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media[m.ID] = copyMedia(m)
	return nil
}

func (s *memoryStore) GetMedia(_ context.Context, id string) (*services.MediaFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.media[id]; ok {
		return copyMedia(m), nil
	}
	return nil, nil
}

func (s *memoryStore) ListMedia(_ context.Context, projectID string) ([]*services.MediaFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.MediaFile{}
	for _, m := range s.media {
		if m.ProjectID == projectID {
			out = append(out, copyMedia(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) DeleteMedia(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[id]; !ok {
		return false, nil
	}
	delete(s.media, id)
	return true, nil
}

// Examples

func (s *memoryStore) ListExamples(_ context.Context, projectID string) ([]*services.AnnotationExample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.AnnotationExample{}
	for _, e := range s.examples {
		if e.ProjectID == projectID {
			out = append(out, copyExample(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) GetExample(_ context.Context, id string) (*services.AnnotationExample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.examples[id]; ok {
		return copyExample(e), nil
	}
	return nil, nil
}

func (s *memoryStore) InsertExample(_ context.Context, e *services.AnnotationExample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.examples[e.ID] = copyExample(e)
	return nil
}

func (s *memoryStore) UpdateExample(_ context.Context, e *services.AnnotationExample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.examples[e.ID]; !ok {
		return services.NewNotFoundError("example not found: " + e.ID)
	}
	s.examples[e.ID] = copyExample(e)
	return nil
}

func (s *memoryStore) DeleteExample(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.examples[id]; !ok {
		return false, nil
	}
	delete(s.examples, id)
	return true, nil
}

func (s *memoryStore) ReorderExamples(_ context.Context, projectID string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i, id := range ids {
		if e, ok := s.examples[id]; ok && e.ProjectID == projectID {
			e.Order = i
			n++
		}
	}
	return n, nil
}
