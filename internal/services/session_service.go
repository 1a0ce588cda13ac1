package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/soaringjerry/hitlrate/internal/tabular"
)

type SessionStore interface {
	AccessStore
	SchemaStore
	// CreateSession inserts the session and all of its rows in one
	// transaction.
	CreateSession(ctx context.Context, s *Session, rows []*DataRow) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, projectID string) ([]*Session, error)
	// DeleteSession cascades to rows and ratings.
	DeleteSession(ctx context.Context, id string) (bool, error)
	CountRows(ctx context.Context, sessionID string) (int, error)
	// CountRatedRows counts rows rated by raterID, or by anyone when raterID
	// is empty.
	CountRatedRows(ctx context.Context, sessionID, raterID string) (int, error)
}

type UploadInput struct {
	Name     string
	Filename string
	Table    *tabular.Table
}

type SessionSummary struct {
	*Session
	RowCount   int `json:"row_count"`
	RatedCount int `json:"rated_count"`
}

type SessionDetail struct {
	SessionSummary
	Project   *Project    `json:"project"`
	Questions []*Question `json:"questions"`
}

type SessionService struct {
	store       SessionStore
	now         func() time.Time
	idGenerator func() string
}

func NewSessionService(store SessionStore) *SessionService {
	return &SessionService{
		store:       store,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: newID,
	}
}

// Create stores a parsed upload as a new session of the project.
func (s *SessionService) Create(ctx context.Context, who Principal, projectID string, in UploadInput) (*SessionSummary, error) {
	if _, err := projectForWrite(ctx, s.store, who, projectID); err != nil {
		return nil, err
	}
	if in.Table == nil || len(in.Table.Columns) == 0 {
		return nil, NewInvalidError("upload has no column headers")
	}
	if len(in.Table.Rows) == 0 {
		return nil, NewInvalidError("upload has no data rows")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(in.Filename), filepath.Ext(in.Filename))
	}
	if name == "" {
		return nil, NewInvalidError("session name required")
	}
	sess := &Session{
		ID:        s.idGenerator(),
		ProjectID: projectID,
		Name:      name,
		Filename:  in.Filename,
		Columns:   in.Table.Columns,
		CreatedAt: s.now(),
	}
	rows := make([]*DataRow, 0, len(in.Table.Rows))
	for _, r := range in.Table.Rows {
		rows = append(rows, &DataRow{
			ID:        s.idGenerator(),
			SessionID: sess.ID,
			RowIndex:  r.Index,
			Content:   r.Content,
		})
	}
	if err := s.store.CreateSession(ctx, sess, rows); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &SessionSummary{Session: sess, RowCount: len(rows)}, nil
}

func (s *SessionService) summarize(ctx context.Context, who Principal, p *Project, sess *Session) (*SessionSummary, error) {
	rows, err := s.store.CountRows(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	rater := who.UserID
	if who.Role == RoleRequester && p.OwnerID == who.UserID {
		rater = ""
	}
	rated, err := s.store.CountRatedRows(ctx, sess.ID, rater)
	if err != nil {
		return nil, err
	}
	return &SessionSummary{Session: sess, RowCount: rows, RatedCount: rated}, nil
}

func (s *SessionService) List(ctx context.Context, who Principal, projectID string) ([]*SessionSummary, error) {
	p, err := projectForRead(ctx, s.store, who, projectID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]*SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		sum, err := s.summarize(ctx, who, p, sess)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *SessionService) Get(ctx context.Context, who Principal, id string) (*SessionDetail, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found: " + id)
	}
	p, err := projectForRead(ctx, s.store, who, sess.ProjectID)
	if err != nil {
		return nil, err
	}
	sum, err := s.summarize(ctx, who, p, sess)
	if err != nil {
		return nil, err
	}
	questions, err := s.store.ListQuestions(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{SessionSummary: *sum, Project: p, Questions: questions}, nil
}

func (s *SessionService) Delete(ctx context.Context, who Principal, id string) error {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		return NewNotFoundError("session not found: " + id)
	}
	if _, err := projectForWrite(ctx, s.store, who, sess.ProjectID); err != nil {
		return err
	}
	if _, err := s.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
