package services

import (
	"bytes"
	"context"
	"fmt"
)

type ExportStore interface {
	AccessStore
	GetSession(ctx context.Context, id string) (*Session, error)
	// ListSessionRows returns every row of the session ordered by row_index.
	ListSessionRows(ctx context.Context, sessionID string) ([]*DataRow, error)
	// ListSessionRatings returns every rating in the session with
	// RaterUsername filled in.
	ListSessionRatings(ctx context.Context, sessionID string) ([]*Rating, error)
}

type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ExportService struct {
	store   ExportStore
	schemas *SchemaLoader
}

func NewExportService(store ExportStore, schemas *SchemaLoader) *ExportService {
	return &ExportService{store: store, schemas: schemas}
}

// ExportSession renders a session with every rater's answers. Access is
// checked before any row is read.
func (s *ExportService) ExportSession(ctx context.Context, who Principal, sessionID, format string) (*ExportResult, error) {
	f, err := ParseExportFormat(format)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("session not found: " + sessionID)
	}
	if _, err := projectForRead(ctx, s.store, who, sess.ProjectID); err != nil {
		return nil, err
	}
	_, schema, err := s.schemas.Load(ctx, sess.ProjectID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListSessionRows(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	ratings, err := s.store.ListSessionRatings(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	table := BuildExportTable(sess, schema, rows, ratings)
	buf := &bytes.Buffer{}
	if err := writeExport(buf, f, table); err != nil {
		return nil, fmt.Errorf("write %s: %w", f, err)
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("%s_rated.%s", sess.Name, f),
		ContentType: f.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}
