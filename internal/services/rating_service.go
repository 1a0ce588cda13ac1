package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soaringjerry/hitlrate/internal/media"
)

// RatingStore abstracts persistence operations required by RatingService.
type RatingStore interface {
	AccessStore
	GetSession(ctx context.Context, id string) (*Session, error)
	GetDataRow(ctx context.Context, id string) (*DataRow, error)
	GetRating(ctx context.Context, rowID, raterID string) (*Rating, error)
	// UpsertRating inserts r, or overwrites the record already held for
	// (r.DataRowID, r.RaterID) while keeping its id. It returns the stored row.
	UpsertRating(ctx context.Context, r *Rating) (*Rating, error)
	DeleteRating(ctx context.Context, rowID, raterID string) (bool, error)
	ListRows(ctx context.Context, q RowQuery) ([]*DataRow, int, error)
	CountRatedRows(ctx context.Context, sessionID, raterID string) (int, error)
	ListRatingsForRows(ctx context.Context, rowIDs []string) ([]*Rating, error)
}

// RatingInput is a submission from one rater for one row.
type RatingInput struct {
	DataRowID   string          `json:"data_row_id"`
	SessionID   string          `json:"session_id"`
	RatingValue *int            `json:"rating_value,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Comment     string          `json:"comment,omitempty"`
	TimeSpentMS *int64          `json:"time_spent_ms,omitempty"`
}

// RowView is a data row as served to a rater or requester.
type RowView struct {
	*DataRow
	ContentTypes map[string]media.ContentType `json:"content_types"`
	MediaURLs    map[string]string            `json:"media_urls,omitempty"`
	MyRating     *Rating                      `json:"my_rating,omitempty"`
	Ratings      []*Rating                    `json:"ratings,omitempty"`
}

type RowPage struct {
	Items      []*RowView `json:"items"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	PerPage    int        `json:"per_page"`
	TotalPages int        `json:"total_pages"`
	RatedCount int        `json:"rated_count"`
}

var ErrSessionMismatch = errors.New("session ID mismatch")

// MediaURLPattern renders a media://<id> reference into a fetchable path.
const MediaURLPattern = "/api/media/%s/file"

type RatingService struct {
	store       RatingStore
	schemas     *SchemaLoader
	now         func() time.Time
	idGenerator func() string
}

func NewRatingService(store RatingStore, schemas *SchemaLoader) *RatingService {
	return &RatingService{
		store:       store,
		schemas:     schemas,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: newID,
	}
}

func (s *RatingService) sessionForRead(ctx context.Context, who Principal, sessionID string) (*Session, *Project, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, NewNotFoundError("session not found: " + sessionID)
	}
	p, err := projectForRead(ctx, s.store, who, sess.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return sess, p, nil
}

// ListRows serves one page of a session's rows for the caller. Rated and
// unrated filters look only at the caller's own ratings.
func (s *RatingService) ListRows(ctx context.Context, who Principal, sessionID string, req PageRequest) (*RowPage, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	_, p, err := s.sessionForRead(ctx, who, sessionID)
	if err != nil {
		return nil, err
	}
	rows, total, err := s.store.ListRows(ctx, RowQuery{
		SessionID: sessionID,
		RaterID:   who.UserID,
		Filter:    req.Filter,
		Limit:     req.PerPage,
		Offset:    (req.Page - 1) * req.PerPage,
	})
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	rated, err := s.store.CountRatedRows(ctx, sessionID, who.UserID)
	if err != nil {
		return nil, fmt.Errorf("count rated rows: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	ratings, err := s.store.ListRatingsForRows(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	byRow := make(map[string][]*Rating, len(rows))
	for _, r := range ratings {
		byRow[r.DataRowID] = append(byRow[r.DataRowID], r)
	}
	owner := who.Role == RoleRequester && p.OwnerID == who.UserID
	items := make([]*RowView, 0, len(rows))
	for _, row := range rows {
		v := newRowView(row)
		for _, r := range byRow[row.ID] {
			if r.RaterID == who.UserID {
				v.MyRating = r
			}
		}
		if owner {
			v.Ratings = byRow[row.ID]
		}
		items = append(items, v)
	}
	return &RowPage{
		Items:      items,
		Total:      total,
		Page:       req.Page,
		PerPage:    req.PerPage,
		TotalPages: TotalPages(total, req.PerPage),
		RatedCount: rated,
	}, nil
}

func newRowView(row *DataRow) *RowView {
	v := &RowView{DataRow: row, ContentTypes: make(map[string]media.ContentType, len(row.Content))}
	for col, val := range row.Content {
		str, ok := val.(string)
		if !ok {
			v.ContentTypes[col] = media.ContentText
			continue
		}
		ct := media.DetectContentType(str)
		v.ContentTypes[col] = ct
		if id, ok := media.RefID(str); ok {
			if v.MediaURLs == nil {
				v.MediaURLs = map[string]string{}
			}
			v.MediaURLs[col] = fmt.Sprintf(MediaURLPattern, id)
		}
	}
	return v
}

// Upsert stores the caller's response for a row. A resubmission replaces the
// whole previous response and refreshes rated_at.
func (s *RatingService) Upsert(ctx context.Context, who Principal, in RatingInput) (*Rating, error) {
	if in.DataRowID == "" {
		return nil, NewInvalidError("data_row_id required")
	}
	if in.SessionID == "" {
		return nil, NewInvalidError("session_id required")
	}
	row, err := s.store.GetDataRow(ctx, in.DataRowID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, NewNotFoundError("data row not found: " + in.DataRowID)
	}
	if in.SessionID != row.SessionID {
		return nil, &ServiceError{Code: ErrorConflict, Message: fmt.Sprintf("%s: row %s does not belong to session %s", ErrSessionMismatch, row.ID, in.SessionID)}
	}
	sess, p, err := s.sessionForRead(ctx, who, row.SessionID)
	if err != nil {
		return nil, err
	}
	_, schema, err := s.schemas.Load(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	response, ratingValue, err := normalizeResponse(schema, in)
	if err != nil {
		return nil, err
	}
	if in.TimeSpentMS != nil && *in.TimeSpentMS < 0 {
		return nil, NewInvalidError("time_spent_ms must be >= 0")
	}
	rec := &Rating{
		ID:            s.idGenerator(),
		DataRowID:     row.ID,
		SessionID:     sess.ID,
		RaterID:       who.UserID,
		RaterUsername: who.Username,
		RatingValue:   ratingValue,
		Response:      response,
		Comment:       in.Comment,
		TimeSpentMS:   in.TimeSpentMS,
		RatedAt:       s.now(),
	}
	saved, err := s.store.UpsertRating(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("upsert rating: %w", err)
	}
	if saved == nil {
		return rec, nil
	}
	return saved, nil
}

// normalizeResponse validates a submission against the schema and returns
// the canonical JSON to store plus the legacy rating value. In a legacy rating
// project a response value stands in for a missing rating_value.
func normalizeResponse(schema ProjectSchema, in RatingInput) (json.RawMessage, *int, error) {
	switch sc := schema.(type) {
	case LegacySchema:
		rc, isRating := sc.Config.(RatingConfig)
		if in.RatingValue != nil {
			if !isRating {
				return nil, nil, invalidf("rating_value is only accepted for rating projects (project type %s)", sc.Type)
			}
			if v := *in.RatingValue; v < rc.Min || v > rc.Max {
				return nil, nil, invalidf("rating_value %d outside [%d, %d]", v, rc.Min, rc.Max)
			}
		}
		a, err := DecodeAnswer(in.Response)
		if err != nil {
			return nil, nil, err
		}
		if a == nil || !answered(*a) {
			return nil, in.RatingValue, nil
		}
		if err := ValidateAnswer("response", sc.Config, *a); err != nil {
			return nil, nil, err
		}
		value := in.RatingValue
		if isRating {
			v, _ := intValue(a.Value)
			if value != nil && *value != v {
				return nil, nil, invalidf("rating_value %d disagrees with response value %d", *value, v)
			}
			value = &v
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, nil, err
		}
		return raw, value, nil
	case MultiQuestionSchema:
		if in.RatingValue != nil {
			return nil, nil, NewInvalidError("rating_value is not used by multi-question projects")
		}
		rs, err := DecodeResponseSet(in.Response)
		if err != nil {
			return nil, nil, err
		}
		if err := ValidateResponseSet(sc, rs); err != nil {
			return nil, nil, err
		}
		raw, err := json.Marshal(rs)
		if err != nil {
			return nil, nil, err
		}
		return raw, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown schema %T", schema)
}

// MyRating returns the caller's rating for a row, or NotFound.
func (s *RatingService) MyRating(ctx context.Context, who Principal, rowID string) (*Rating, error) {
	row, err := s.store.GetDataRow(ctx, rowID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, NewNotFoundError("data row not found: " + rowID)
	}
	if _, _, err := s.sessionForRead(ctx, who, row.SessionID); err != nil {
		return nil, err
	}
	r, err := s.store.GetRating(ctx, rowID, who.UserID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, NewNotFoundError("rating not found for row " + rowID)
	}
	return r, nil
}

func (s *RatingService) DeleteMyRating(ctx context.Context, who Principal, rowID string) error {
	if _, err := s.MyRating(ctx, who, rowID); err != nil {
		return err
	}
	ok, err := s.store.DeleteRating(ctx, rowID, who.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("rating not found for row " + rowID)
	}
	return nil
}
