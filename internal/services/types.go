package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleRequester Role = "requester"
	RoleRater     Role = "rater"
)

func (r Role) Valid() bool { return r == RoleRequester || r == RoleRater }

// Principal is the resolved caller of an operation. It is trusted as given.
type Principal struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserBasic is the public projection of a user.
type UserBasic struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Project struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"owner_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Instructions      string          `json:"instructions,omitempty"`
	EvaluationType    QuestionType    `json:"evaluation_type"`
	EvaluationConfig  json.RawMessage `json:"evaluation_config"`
	UseMultiQuestions bool            `json:"use_multi_questions"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type ProjectStats struct {
	SessionCount int `json:"session_count"`
	TotalRows    int `json:"total_rows"`
	RatedRows    int `json:"rated_rows"`
}

type Session struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Filename  string    `json:"filename"`
	Columns   []string  `json:"columns"`
	CreatedAt time.Time `json:"created_at"`
}

// DataRow content is immutable once the session is created.
type DataRow struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	RowIndex  int            `json:"row_index"`
	Content   map[string]any `json:"content"`
}

// Rating is one rater's response record for one row. Response holds either a
// single answer (legacy non-rating projects) or a map keyed by question key.
type Rating struct {
	ID            string          `json:"id"`
	DataRowID     string          `json:"data_row_id"`
	SessionID     string          `json:"session_id"`
	RaterID       string          `json:"rater_id"`
	RaterUsername string          `json:"rater_username"`
	RatingValue   *int            `json:"rating_value,omitempty"`
	Response      json.RawMessage `json:"response,omitempty"`
	Comment       string          `json:"comment,omitempty"`
	TimeSpentMS   *int64          `json:"time_spent_ms,omitempty"`
	RatedAt       time.Time       `json:"rated_at"`
}

type MediaFile struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	StoragePath  string    `json:"storage_path"`
	CreatedAt    time.Time `json:"created_at"`
}

type AnnotationExample struct {
	ID              string          `json:"id"`
	ProjectID       string          `json:"project_id"`
	Title           string          `json:"title"`
	Content         map[string]any  `json:"content"`
	ExampleResponse json.RawMessage `json:"example_response,omitempty"`
	Explanation     string          `json:"explanation,omitempty"`
	IsPositive      bool            `json:"is_positive"`
	Order           int             `json:"order"`
	CreatedAt       time.Time       `json:"created_at"`
}

func newID() string { return uuid.NewString() }
