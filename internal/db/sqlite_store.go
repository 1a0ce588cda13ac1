package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/soaringjerry/hitlrate/internal/api"
	"github.com/soaringjerry/hitlrate/internal/services"
)

// SQLiteStore is the durable api.Store. Missing records come back as
// (nil, nil), matching the in-memory store.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

var _ api.Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the sqlite file at path. Foreign keys are
// enabled on every pooled connection through the DSN.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

func NewSQLiteStore(db *sql.DB, log *zap.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if log == nil {
		log = zap.NewNop()
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, log: log.Named("sqlite")}, nil
}

func NewStore(db *sql.DB, log *zap.Logger) (api.Store, error) {
	return NewSQLiteStore(db, log)
}

func (s *SQLiteStore) logErr(op string, err error) {
	if err != nil {
		s.log.Error("sqlite store", zap.String("op", op), zap.Error(err))
	}
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawFrom(ns sql.NullString) json.RawMessage {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *SQLiteStore) decodeContent(op, raw string) map[string]any {
	out := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.logErr(op+" decode content", err)
	}
	return out
}

// inClause returns "?, ?, ..." with n placeholders.
func inClause(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// closeRows closes rs and folds a close error into *err.
func (s *SQLiteStore) closeRows(op string, rs *sql.Rows, err *error) {
	if cerr := rs.Close(); cerr != nil {
		s.logErr(op+" rows close", cerr)
		if *err == nil {
			*err = cerr
		}
	}
}

// --- Users ---

const userColumns = "id, username, password_hash, role, created_at"

func scanUser(row scanner) (*services.User, error) {
	var (
		u    services.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = services.Role(role)
	return &u, nil
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*services.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*services.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*services.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

func (s *SQLiteStore) InsertUser(ctx context.Context, u *services.User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Username, u.PasswordHash, string(u.Role), u.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return services.NewConflictError("username already registered")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListUsersByRole(ctx context.Context, role services.Role) (out []*services.User, err error) {
	rs, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users WHERE role = ? ORDER BY username ASC", string(role))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer s.closeRows("ListUsersByRole", rs, &err)
	out = []*services.User{}
	for rs.Next() {
		u, err := scanUser(rs)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rs.Err()
}

// --- Projects and assignments ---

const projectColumns = "id, owner_id, name, description, instructions, evaluation_type, evaluation_config, use_multi_questions, created_at, updated_at"

func scanProject(row scanner) (*services.Project, error) {
	var (
		p      services.Project
		evType string
		evCfg  sql.NullString
		multi  int64
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Instructions,
		&evType, &evCfg, &multi, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.EvaluationType = services.QuestionType(evType)
	p.EvaluationConfig = rawFrom(evCfg)
	p.UseMultiQuestions = multi != 0
	return &p, nil
}

func (s *SQLiteStore) listProjects(ctx context.Context, op, query string, arg any) (out []*services.Project, err error) {
	rs, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer s.closeRows(op, rs, &err)
	out = []*services.Project{}
	for rs.Next() {
		p, err := scanProject(rs)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rs.Err()
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*services.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) IsAssigned(ctx context.Context, projectID, raterID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM project_assignments WHERE project_id = ? AND rater_id = ?",
		projectID, raterID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) InsertProject(ctx context.Context, p *services.Project) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO projects ("+projectColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.OwnerID, p.Name, p.Description, p.Instructions, string(p.EvaluationType),
		nullRaw(p.EvaluationConfig), boolToInt64(p.UseMultiQuestions), p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *services.Project) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET name = ?, description = ?, instructions = ?,
		evaluation_type = ?, evaluation_config = ?, use_multi_questions = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Description, p.Instructions, string(p.EvaluationType), nullRaw(p.EvaluationConfig),
		boolToInt64(p.UseMultiQuestions), p.UpdatedAt.UTC(), p.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("project not found: " + p.ID)
	}
	return nil
}

// DeleteProject relies on ON DELETE CASCADE for every dependent table.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "projects", id)
}

func (s *SQLiteStore) deleteByID(ctx context.Context, table, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListProjectsByOwner(ctx context.Context, ownerID string) ([]*services.Project, error) {
	return s.listProjects(ctx, "list owner projects",
		"SELECT "+projectColumns+" FROM projects WHERE owner_id = ? ORDER BY created_at DESC", ownerID)
}

func (s *SQLiteStore) ListProjectsForRater(ctx context.Context, raterID string) ([]*services.Project, error) {
	return s.listProjects(ctx, "list rater projects",
		`SELECT `+projectColumns+` FROM projects
		 WHERE id IN (SELECT project_id FROM project_assignments WHERE rater_id = ?)
		 ORDER BY created_at DESC`, raterID)
}

func (s *SQLiteStore) AddAssignment(ctx context.Context, projectID, raterID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO project_assignments (project_id, rater_id, assigned_at) VALUES (?, ?, ?)",
		projectID, raterID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("add assignment: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) RemoveAssignment(ctx context.Context, projectID, raterID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM project_assignments WHERE project_id = ? AND rater_id = ?", projectID, raterID)
	if err != nil {
		return false, fmt.Errorf("remove assignment: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListAssignedRaters(ctx context.Context, projectID string) (out []services.UserBasic, err error) {
	rs, err := s.db.QueryContext(ctx, `SELECT u.id, u.username FROM project_assignments a
		JOIN users u ON u.id = a.rater_id WHERE a.project_id = ? ORDER BY u.username ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list assigned raters: %w", err)
	}
	defer s.closeRows("ListAssignedRaters", rs, &err)
	out = []services.UserBasic{}
	for rs.Next() {
		var u services.UserBasic
		if err := rs.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("scan rater: %w", err)
		}
		out = append(out, u)
	}
	return out, rs.Err()
}

func (s *SQLiteStore) ProjectStats(ctx context.Context, projectID string) (*services.ProjectStats, error) {
	var st services.ProjectStats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM sessions WHERE project_id = ?1),
		(SELECT COUNT(*) FROM data_rows d JOIN sessions s ON s.id = d.session_id WHERE s.project_id = ?1),
		(SELECT COUNT(*) FROM data_rows d JOIN sessions s ON s.id = d.session_id
		  WHERE s.project_id = ?1 AND EXISTS (SELECT 1 FROM ratings r WHERE r.data_row_id = d.id))`,
		projectID).Scan(&st.SessionCount, &st.TotalRows, &st.RatedRows)
	if err != nil {
		return nil, fmt.Errorf("project stats: %w", err)
	}
	return &st, nil
}

// --- Questions ---

const questionColumns = "id, project_id, question_order, key, label, description, question_type, config, required, conditional, created_at"

func (s *SQLiteStore) scanQuestion(row scanner) (*services.Question, error) {
	var (
		q        services.Question
		qType    string
		cfg      sql.NullString
		required int64
		cond     sql.NullString
	)
	err := row.Scan(&q.ID, &q.ProjectID, &q.Order, &q.Key, &q.Label, &q.Description,
		&qType, &cfg, &required, &cond, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	q.Type = services.QuestionType(qType)
	q.Required = required != 0
	q.Config, err = services.DecodeConfig(q.Type, rawFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", q.ID, err)
	}
	if raw := rawFrom(cond); raw != nil && string(raw) != "null" {
		var rule services.ConditionalRule
		if err := json.Unmarshal(raw, &rule); err != nil {
			s.logErr("decode conditional "+q.ID, err)
		} else {
			q.Conditional = &rule
		}
	}
	return &q, nil
}

type questionRow struct {
	config      sql.NullString
	conditional sql.NullString
}

func encodeQuestion(q *services.Question) (questionRow, error) {
	var out questionRow
	cfg, err := services.EncodeConfig(q.Config)
	if err != nil {
		return out, err
	}
	out.config = nullRaw(cfg)
	if q.Conditional != nil {
		c, err := encodeJSON(q.Conditional)
		if err != nil {
			return out, fmt.Errorf("encode conditional: %w", err)
		}
		out.conditional = sql.NullString{String: c, Valid: true}
	}
	return out, nil
}

func (s *SQLiteStore) ListQuestions(ctx context.Context, projectID string) (out []*services.Question, err error) {
	rs, err := s.db.QueryContext(ctx, "SELECT "+questionColumns+
		" FROM questions WHERE project_id = ? ORDER BY question_order ASC, created_at ASC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer s.closeRows("ListQuestions", rs, &err)
	out = []*services.Question{}
	for rs.Next() {
		q, err := s.scanQuestion(rs)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rs.Err()
}

func (s *SQLiteStore) GetQuestion(ctx context.Context, id string) (*services.Question, error) {
	q, err := s.scanQuestion(s.db.QueryRowContext(ctx, "SELECT "+questionColumns+" FROM questions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *SQLiteStore) InsertQuestion(ctx context.Context, q *services.Question) error {
	enc, err := encodeQuestion(q)
	if err != nil {
		return err
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO questions ("+questionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			q.ID, q.ProjectID, q.Order, q.Key, q.Label, q.Description, string(q.Type),
			enc.config, boolToInt64(q.Required), enc.conditional, q.CreatedAt.UTC())
		if isUniqueViolation(err) {
			return services.ErrDuplicateKey
		}
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE projects SET use_multi_questions = 1 WHERE id = ?", q.ProjectID); err != nil {
			return fmt.Errorf("enable multi questions: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) UpdateQuestion(ctx context.Context, q *services.Question) error {
	enc, err := encodeQuestion(q)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE questions SET question_order = ?, key = ?, label = ?,
		description = ?, question_type = ?, config = ?, required = ?, conditional = ? WHERE id = ?`,
		q.Order, q.Key, q.Label, q.Description, string(q.Type), enc.config,
		boolToInt64(q.Required), enc.conditional, q.ID)
	if isUniqueViolation(err) {
		return services.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("question not found: " + q.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteQuestion(ctx context.Context, projectID, id string) (int, error) {
	var remaining int
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM questions WHERE id = ? AND project_id = ?", id, projectID); err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM questions WHERE project_id = ?", projectID).Scan(&remaining); err != nil {
			return fmt.Errorf("count questions: %w", err)
		}
		if remaining == 0 {
			if _, err := tx.ExecContext(ctx, "UPDATE projects SET use_multi_questions = 0 WHERE id = ?", projectID); err != nil {
				return fmt.Errorf("disable multi questions: %w", err)
			}
		}
		return nil
	})
	return remaining, err
}

// reorder sets <orderColumn> = index for each id of the project in one
// transaction.
func (s *SQLiteStore) reorder(ctx context.Context, table, orderColumn, projectID string, ids []string) (int, error) {
	updated := 0
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "UPDATE "+table+" SET "+orderColumn+" = ? WHERE id = ? AND project_id = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, id := range ids {
			res, err := stmt.ExecContext(ctx, i, id, projectID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reorder %s: %w", table, err)
	}
	return updated, nil
}

func (s *SQLiteStore) ReorderQuestions(ctx context.Context, projectID string, ids []string) (int, error) {
	return s.reorder(ctx, "questions", "question_order", projectID, ids)
}

// --- Sessions and rows ---

const sessionColumns = "id, project_id, name, filename, columns, created_at"

func (s *SQLiteStore) scanSession(row scanner) (*services.Session, error) {
	var (
		sess    services.Session
		columns string
	)
	if err := row.Scan(&sess.ID, &sess.ProjectID, &sess.Name, &sess.Filename, &columns, &sess.CreatedAt); err != nil {
		return nil, err
	}
	sess.Columns = []string{}
	if err := json.Unmarshal([]byte(columns), &sess.Columns); err != nil {
		s.logErr("decode session columns "+sess.ID, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *services.Session, rows []*services.DataRow) error {
	columns, err := encodeJSON(sess.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO sessions ("+sessionColumns+") VALUES (?, ?, ?, ?, ?, ?)",
			sess.ID, sess.ProjectID, sess.Name, sess.Filename, columns, sess.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO data_rows (id, session_id, row_index, content) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			content, err := encodeJSON(r.Content)
			if err != nil {
				return fmt.Errorf("encode row %d: %w", r.RowIndex, err)
			}
			if _, err := stmt.ExecContext(ctx, r.ID, sess.ID, r.RowIndex, content); err != nil {
				return fmt.Errorf("insert row %d: %w", r.RowIndex, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*services.Session, error) {
	sess, err := s.scanSession(s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, projectID string) (out []*services.Session, err error) {
	rs, err := s.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE project_id = ? ORDER BY created_at DESC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer s.closeRows("ListSessions", rs, &err)
	out = []*services.Session{}
	for rs.Next() {
		sess, err := s.scanSession(rs)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rs.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "sessions", id)
}

func (s *SQLiteStore) CountRows(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM data_rows WHERE session_id = ?", sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// ratedPredicate matches rows of alias d rated by raterID, or by anyone when
// raterID is empty.
func ratedPredicate(raterID string) (string, []any) {
	if raterID == "" {
		return "EXISTS (SELECT 1 FROM ratings x WHERE x.data_row_id = d.id)", nil
	}
	return "EXISTS (SELECT 1 FROM ratings x WHERE x.data_row_id = d.id AND x.rater_id = ?)", []any{raterID}
}

func (s *SQLiteStore) CountRatedRows(ctx context.Context, sessionID, raterID string) (int, error) {
	pred, args := ratedPredicate(raterID)
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM data_rows d WHERE d.session_id = ? AND "+pred,
		append([]any{sessionID}, args...)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rated rows: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) scanRows(op string, rs *sql.Rows) (out []*services.DataRow, err error) {
	defer s.closeRows(op, rs, &err)
	out = []*services.DataRow{}
	for rs.Next() {
		var (
			r       services.DataRow
			content string
		)
		if err := rs.Scan(&r.ID, &r.SessionID, &r.RowIndex, &content); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Content = s.decodeContent(op, content)
		out = append(out, &r)
	}
	return out, rs.Err()
}

func (s *SQLiteStore) GetDataRow(ctx context.Context, id string) (*services.DataRow, error) {
	rs, err := s.db.QueryContext(ctx, "SELECT id, session_id, row_index, content FROM data_rows WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get row: %w", err)
	}
	rows, err := s.scanRows("GetDataRow", rs)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (s *SQLiteStore) ListRows(ctx context.Context, q services.RowQuery) ([]*services.DataRow, int, error) {
	where := "d.session_id = ?"
	args := []any{q.SessionID}
	switch q.Filter {
	case services.FilterRated, services.FilterUnrated:
		pred, predArgs := ratedPredicate(q.RaterID)
		if q.Filter == services.FilterUnrated {
			pred = "NOT " + pred
		}
		where += " AND " + pred
		args = append(args, predArgs...)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM data_rows d WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rows: %w", err)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	rs, err := s.db.QueryContext(ctx,
		"SELECT d.id, d.session_id, d.row_index, d.content FROM data_rows d WHERE "+where+
			" ORDER BY d.row_index ASC LIMIT ? OFFSET ?",
		append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list rows: %w", err)
	}
	rows, err := s.scanRows("ListRows", rs)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (s *SQLiteStore) ListSessionRows(ctx context.Context, sessionID string) ([]*services.DataRow, error) {
	rs, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, row_index, content FROM data_rows WHERE session_id = ? ORDER BY row_index ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session rows: %w", err)
	}
	return s.scanRows("ListSessionRows", rs)
}

// --- Ratings ---

const ratingSelect = `SELECT r.id, r.data_row_id, r.session_id, r.rater_id, COALESCE(u.username, ''),
	r.rating_value, r.response, r.comment, r.time_spent_ms, r.rated_at
	FROM ratings r LEFT JOIN users u ON u.id = r.rater_id`

func (s *SQLiteStore) queryRatings(ctx context.Context, op, where string, args ...any) (out []*services.Rating, err error) {
	rs, err := s.db.QueryContext(ctx, ratingSelect+" WHERE "+where+" ORDER BY r.rated_at ASC, r.id ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer s.closeRows(op, rs, &err)
	out = []*services.Rating{}
	for rs.Next() {
		var (
			r        services.Rating
			value    sql.NullInt64
			response sql.NullString
			spent    sql.NullInt64
		)
		err := rs.Scan(&r.ID, &r.DataRowID, &r.SessionID, &r.RaterID, &r.RaterUsername,
			&value, &response, &r.Comment, &spent, &r.RatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		if value.Valid {
			v := int(value.Int64)
			r.RatingValue = &v
		}
		if spent.Valid {
			v := spent.Int64
			r.TimeSpentMS = &v
		}
		r.Response = rawFrom(response)
		out = append(out, &r)
	}
	return out, rs.Err()
}

func (s *SQLiteStore) GetRating(ctx context.Context, rowID, raterID string) (*services.Rating, error) {
	rs, err := s.queryRatings(ctx, "get rating", "r.data_row_id = ? AND r.rater_id = ?", rowID, raterID)
	if err != nil || len(rs) == 0 {
		return nil, err
	}
	return rs[0], nil
}

func (s *SQLiteStore) UpsertRating(ctx context.Context, r *services.Rating) (*services.Rating, error) {
	var value, spent sql.NullInt64
	if r.RatingValue != nil {
		value = sql.NullInt64{Int64: int64(*r.RatingValue), Valid: true}
	}
	if r.TimeSpentMS != nil {
		spent = sql.NullInt64{Int64: *r.TimeSpentMS, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO ratings
		(id, data_row_id, session_id, rater_id, rating_value, response, comment, time_spent_ms, rated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (data_row_id, rater_id) DO UPDATE SET
			session_id = excluded.session_id,
			rating_value = excluded.rating_value,
			response = excluded.response,
			comment = excluded.comment,
			time_spent_ms = excluded.time_spent_ms,
			rated_at = excluded.rated_at`,
		r.ID, r.DataRowID, r.SessionID, r.RaterID, value, nullRaw(r.Response), r.Comment, spent, r.RatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert rating: %w", err)
	}
	stored, err := s.GetRating(ctx, r.DataRowID, r.RaterID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("upsert rating: record for row %s vanished", r.DataRowID)
	}
	return stored, nil
}

func (s *SQLiteStore) DeleteRating(ctx context.Context, rowID, raterID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM ratings WHERE data_row_id = ? AND rater_id = ?", rowID, raterID)
	if err != nil {
		return false, fmt.Errorf("delete rating: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListRatingsForRows(ctx context.Context, rowIDs []string) ([]*services.Rating, error) {
	if len(rowIDs) == 0 {
		return []*services.Rating{}, nil
	}
	args := make([]any, len(rowIDs))
	for i, id := range rowIDs {
		args[i] = id
	}
	return s.queryRatings(ctx, "list row ratings", "r.data_row_id IN ("+inClause(len(rowIDs))+")", args...)
}

func (s *SQLiteStore) ListSessionRatings(ctx context.Context, sessionID string) ([]*services.Rating, error) {
	return s.queryRatings(ctx, "list session ratings", "r.session_id = ?", sessionID)
}

// --- Media ---

const mediaColumns = "id, project_id, filename, original_name, mime_type, size_bytes, storage_path, created_at"

func scanMedia(row scanner) (*services.MediaFile, error) {
	var m services.MediaFile
	err := row.Scan(&m.ID, &m.ProjectID, &m.Filename, &m.OriginalName, &m.MimeType, &m.SizeBytes, &m.StoragePath, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) InsertMedia(ctx context.Context, m *services.MediaFile) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO media_files ("+mediaColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.ProjectID, m.Filename, m.OriginalName, m.MimeType, m.SizeBytes, m.StoragePath, m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMedia(ctx context.Context, id string) (*services.MediaFile, error) {
	m, err := scanMedia(s.db.QueryRowContext(ctx, "SELECT "+mediaColumns+" FROM media_files WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) ListMedia(ctx context.Context, projectID string) (out []*services.MediaFile, err error) {
	rs, err := s.db.QueryContext(ctx, "SELECT "+mediaColumns+" FROM media_files WHERE project_id = ? ORDER BY created_at DESC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer s.closeRows("ListMedia", rs, &err)
	out = []*services.MediaFile{}
	for rs.Next() {
		m, err := scanMedia(rs)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, m)
	}
	return out, rs.Err()
}

func (s *SQLiteStore) DeleteMedia(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "media_files", id)
}

// --- Annotation examples ---

const exampleColumns = "id, project_id, title, content, example_response, explanation, is_positive, example_order, created_at"

func (s *SQLiteStore) scanExample(row scanner) (*services.AnnotationExample, error) {
	var (
		e        services.AnnotationExample
		content  string
		response sql.NullString
		positive int64
	)
	err := row.Scan(&e.ID, &e.ProjectID, &e.Title, &content, &response, &e.Explanation, &positive, &e.Order, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Content = s.decodeContent("example "+e.ID, content)
	e.ExampleResponse = rawFrom(response)
	e.IsPositive = positive != 0
	return &e, nil
}

func (s *SQLiteStore) ListExamples(ctx context.Context, projectID string) (out []*services.AnnotationExample, err error) {
	rs, err := s.db.QueryContext(ctx, "SELECT "+exampleColumns+
		" FROM annotation_examples WHERE project_id = ? ORDER BY example_order ASC, created_at ASC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list examples: %w", err)
	}
	defer s.closeRows("ListExamples", rs, &err)
	out = []*services.AnnotationExample{}
	for rs.Next() {
		e, err := s.scanExample(rs)
		if err != nil {
			return nil, fmt.Errorf("scan example: %w", err)
		}
		out = append(out, e)
	}
	return out, rs.Err()
}

func (s *SQLiteStore) GetExample(ctx context.Context, id string) (*services.AnnotationExample, error) {
	e, err := s.scanExample(s.db.QueryRowContext(ctx, "SELECT "+exampleColumns+" FROM annotation_examples WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get example: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) InsertExample(ctx context.Context, e *services.AnnotationExample) error {
	content, err := encodeJSON(e.Content)
	if err != nil {
		return fmt.Errorf("encode example content: %w", err)
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO annotation_examples ("+exampleColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.ProjectID, e.Title, content, nullRaw(e.ExampleResponse), e.Explanation,
		boolToInt64(e.IsPositive), e.Order, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert example: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateExample(ctx context.Context, e *services.AnnotationExample) error {
	content, err := encodeJSON(e.Content)
	if err != nil {
		return fmt.Errorf("encode example content: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE annotation_examples SET title = ?, content = ?, example_response = ?,
		explanation = ?, is_positive = ?, example_order = ? WHERE id = ?`,
		e.Title, content, nullRaw(e.ExampleResponse), e.Explanation, boolToInt64(e.IsPositive), e.Order, e.ID)
	if err != nil {
		return fmt.Errorf("update example: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("example not found: " + e.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteExample(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, "annotation_examples", id)
}

func (s *SQLiteStore) ReorderExamples(ctx context.Context, projectID string, ids []string) (int, error) {
	return s.reorder(ctx, "annotation_examples", "example_order", projectID, ids)
}
