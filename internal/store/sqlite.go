package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"nudge/internal/model"
	"nudge/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// SQLite implements TaskStore and UserStore over a local database file.
type SQLite struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*SQLite, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &SQLite{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const taskColumns = `t.id, t.title, t.list_id, l.title, l.user_id, t.due_at, t.completed, t.deleted`

// The inner join on a live list enforces the exclusion rule: a deleted or
// missing list silently drops its tasks from the scan.
const taskJoin = `FROM tasks t JOIN lists l ON l.id = t.list_id AND l.deleted = 0`

func (s *SQLite) FindDueSoon(ctx context.Context, now time.Time, horizon time.Duration) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` `+taskJoin+`
		 WHERE t.completed = 0 AND t.deleted = 0
		   AND t.due_at IS NOT NULL AND t.due_at >= ? AND t.due_at <= ?
		 ORDER BY t.due_at`,
		now.UnixMilli(), now.Add(horizon).UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("store: due-soon query: %w", err)
	}
	return scanTasks(rows)
}

func (s *SQLite) FindOverdue(ctx context.Context, now time.Time) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` `+taskJoin+`
		 WHERE t.completed = 0 AND t.deleted = 0
		   AND t.due_at IS NOT NULL AND t.due_at < ?
		 ORDER BY t.due_at`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("store: overdue query: %w", err)
	}
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]model.Task, error) {
	defer rows.Close()
	var out []model.Task
	for rows.Next() {
		var t model.Task
		var due int64
		var completed, deleted int
		if err := rows.Scan(&t.ID, &t.Title, &t.ListID, &t.ListTitle, &t.UserID, &due, &completed, &deleted); err != nil {
			return nil, err
		}
		t.DueAt = time.UnixMilli(due)
		t.Completed = completed != 0
		t.Deleted = deleted != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) GetUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

// ---- Write helpers ----
//
// The engine never mutates tasks; these exist for the surrounding
// application, seeding, and tests.

func (s *SQLite) CreateUser(ctx context.Context, u model.User) (string, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, email, first_name, last_name) VALUES(?,?,?,?)`,
		u.ID, u.Email, u.FirstName, u.LastName)
	return u.ID, err
}

func (s *SQLite) CreateList(ctx context.Context, userID, title string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lists(id, user_id, title) VALUES(?,?,?)`, id, userID, title)
	return id, err
}

func (s *SQLite) CreateTask(ctx context.Context, listID, title string, dueAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, list_id, title, due_at) VALUES(?,?,?,?)`,
		id, listID, title, dueAt.UnixMilli())
	return id, err
}

func (s *SQLite) SetTaskCompleted(ctx context.Context, taskID string, completed bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = ? WHERE id = ?`, boolInt(completed), taskID)
	return err
}

func (s *SQLite) SetListDeleted(ctx context.Context, listID string, deleted bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE lists SET deleted = ? WHERE id = ?`, boolInt(deleted), listID)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
