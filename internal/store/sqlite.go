package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/tracker/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers; avoids "database is locked" under
	// concurrent API requests and realtime refetches.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// migrationFiles returns the embedded migration names for a backend, sorted.
func migrationFiles(backend string) ([]string, error) {
	dir := "migrations/" + backend
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	names, err := migrationFiles("sqlite")
	if err != nil {
		return err
	}

	for _, name := range names {
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/sqlite/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Issues ---

const issueColumns = `id, name, description, priority, status, created_at, updated_at`

func scanIssue(sc interface{ Scan(...any) error }) (*models.Issue, error) {
	issue := &models.Issue{}
	var status string
	if err := sc.Scan(&issue.ID, &issue.Name, &issue.Description, &issue.Priority, &status, &issue.CreatedAt, &issue.UpdatedAt); err != nil {
		return nil, err
	}
	issue.Status = models.IssueStatus(status)
	return issue, nil
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error) {
	var conditions []string
	var args []any
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ID != "" {
		conditions = append(conditions, "id = ?")
		args = append(args, filter.ID)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues`+where+` ORDER BY priority ASC, created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	parent := `SELECT id FROM issues` + where
	comments, err := s.listComments(ctx, parent, args)
	if err != nil {
		return nil, err
	}
	actions, err := s.listActions(ctx, parent, args)
	if err != nil {
		return nil, err
	}

	attachRelations(issues, comments, actions)
	return issues, nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	issues, err := s.ListIssues(ctx, IssueListFilter{ID: id})
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("issue %w: %s", ErrNotFound, id)
	}
	return issues[0], nil
}

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = newULID()
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Name, issue.Description, issue.Priority, string(issue.Status), issue.CreatedAt, issue.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	issue.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE issues SET name=?, description=?, priority=?, status=?, updated_at=? WHERE id=?`,
		issue.Name, issue.Description, issue.Priority, string(issue.Status), issue.UpdatedAt, issue.ID,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	return checkAffected(result, "issue", issue.ID)
}

func (s *SQLiteStore) DeleteIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	return checkAffected(result, "issue", id)
}

func checkAffected(result sql.Result, entity, id string) error {
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s %w: %s", entity, ErrNotFound, id)
	}
	return nil
}

// --- Comments ---

func (s *SQLiteStore) listComments(ctx context.Context, parent string, args []any) ([]*models.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, issue_id, comment_text, created_at, updated_at FROM comments
		WHERE issue_id IN (`+parent+`) ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*models.Comment
	for rows.Next() {
		c := &models.Comment{}
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Text, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *SQLiteStore) CreateComment(ctx context.Context, c *models.Comment) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (id, issue_id, comment_text, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.IssueID, c.Text, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateComment(ctx context.Context, id, text string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE comments SET comment_text=?, updated_at=? WHERE id=?`, text, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return checkAffected(result, "comment", id)
}

func (s *SQLiteStore) DeleteComment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM comments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return checkAffected(result, "comment", id)
}

// --- Actions ---

func (s *SQLiteStore) listActions(ctx context.Context, parent string, args []any) ([]*models.Action, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, issue_id, action_text, name_text, date_deadline, status, created_at, updated_at FROM actions
		WHERE issue_id IN (`+parent+`) ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []*models.Action
	for rows.Next() {
		a := &models.Action{}
		var status string
		var deadline sql.NullTime
		if err := rows.Scan(&a.ID, &a.IssueID, &a.Text, &a.Assignee, &deadline, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Status = models.ActionStatus(status)
		if deadline.Valid {
			a.Deadline = &deadline.Time
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (s *SQLiteStore) CreateAction(ctx context.Context, a *models.Action) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (id, issue_id, action_text, name_text, date_deadline, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.IssueID, a.Text, a.Assignee, nullDate(a.Deadline), string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateAction(ctx context.Context, a *models.Action) error {
	a.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE actions SET action_text=?, name_text=?, date_deadline=?, status=?, updated_at=? WHERE id=?`,
		a.Text, a.Assignee, nullDate(a.Deadline), string(a.Status), a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	return checkAffected(result, "action", a.ID)
}

func (s *SQLiteStore) DeleteAction(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM actions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return checkAffected(result, "action", id)
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = newULID()
	}
	u.Email = NormalizeEmail(u.Email)
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FullName, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("user already registered: %s", u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getUser(ctx context.Context, column, value string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, password_hash, created_at FROM users WHERE `+column+` = ?`, value,
	).Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %w: %s", ErrNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email", NormalizeEmail(email))
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, "id", id)
}
