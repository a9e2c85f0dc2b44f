package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joescharf/tracker/internal/models"
)

const pgMigrationsTable = "tracker_migrations"

// PostgresStore implements Store on a hosted PostgreSQL database. Row
// changes are broadcast by the tracker_notify trigger and picked up by
// realtime.PGListener.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects a pool to databaseURL and verifies it with a ping.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func migrationChecksum(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// Migrate applies the embedded postgres migrations, one transaction each.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+pgMigrationsTable+` (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		checksum TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	names, err := migrationFiles("postgres")
	if err != nil {
		return err
	}

	for _, name := range names {
		var count int
		if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+pgMigrationsTable+` WHERE name = $1`, name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/postgres/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO `+pgMigrationsTable+` (name, checksum) VALUES ($1, $2)`, name, migrationChecksum(data)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// validID reports whether id can be a row key. Anything else cannot exist.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func pgAffected(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %w: %s", entity, ErrNotFound, id)
	}
	return nil
}

// --- Issues ---

func (s *PostgresStore) ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error) {
	var conditions []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ID != "" {
		if !validID(filter.ID) {
			return []*models.Issue{}, nil
		}
		args = append(args, filter.ID)
		conditions = append(conditions, fmt.Sprintf("id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, name, description, priority, status, created_at, updated_at
		FROM issues`+where+` ORDER BY priority ASC, created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	issues, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Issue, error) {
		return scanIssue(row)
	})
	if err != nil {
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

func (s *PostgresStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	issues, err := s.ListIssues(ctx, IssueListFilter{ID: id})
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("issue %w: %s", ErrNotFound, id)
	}
	return issues[0], nil
}

func (s *PostgresStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO issues (name, description, priority, status) VALUES ($1, $2, $3, $4)
		RETURNING id::text, created_at, updated_at`,
		issue.Name, issue.Description, issue.Priority, string(issue.Status),
	).Scan(&issue.ID, &issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	if !validID(issue.ID) {
		return fmt.Errorf("issue %w: %s", ErrNotFound, issue.ID)
	}
	issue.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE issues SET name=$1, description=$2, priority=$3, status=$4, updated_at=$5 WHERE id=$6`,
		issue.Name, issue.Description, issue.Priority, string(issue.Status), issue.UpdatedAt, issue.ID,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	return pgAffected(tag, "issue", issue.ID)
}

func (s *PostgresStore) DeleteIssue(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "issues", "issue", id)
}

func (s *PostgresStore) deleteRow(ctx context.Context, table, entity, id string) error {
	if !validID(id) {
		return fmt.Errorf("%s %w: %s", entity, ErrNotFound, id)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", entity, err)
	}
	return pgAffected(tag, entity, id)
}

// --- Comments ---

func (s *PostgresStore) listComments(ctx context.Context, parent string, args []any) ([]*models.Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, issue_id::text, comment_text, created_at, updated_at FROM comments
		WHERE issue_id IN (`+parent+`) ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	comments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Comment, error) {
		c := &models.Comment{}
		err := row.Scan(&c.ID, &c.IssueID, &c.Text, &c.CreatedAt, &c.UpdatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan comment: %w", err)
	}
	return comments, nil
}

func (s *PostgresStore) CreateComment(ctx context.Context, c *models.Comment) error {
	if !validID(c.IssueID) {
		return fmt.Errorf("create comment: issue %w: %s", ErrNotFound, c.IssueID)
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO comments (issue_id, comment_text) VALUES ($1, $2)
		RETURNING id::text, created_at, updated_at`,
		c.IssueID, c.Text,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateComment(ctx context.Context, id, text string) error {
	if !validID(id) {
		return fmt.Errorf("comment %w: %s", ErrNotFound, id)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE comments SET comment_text=$1, updated_at=NOW() WHERE id=$2`, text, id)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return pgAffected(tag, "comment", id)
}

func (s *PostgresStore) DeleteComment(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "comments", "comment", id)
}

// --- Actions ---

func (s *PostgresStore) listActions(ctx context.Context, parent string, args []any) ([]*models.Action, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, issue_id::text, action_text, name_text, date_deadline, status, created_at, updated_at
		FROM actions WHERE issue_id IN (`+parent+`) ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	actions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Action, error) {
		a := &models.Action{}
		var status string
		err := row.Scan(&a.ID, &a.IssueID, &a.Text, &a.Assignee, &a.Deadline, &status, &a.CreatedAt, &a.UpdatedAt)
		a.Status = models.ActionStatus(status)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan action: %w", err)
	}
	return actions, nil
}

func (s *PostgresStore) CreateAction(ctx context.Context, a *models.Action) error {
	if !validID(a.IssueID) {
		return fmt.Errorf("create action: issue %w: %s", ErrNotFound, a.IssueID)
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO actions (issue_id, action_text, name_text, date_deadline, status) VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, created_at, updated_at`,
		a.IssueID, a.Text, a.Assignee, a.Deadline, string(a.Status),
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAction(ctx context.Context, a *models.Action) error {
	if !validID(a.ID) {
		return fmt.Errorf("action %w: %s", ErrNotFound, a.ID)
	}
	a.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE actions SET action_text=$1, name_text=$2, date_deadline=$3, status=$4, updated_at=$5 WHERE id=$6`,
		a.Text, a.Assignee, a.Deadline, string(a.Status), a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	return pgAffected(tag, "action", a.ID)
}

func (s *PostgresStore) DeleteAction(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "actions", "action", id)
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (email, full_name, password_hash) VALUES ($1, $2, $3)
		RETURNING id::text, created_at`,
		u.Email, u.FullName, u.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("user already registered: %s", u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) getUser(ctx context.Context, column, value string) (*models.User, error) {
	u := &models.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, email, full_name, password_hash, created_at FROM users WHERE `+column+` = $1`, value,
	).Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %w: %s", ErrNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email", NormalizeEmail(email))
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if !validID(id) {
		return nil, fmt.Errorf("user %w: %s", ErrNotFound, id)
	}
	return s.getUser(ctx, "id", id)
}
