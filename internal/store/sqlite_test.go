package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func newIssue(name string, priority int, status models.IssueStatus) *models.Issue {
	return &models.Issue{Name: name, Description: name + " description", Priority: priority, Status: status}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Issue CRUD ---

func TestIssueCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Create
	issue := newIssue("Roof leak", 2, models.IssueStatusCurrent)
	require.NoError(t, s.CreateIssue(ctx, issue))
	assert.NotEmpty(t, issue.ID)
	assert.False(t, issue.CreatedAt.IsZero())

	// Get
	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Roof leak", got.Name)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, models.IssueStatusCurrent, got.Status)
	assert.NotNil(t, got.Comments)
	assert.NotNil(t, got.Actions)
	assert.Empty(t, got.Comments)

	// Update
	got.Status = models.IssueStatusParked
	got.Priority = 4
	require.NoError(t, s.UpdateIssue(ctx, got))

	updated, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusParked, updated.Status)
	assert.Equal(t, 4, updated.Priority)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	// Delete
	require.NoError(t, s.DeleteIssue(ctx, issue.ID))
	_, err = s.GetIssue(ctx, issue.ID)
	assert.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestListIssues_Ordering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateIssue(ctx, newIssue("low", 5, models.IssueStatusCurrent)))
	require.NoError(t, s.CreateIssue(ctx, newIssue("top-first", 1, models.IssueStatusCurrent)))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.CreateIssue(ctx, newIssue("top-second", 1, models.IssueStatusParked)))

	issues, err := s.ListIssues(ctx, IssueListFilter{})
	require.NoError(t, err)
	require.Len(t, issues, 3)
	assert.Equal(t, "top-first", issues[0].Name)
	assert.Equal(t, "top-second", issues[1].Name)
	assert.Equal(t, "low", issues[2].Name)

	parked, err := s.ListIssues(ctx, IssueListFilter{Status: models.IssueStatusParked})
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, "top-second", parked[0].Name)
}

func TestListIssues_Empty(t *testing.T) {
	s := newTestStore(t)

	issues, err := s.ListIssues(context.Background(), IssueListFilter{})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestIssue_InvalidPriorityRejected(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateIssue(context.Background(), newIssue("bad", 9, models.IssueStatusCurrent))
	assert.Error(t, err)
}

func TestUpdateDelete_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpdateIssue(ctx, &models.Issue{ID: "missing", Name: "x", Priority: 3, Status: models.IssueStatusCurrent})
	assert.True(t, IsNotFound(err))

	assert.True(t, IsNotFound(s.DeleteIssue(ctx, "missing")))
	assert.True(t, IsNotFound(s.DeleteComment(ctx, "missing")))
	assert.True(t, IsNotFound(s.DeleteAction(ctx, "missing")))
	assert.True(t, IsNotFound(s.UpdateComment(ctx, "missing", "text")))
}

// --- Comments ---

func TestCommentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := newIssue("Pump", 3, models.IssueStatusCurrent)
	require.NoError(t, s.CreateIssue(ctx, issue))

	first := &models.Comment{IssueID: issue.ID, Text: "first"}
	require.NoError(t, s.CreateComment(ctx, first))
	time.Sleep(2 * time.Millisecond)
	second := &models.Comment{IssueID: issue.ID, Text: "second"}
	require.NoError(t, s.CreateComment(ctx, second))

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 2)
	assert.Equal(t, "first", got.Comments[0].Text)
	assert.Equal(t, "second", got.Comments[1].Text)

	require.NoError(t, s.UpdateComment(ctx, first.ID, "edited"))
	require.NoError(t, s.DeleteComment(ctx, second.ID))

	got, err = s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "edited", got.Comments[0].Text)
}

func TestComment_UnknownIssue(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateComment(context.Background(), &models.Comment{IssueID: "nope", Text: "orphan"})
	assert.Error(t, err, "foreign key should reject orphan comments")
}

// --- Actions ---

func TestActionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := newIssue("Fence", 2, models.IssueStatusCurrent)
	require.NoError(t, s.CreateIssue(ctx, issue))

	deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	a := &models.Action{IssueID: issue.ID, Text: "Call contractor", Assignee: "Sam", Deadline: &deadline, Status: models.ActionStatusPending}
	require.NoError(t, s.CreateAction(ctx, a))

	noDeadline := &models.Action{IssueID: issue.ID, Text: "Buy posts", Status: models.ActionStatusPending}
	require.NoError(t, s.CreateAction(ctx, noDeadline))

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, got.Actions, 2)

	byID := map[string]*models.Action{}
	for _, act := range got.Actions {
		byID[act.ID] = act
	}
	require.NotNil(t, byID[a.ID].Deadline)
	assert.True(t, deadline.Equal(*byID[a.ID].Deadline))
	assert.Equal(t, "Sam", byID[a.ID].Assignee)
	assert.Nil(t, byID[noDeadline.ID].Deadline)

	a.Status = models.ActionStatusCompleted
	a.Deadline = nil
	require.NoError(t, s.UpdateAction(ctx, a))

	got, err = s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	for _, act := range got.Actions {
		if act.ID == a.ID {
			assert.Equal(t, models.ActionStatusCompleted, act.Status)
			assert.Nil(t, act.Deadline)
		}
	}

	require.NoError(t, s.DeleteAction(ctx, noDeadline.ID))
	got, err = s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, got.Actions, 1)
}

func TestDeleteIssue_CascadesChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := newIssue("Gutter", 3, models.IssueStatusCurrent)
	require.NoError(t, s.CreateIssue(ctx, issue))
	c := &models.Comment{IssueID: issue.ID, Text: "note"}
	require.NoError(t, s.CreateComment(ctx, c))
	a := &models.Action{IssueID: issue.ID, Text: "clean", Status: models.ActionStatusPending}
	require.NoError(t, s.CreateAction(ctx, a))

	require.NoError(t, s.DeleteIssue(ctx, issue.ID))

	assert.True(t, IsNotFound(s.DeleteComment(ctx, c.ID)))
	assert.True(t, IsNotFound(s.DeleteAction(ctx, a.ID)))
}

// --- Users ---

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{Email: " Alice@Example.com ", FullName: "Alice", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.Equal(t, "alice@example.com", u.Email)

	got, err := s.GetUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Alice", got.FullName)
	assert.Equal(t, "hash", got.PasswordHash)

	byID, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	err = s.CreateUser(ctx, &models.User{Email: "alice@example.com", PasswordHash: "x"})
	assert.ErrorContains(t, err, "already registered")

	_, err = s.GetUserByEmail(ctx, "bob@example.com")
	assert.True(t, IsNotFound(err))
}
