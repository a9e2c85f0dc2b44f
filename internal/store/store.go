package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/joescharf/tracker/internal/models"
)

// ErrNotFound is wrapped by errors for rows that do not exist.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || (err != nil && strings.Contains(err.Error(), "not found"))
}

// IssueListFilter narrows ListIssues. The zero value lists everything.
type IssueListFilter struct {
	Status models.IssueStatus
	ID     string
}

// Store defines the persistence interface for tracker.
type Store interface {
	// Issues are returned with their comments and actions, ordered by
	// priority ascending then creation time ascending.
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	CreateIssue(ctx context.Context, issue *models.Issue) error
	UpdateIssue(ctx context.Context, issue *models.Issue) error
	DeleteIssue(ctx context.Context, id string) error

	// Comments
	CreateComment(ctx context.Context, c *models.Comment) error
	UpdateComment(ctx context.Context, id, text string) error
	DeleteComment(ctx context.Context, id string) error

	// Actions
	CreateAction(ctx context.Context, a *models.Action) error
	UpdateAction(ctx context.Context, a *models.Action) error
	DeleteAction(ctx context.Context, id string) error

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// attachRelations distributes comments and actions onto their issues and
// orders them by creation time. Issues always get non-nil slices.
func attachRelations(issues []*models.Issue, comments []*models.Comment, actions []*models.Action) {
	byID := make(map[string]*models.Issue, len(issues))
	for _, issue := range issues {
		issue.Comments = []*models.Comment{}
		issue.Actions = []*models.Action{}
		byID[issue.ID] = issue
	}
	for _, c := range comments {
		if issue, ok := byID[c.IssueID]; ok {
			issue.Comments = append(issue.Comments, c)
		}
	}
	for _, a := range actions {
		if issue, ok := byID[a.IssueID]; ok {
			issue.Actions = append(issue.Actions, a)
		}
	}
	for _, issue := range issues {
		sort.SliceStable(issue.Comments, func(i, j int) bool {
			return issue.Comments[i].CreatedAt.Before(issue.Comments[j].CreatedAt)
		})
		sort.SliceStable(issue.Actions, func(i, j int) bool {
			return issue.Actions[i].CreatedAt.Before(issue.Actions[j].CreatedAt)
		})
	}
}

// NormalizeEmail lowercases and trims an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
