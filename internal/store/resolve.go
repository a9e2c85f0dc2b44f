package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/tracker/internal/models"
)

func hasIDPrefix(id, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(id), strings.ToLower(prefix))
}

// pick returns the single candidate whose id starts with prefix.
func pick[T any](kind, prefix string, items []T, id func(T) string) (T, error) {
	var zero T
	var matches []T
	for _, it := range items {
		if id(it) == prefix {
			return it, nil
		}
		if hasIDPrefix(id(it), prefix) {
			matches = append(matches, it)
		}
	}
	switch len(matches) {
	case 0:
		return zero, fmt.Errorf("%s %w: %s", kind, ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return zero, fmt.Errorf("ambiguous %s ID %s: matches %d %ss", kind, prefix, len(matches), kind)
	}
}

// FindIssue finds an issue by full ID or unique prefix.
func FindIssue(ctx context.Context, s Store, id string) (*models.Issue, error) {
	if issue, err := s.GetIssue(ctx, id); err == nil {
		return issue, nil
	}
	issues, err := s.ListIssues(ctx, IssueListFilter{})
	if err != nil {
		return nil, err
	}
	return pick("issue", id, issues, func(i *models.Issue) string { return i.ID })
}

// FindComment finds a comment by full ID or unique prefix.
func FindComment(ctx context.Context, s Store, id string) (*models.Comment, error) {
	issues, err := s.ListIssues(ctx, IssueListFilter{})
	if err != nil {
		return nil, err
	}
	var all []*models.Comment
	for _, issue := range issues {
		all = append(all, issue.Comments...)
	}
	return pick("comment", id, all, func(c *models.Comment) string { return c.ID })
}

// FindAction finds an action by full ID or unique prefix.
func FindAction(ctx context.Context, s Store, id string) (*models.Action, error) {
	issues, err := s.ListIssues(ctx, IssueListFilter{})
	if err != nil {
		return nil, err
	}
	var all []*models.Action
	for _, issue := range issues {
		all = append(all, issue.Actions...)
	}
	return pick("action", id, all, func(a *models.Action) string { return a.ID })
}
