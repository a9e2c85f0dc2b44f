// Package report derives filtered, sorted and grouped views of an issue list.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/tracker/internal/format"
	"github.com/joescharf/tracker/internal/models"
)

// StatusColor holds the color classes used to render one status section.
type StatusColor struct {
	Header        string `json:"header"`
	Border        string `json:"border"`
	SectionBorder string `json:"section_border"`
	BarColor      string `json:"bar_color"`
}

// StatusColors maps each issue status to its section colors.
var StatusColors = map[models.IssueStatus]StatusColor{
	models.IssueStatusCurrent: {
		Header: "bg-gray-100", Border: "border-gray-300",
		SectionBorder: "border-gray-300", BarColor: "border-blue-500",
	},
	models.IssueStatusParked: {
		Header: "bg-amber-50", Border: "border-amber-200",
		SectionBorder: "border-amber-200", BarColor: "border-amber-500",
	},
	models.IssueStatusCompleted: {
		Header: "bg-green-50", Border: "border-green-200",
		SectionBorder: "border-green-200", BarColor: "border-green-500",
	},
}

// Issue is an issue annotated for reporting.
type Issue struct {
	*models.Issue
	OutstandingActions []*models.Action `json:"outstanding_actions"`
}

// Groups partitions report issues by status.
type Groups struct {
	Current   []*Issue `json:"current"`
	Parked    []*Issue `json:"parked"`
	Completed []*Issue `json:"completed"`
}

// Len returns the total number of issues across all groups.
func (g Groups) Len() int {
	return len(g.Current) + len(g.Parked) + len(g.Completed)
}

// UpdatedSince reports whether ts is set and not before cutoff.
func UpdatedSince(ts time.Time, cutoff time.Time) bool {
	return !ts.IsZero() && !ts.Before(cutoff)
}

// HasRecentChanges reports whether the issue, or any of its comments or
// actions, was modified at or after cutoff. A nil cutoff matches everything.
func HasRecentChanges(issue *models.Issue, cutoff *time.Time) bool {
	if cutoff == nil {
		return true
	}
	if UpdatedSince(issue.UpdatedAt, *cutoff) {
		return true
	}
	for _, c := range issue.Comments {
		if UpdatedSince(c.UpdatedAt, *cutoff) {
			return true
		}
	}
	for _, a := range issue.Actions {
		if UpdatedSince(a.UpdatedAt, *cutoff) {
			return true
		}
	}
	return false
}

// OutstandingActions returns the actions that are not completed.
func OutstandingActions(actions []*models.Action) []*models.Action {
	out := make([]*models.Action, 0, len(actions))
	for _, a := range actions {
		if a.Status != models.ActionStatusCompleted {
			out = append(out, a)
		}
	}
	return out
}

// FilterIssues keeps issues changed since cutoff, attaches their outstanding
// actions and orders them by priority then creation time.
func FilterIssues(issues []*models.Issue, cutoff *time.Time) []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, issue := range issues {
		if !HasRecentChanges(issue, cutoff) {
			continue
		}
		out = append(out, &Issue{
			Issue:              issue,
			OutstandingActions: OutstandingActions(issue.Actions),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GroupIssuesByStatus splits issues into current, parked and completed.
// Issues without a recognised status are treated as current.
func GroupIssuesByStatus(issues []*Issue) Groups {
	var g Groups
	for _, issue := range issues {
		switch issue.Status {
		case models.IssueStatusParked:
			g.Parked = append(g.Parked, issue)
		case models.IssueStatusCompleted:
			g.Completed = append(g.Completed, issue)
		default:
			g.Current = append(g.Current, issue)
		}
	}
	return g
}

// FormatTimestamp renders the creation date, adding the modification date
// when it differs.
func FormatTimestamp(created, updated time.Time) string {
	s := format.FormatDate(&created, "")
	if !updated.IsZero() && !updated.Equal(created) {
		s += " • Modified: " + format.FormatDate(&updated, "")
	}
	return s
}

// DefaultFilterDate returns the date one month before now.
func DefaultFilterDate(now time.Time) time.Time {
	y, m, d := now.AddDate(0, -1, 0).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// TodayDate renders now for report headers ("January 15, 2025").
func TodayDate(now time.Time) string {
	return format.LongDate(now)
}

// FilterSummary describes the active status and date filters.
func FilterSummary(current, parked, completed bool, cutoff *time.Time) string {
	var statuses []string
	if current {
		statuses = append(statuses, "Current")
	}
	if parked {
		statuses = append(statuses, "Parked")
	}
	if completed {
		statuses = append(statuses, "Completed")
	}

	dateInfo := "All changes"
	if cutoff != nil {
		dateInfo = "Changes since " + format.FormatDate(cutoff, "")
	}
	return fmt.Sprintf("Showing: %s • %s", strings.Join(statuses, ", "), dateInfo)
}
