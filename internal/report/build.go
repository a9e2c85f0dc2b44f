package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/tracker/internal/format"
	"github.com/joescharf/tracker/internal/models"
)

// Options selects what a report includes.
type Options struct {
	Since     *time.Time
	Current   bool
	Parked    bool
	Completed bool
}

// DefaultOptions includes every status and all changes.
func DefaultOptions() Options {
	return Options{Current: true, Parked: true, Completed: true}
}

// Report is a filtered, grouped snapshot of the issue list.
type Report struct {
	Title   string `json:"title"`
	Date    string `json:"date"`
	Summary string `json:"summary"`
	Groups  Groups `json:"groups"`
}

// Build filters and groups issues according to opts. Excluded statuses are
// left empty in the returned groups.
func Build(issues []*models.Issue, opts Options, now time.Time) *Report {
	g := GroupIssuesByStatus(FilterIssues(issues, opts.Since))
	if !opts.Current {
		g.Current = nil
	}
	if !opts.Parked {
		g.Parked = nil
	}
	if !opts.Completed {
		g.Completed = nil
	}
	return &Report{
		Title:   "Issues Report",
		Date:    TodayDate(now),
		Summary: FilterSummary(opts.Current, opts.Parked, opts.Completed, opts.Since),
		Groups:  g,
	}
}

// ParseOptions builds Options from a YYYY-MM-DD cutoff and a comma separated
// status list. Empty values select all changes and every status.
func ParseOptions(since, statuses string) (Options, error) {
	opts := DefaultOptions()
	if since != "" {
		t, err := format.ParseDate(since)
		if err != nil {
			return opts, fmt.Errorf("invalid since date: %s", since)
		}
		opts.Since = t
	}
	if strings.TrimSpace(statuses) == "" {
		return opts, nil
	}
	opts.Current, opts.Parked, opts.Completed = false, false, false
	for _, s := range strings.Split(statuses, ",") {
		switch models.IssueStatus(strings.ToLower(strings.TrimSpace(s))) {
		case models.IssueStatusCurrent:
			opts.Current = true
		case models.IssueStatusParked:
			opts.Parked = true
		case models.IssueStatusCompleted:
			opts.Completed = true
		case "":
		default:
			return opts, fmt.Errorf("invalid status: %s", s)
		}
	}
	return opts, nil
}
