package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joescharf/tracker/internal/format"
	"github.com/joescharf/tracker/internal/models"
)

// Formats accepted by Write.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// Write renders rep to w in the named format.
func Write(w io.Writer, rep *Report, fmtName string) error {
	switch fmtName {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatCSV:
		return WriteCSV(w, rep)
	case FormatMarkdown, "md", "":
		return WriteMarkdown(w, rep)
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", fmtName)
	}
}

type section struct {
	title  string
	status models.IssueStatus
	issues []*Issue
}

func (r *Report) sections() []section {
	return []section{
		{"Current Issues", models.IssueStatusCurrent, r.Groups.Current},
		{"Parked Issues", models.IssueStatusParked, r.Groups.Parked},
		{"Completed Issues", models.IssueStatusCompleted, r.Groups.Completed},
	}
}

// WriteCSV writes one row per issue.
func WriteCSV(w io.Writer, rep *Report) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"ID", "Name", "Status", "Priority", "Outstanding Actions", "Comments", "Created", "Updated"})
	for _, sec := range rep.sections() {
		for _, issue := range sec.issues {
			_ = cw.Write([]string{
				issue.ID,
				issue.Name,
				string(sec.status),
				format.PriorityText(issue.Priority),
				strconv.Itoa(len(issue.OutstandingActions)),
				strconv.Itoa(len(issue.Comments)),
				issue.CreatedAt.Format("2006-01-02"),
				issue.UpdatedAt.Format("2006-01-02"),
			})
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMarkdown writes a printable report grouped by status.
func WriteMarkdown(w io.Writer, rep *Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rep.Title)
	fmt.Fprintf(&b, "%s\n\n", rep.Date)
	fmt.Fprintf(&b, "_%s_\n", rep.Summary)

	if rep.Groups.Len() == 0 {
		b.WriteString("\nNo issues match the selected filters.\n")
	}

	for _, sec := range rep.sections() {
		if len(sec.issues) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%d)\n", sec.title, len(sec.issues))
		for _, issue := range sec.issues {
			fmt.Fprintf(&b, "\n### %s\n\n", issue.Name)
			fmt.Fprintf(&b, "**%s** · %s\n", format.PriorityText(issue.Priority), FormatTimestamp(issue.CreatedAt, issue.UpdatedAt))
			if issue.Description != "" {
				fmt.Fprintf(&b, "\n%s\n", issue.Description)
			}
			if len(issue.OutstandingActions) > 0 {
				b.WriteString("\n**Outstanding actions**\n\n")
				for _, a := range issue.OutstandingActions {
					fmt.Fprintf(&b, "- [%s] %s", a.Status, a.Text)
					if a.Assignee != "" {
						fmt.Fprintf(&b, " (%s)", a.Assignee)
					}
					if a.Deadline != nil {
						fmt.Fprintf(&b, " due %s", format.FormatDeadline(a.Deadline))
						if format.IsOverdue(a.Deadline) {
							b.WriteString(" **overdue**")
						}
					}
					b.WriteString("\n")
				}
			}
			if len(issue.Comments) > 0 {
				b.WriteString("\n**Comments**\n\n")
				for _, c := range issue.Comments {
					fmt.Fprintf(&b, "- %s: %s\n", format.FormatDate(&c.CreatedAt, ""), c.Text)
				}
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
