package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/format"
	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/report"
	"github.com/joescharf/tracker/internal/store"
)

var (
	issueName     string
	issueDesc     string
	issuePriority string
	issueStatus   string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long:  "Track issues with their priority, status, comments, and follow-up actions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues by priority",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details with comments and actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(args[0])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue with its comments and actions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueName, "name", "", "Issue name (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description (required)")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "3", "Priority 1 (top) to 5 (lowest)")
	issueAddCmd.Flags().StringVar(&issueStatus, "status", "current", "Status: current, parked, completed")
	_ = issueAddCmd.MarkFlagRequired("name")

	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: current, parked, completed")

	issueUpdateCmd.Flags().StringVar(&issueName, "name", "", "New name")
	issueUpdateCmd.Flags().StringVar(&issueDesc, "desc", "", "New description")
	issueUpdateCmd.Flags().StringVar(&issuePriority, "priority", "", "New priority (1-5)")
	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "New status")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

// resultErr turns a failed view-model result into an error.
func resultErr(res issues.Result) error {
	if res.Success {
		return nil
	}
	return errors.New(res.Error)
}

// fetchIssues loads the issue list through the view-model.
func fetchIssues(ctx context.Context) (*issues.Model, []*models.Issue, error) {
	m, err := getModel()
	if err != nil {
		return nil, nil, err
	}
	m.FetchIssues(ctx)
	st := m.State()
	if st.Error != "" {
		return nil, nil, errors.New(st.Error)
	}
	return m, st.Issues, nil
}

func issueAddRun() error {
	m, err := getModel()
	if err != nil {
		return err
	}
	ctx := context.Background()

	in := issues.IssueInput{
		Name:        issueName,
		Description: issueDesc,
		Priority:    issuePriority,
		Status:      issueStatus,
	}

	if dryRun {
		ui.DryRunMsg("Would add issue: %s [%s]", issueName, format.PriorityText(issues.CoercePriority(issuePriority)))
		return nil
	}

	if err := resultErr(m.AddIssue(ctx, in)); err != nil {
		return fmt.Errorf("add issue: %w", err)
	}

	ui.Success("Added issue: %s", issueName)
	return nil
}

func issueListRun() error {
	_, list, err := fetchIssues(context.Background())
	if err != nil {
		return err
	}

	if issueStatus != "" {
		status := models.IssueStatus(issueStatus)
		if !status.Valid() {
			return fmt.Errorf("invalid status: %s", issueStatus)
		}
		filtered := list[:0:0]
		for _, issue := range list {
			if issue.Status == status {
				filtered = append(filtered, issue)
			}
		}
		list = filtered
	}

	if len(list) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	renderIssueTable(list)
	return nil
}

// renderIssueTable prints one row per issue.
func renderIssueTable(list []*models.Issue) {
	table := ui.Table([]string{"ID", "Name", "Priority", "Status", "Actions", "Comments", "Updated"})
	for _, issue := range list {
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Name,
			output.PriorityColor(issue.Priority, format.PriorityText(issue.Priority)),
			output.StatusColor(string(issue.Status)),
			strconv.Itoa(len(report.OutstandingActions(issue.Actions))),
			strconv.Itoa(len(issue.Comments)),
			format.RelativeTime(&issue.UpdatedAt),
		})
	}
	_ = table.Render()
}

func issueShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := store.FindIssue(ctx, s, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Name)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(issue.Priority, format.PriorityText(issue.Priority)))
	fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	fmt.Fprintf(ui.Out, "  Created:    %s\n", format.FormatDateTime(&issue.CreatedAt, ""))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", format.FormatDateTime(&issue.UpdatedAt, ""))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)

	if len(issue.Actions) > 0 {
		fmt.Fprintf(ui.Out, "\nActions (%d)\n", len(issue.Actions))
		table := ui.Table([]string{"ID", "Action", "Assignee", "Deadline", "Status"})
		for _, a := range issue.Actions {
			deadline := ""
			if a.Deadline != nil {
				deadline = output.Overdue(format.FormatDeadline(a.Deadline), format.IsOverdue(a.Deadline) && a.Status != models.ActionStatusCompleted)
			}
			_ = table.Append([]string{shortID(a.ID), a.Text, a.Assignee, deadline, output.StatusColor(string(a.Status))})
		}
		_ = table.Render()
	}

	if len(issue.Comments) > 0 {
		fmt.Fprintf(ui.Out, "\nComments (%d)\n", len(issue.Comments))
		for _, c := range issue.Comments {
			fmt.Fprintf(ui.Out, "  %s  %s\n    %s\n", output.Cyan(shortID(c.ID)), format.FormatDateTime(&c.CreatedAt, ""), c.Text)
		}
	}

	return nil
}

func issueUpdateRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	m, err := getModel()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := store.FindIssue(ctx, s, id)
	if err != nil {
		return err
	}

	in := issues.IssueInput{
		Name:        issue.Name,
		Description: issue.Description,
		Priority:    issue.Priority,
		Status:      string(issue.Status),
	}
	changed := false
	if issueName != "" {
		in.Name = issueName
		changed = true
	}
	if issueDesc != "" {
		in.Description = issueDesc
		changed = true
	}
	if issuePriority != "" {
		in.Priority = issuePriority
		changed = true
	}
	if issueStatus != "" {
		in.Status = issueStatus
		changed = true
	}

	if !changed {
		return fmt.Errorf("no updates specified (use --name, --desc, --priority, or --status)")
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s", shortID(issue.ID))
		return nil
	}

	if err := resultErr(m.UpdateIssue(ctx, issue.ID, in)); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}

	ui.Success("Updated issue %s", output.Cyan(shortID(issue.ID)))
	return nil
}

func issueDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	m, err := getModel()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := store.FindIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", shortID(issue.ID), issue.Name)
		return nil
	}

	if err := resultErr(m.DeleteIssue(ctx, issue.ID)); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}

	ui.Success("Deleted issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Name)
	return nil
}

// shortID returns a truncated id for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
