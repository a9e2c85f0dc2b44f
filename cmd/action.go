package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/format"
	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/store"
)

var (
	actionText     string
	actionAssignee string
	actionDeadline string
	actionStatus   string
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Manage follow-up actions on issues",
}

var actionAddCmd = &cobra.Command{
	Use:   "add <issue-id>",
	Short: "Add a follow-up action to an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return actionAddRun(args[0])
	},
}

var actionUpdateCmd = &cobra.Command{
	Use:   "update <action-id>",
	Short: "Update an action",
	Long:  "Update an action. Pass --deadline none to clear the deadline.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return actionUpdateRun(args[0])
	},
}

var actionDeleteCmd = &cobra.Command{
	Use:     "delete <action-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an action",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return actionDeleteRun(args[0])
	},
}

func init() {
	actionAddCmd.Flags().StringVar(&actionText, "text", "", "What needs to happen (required)")
	actionAddCmd.Flags().StringVar(&actionAssignee, "assignee", "", "Who is responsible")
	actionAddCmd.Flags().StringVar(&actionDeadline, "deadline", "", "Deadline (YYYY-MM-DD)")
	actionAddCmd.Flags().StringVar(&actionStatus, "status", "pending", "Status: pending, in-progress, completed")
	_ = actionAddCmd.MarkFlagRequired("text")

	actionUpdateCmd.Flags().StringVar(&actionText, "text", "", "New text")
	actionUpdateCmd.Flags().StringVar(&actionAssignee, "assignee", "", "New assignee")
	actionUpdateCmd.Flags().StringVar(&actionDeadline, "deadline", "", "New deadline (YYYY-MM-DD, or none)")
	actionUpdateCmd.Flags().StringVar(&actionStatus, "status", "", "New status")

	actionCmd.AddCommand(actionAddCmd)
	actionCmd.AddCommand(actionUpdateCmd)
	actionCmd.AddCommand(actionDeleteCmd)
	rootCmd.AddCommand(actionCmd)
}

func actionAddRun(issueRef string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	m, err := getModel()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := store.FindIssue(ctx, s, issueRef)
	if err != nil {
		return err
	}

	in := issues.ActionInput{
		Text:     actionText,
		Assignee: actionAssignee,
		Deadline: actionDeadline,
		Status:   actionStatus,
	}

	if dryRun {
		ui.DryRunMsg("Would add action to %s: %s", issue.Name, actionText)
		return nil
	}

	if err := resultErr(m.AddAction(ctx, issue.ID, in)); err != nil {
		return fmt.Errorf("add action: %w", err)
	}
	ui.Success("Added action to %s: %s", output.Cyan(issue.Name), actionText)
	return nil
}

func actionUpdateRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	m, err := getModel()
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := store.FindAction(ctx, s, ref)
	if err != nil {
		return err
	}

	in := issues.ActionInput{
		Text:     a.Text,
		Assignee: a.Assignee,
		Status:   string(a.Status),
	}
	if a.Deadline != nil {
		in.Deadline = a.Deadline.Format(format.DateInput)
	}

	changed := false
	if actionText != "" {
		in.Text = actionText
		changed = true
	}
	if actionAssignee != "" {
		in.Assignee = actionAssignee
		changed = true
	}
	if actionDeadline != "" {
		in.Deadline = actionDeadline
		if actionDeadline == "none" {
			in.Deadline = ""
		}
		changed = true
	}
	if actionStatus != "" {
		in.Status = actionStatus
		changed = true
	}

	if !changed {
		return fmt.Errorf("no updates specified (use --text, --assignee, --deadline, or --status)")
	}

	if dryRun {
		ui.DryRunMsg("Would update action %s", shortID(a.ID))
		return nil
	}

	if err := resultErr(m.UpdateAction(ctx, a.ID, in)); err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	ui.Success("Updated action %s", output.Cyan(shortID(a.ID)))
	return nil
}

func actionDeleteRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	m, err := getModel()
	if err != nil {
		return err
	}
	ctx := context.Background()

	a, err := store.FindAction(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete action %s: %s", shortID(a.ID), a.Text)
		return nil
	}

	if err := resultErr(m.DeleteAction(ctx, a.ID)); err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	ui.Success("Deleted action %s", output.Cyan(shortID(a.ID)))
	return nil
}
