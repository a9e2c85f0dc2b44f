package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/store"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage issue comments",
}

var commentAddCmd = &cobra.Command{
	Use:   "add <issue-id> <text>...",
	Short: "Add a comment to an issue",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentAddRun(args[0], strings.Join(args[1:], " "))
	},
}

var commentUpdateCmd = &cobra.Command{
	Use:   "update <comment-id> <text>...",
	Short: "Replace a comment's text",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentUpdateRun(args[0], strings.Join(args[1:], " "))
	},
}

var commentDeleteCmd = &cobra.Command{
	Use:     "delete <comment-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a comment",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commentDeleteRun(args[0])
	},
}

func init() {
	commentCmd.AddCommand(commentAddCmd)
	commentCmd.AddCommand(commentUpdateCmd)
	commentCmd.AddCommand(commentDeleteCmd)
	rootCmd.AddCommand(commentCmd)
}

func commentAddRun(issueRef, text string) error {
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

	if dryRun {
		ui.DryRunMsg("Would comment on %s: %s", issue.Name, text)
		return nil
	}

	if err := resultErr(m.AddComment(ctx, issue.ID, text)); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	ui.Success("Commented on %s", output.Cyan(issue.Name))
	return nil
}

func commentUpdateRun(ref, text string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	m, err := getModel()
	if err != nil {
		return err
	}
	ctx := context.Background()

	c, err := store.FindComment(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update comment %s", shortID(c.ID))
		return nil
	}

	if err := resultErr(m.UpdateComment(ctx, c.ID, text)); err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	ui.Success("Updated comment %s", output.Cyan(shortID(c.ID)))
	return nil
}

func commentDeleteRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	m, err := getModel()
	if err != nil {
		return err
	}
	ctx := context.Background()

	c, err := store.FindComment(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete comment %s", shortID(c.ID))
		return nil
	}

	if err := resultErr(m.DeleteComment(ctx, c.ID)); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	ui.Success("Deleted comment %s", output.Cyan(shortID(c.ID)))
	return nil
}
