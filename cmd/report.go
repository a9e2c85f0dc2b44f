package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tracker/internal/format"
	"github.com/joescharf/tracker/internal/llm"
	"github.com/joescharf/tracker/internal/report"
)

var (
	reportFormat    string
	reportSince     string
	reportRecent    bool
	reportCurrent   bool
	reportParked    bool
	reportCompleted bool
	reportSummarize bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print an issues report grouped by status",
	Long: `Print a report of issues grouped into current, parked, and completed.

Without status flags every status is included. --since keeps only issues
that were created, updated, commented on, or had an action change on or
after the given date. --recent is shorthand for the last month.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun()
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", report.FormatMarkdown, "Output format: markdown, json, csv")
	reportCmd.Flags().StringVar(&reportSince, "since", "", "Only include changes on or after this date (YYYY-MM-DD)")
	reportCmd.Flags().BoolVar(&reportRecent, "recent", false, "Only include changes from the last month")
	reportCmd.Flags().BoolVar(&reportCurrent, "current", false, "Include current issues")
	reportCmd.Flags().BoolVar(&reportParked, "parked", false, "Include parked issues")
	reportCmd.Flags().BoolVar(&reportCompleted, "completed", false, "Include completed issues")
	reportCmd.Flags().BoolVar(&reportSummarize, "summarize", false, "Append an AI-written briefing (needs anthropic.api_key)")
	reportCmd.MarkFlagsMutuallyExclusive("since", "recent")
	rootCmd.AddCommand(reportCmd)
}

// reportOptions builds report options from the command flags.
func reportOptions(now time.Time) (report.Options, error) {
	var statuses []string
	if reportCurrent {
		statuses = append(statuses, "current")
	}
	if reportParked {
		statuses = append(statuses, "parked")
	}
	if reportCompleted {
		statuses = append(statuses, "completed")
	}

	since := reportSince
	if reportRecent {
		since = report.DefaultFilterDate(now).Format(format.DateInput)
	}
	return report.ParseOptions(since, strings.Join(statuses, ","))
}

func reportRun() error {
	ctx := context.Background()
	now := time.Now()

	opts, err := reportOptions(now)
	if err != nil {
		return err
	}

	_, list, err := fetchIssues(ctx)
	if err != nil {
		return err
	}
	rep := report.Build(list, opts, now)

	if err := report.Write(ui.Out, rep, reportFormat); err != nil {
		return err
	}

	if !reportSummarize {
		return nil
	}
	client, err := summaryClient()
	if err != nil {
		return err
	}
	ui.VerboseLog("Requesting summary from %s", viper.GetString("anthropic.model"))
	summary, err := client.SummarizeReport(ctx, rep)
	if err != nil {
		return fmt.Errorf("summarize report: %w", err)
	}
	fmt.Fprintf(ui.Out, "\n## Summary\n\n%s\n", summary)
	return nil
}

// summaryClient builds the briefing client for --summarize. The key comes
// from anthropic.api_key, then ANTHROPIC_API_KEY.
func summaryClient() (*llm.Client, error) {
	key := viper.GetString("anthropic.api_key")
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("--summarize needs anthropic.api_key (or ANTHROPIC_API_KEY)")
	}
	return llm.NewClient(key, viper.GetString("anthropic.model")), nil
}
