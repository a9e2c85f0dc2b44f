package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/daemon"
	"github.com/joescharf/tracker/internal/format"
	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/output"
)

var (
	watchNoClear bool
	drawMu       sync.Mutex
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the issue list and redraw it on every change",
	Long: `Show the issue list and redraw it whenever an issue, comment, or
action changes. With the postgres backend changes from every client are
seen; with sqlite, set realtime.watch_file to see writes made by other
processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchRun()
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoClear, "no-clear", false, "Append redraws instead of clearing the screen")
	rootCmd.AddCommand(watchCmd)
}

func watchRun() error {
	ctx, stop := signal.NotifyContext(context.Background(), daemon.ShutdownSignals()...)
	defer stop()

	m, err := getModel()
	if err != nil {
		return err
	}
	defer m.Close()

	stopSource, err := startRealtime(ctx)
	if err != nil {
		return err
	}
	defer stopSource()

	unsubscribe := m.Subscribe(func(st issues.State) {
		if st.Loading {
			return
		}
		drawWatch(st)
	})
	defer unsubscribe()

	m.InitializeRealtime(ctx)
	m.FetchIssues(ctx)

	<-ctx.Done()
	fmt.Fprintln(ui.Out)
	return nil
}

// drawWatch renders one frame of the watch view.
func drawWatch(st issues.State) {
	drawMu.Lock()
	defer drawMu.Unlock()

	if !watchNoClear {
		fmt.Fprint(ui.Out, "\033[H\033[2J")
	}
	now := format.Now()
	fmt.Fprintf(ui.Out, "%s  %s\n\n", output.Cyan("tracker watch"), format.FormatDateTime(&now, ""))

	if st.Error != "" {
		ui.Error("%s", st.Error)
	}
	if len(st.Issues) == 0 {
		ui.Info("No issues found.")
		return
	}
	renderIssueTable(st.Issues)
}
