package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tracker/internal/api"
	"github.com/joescharf/tracker/internal/daemon"
	"github.com/joescharf/tracker/internal/format"
)

const stopTimeout = 5 * time.Second

var serveDaemon bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the REST API server with live updates over server-sent events.
By default it listens on port 8080. Use --port to change it and --daemon to
run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveDaemon {
			return serveStartRun()
		}
		return serveRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().BoolVarP(&serveDaemon, "daemon", "d", false, "Run in the background")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))

	serveCmd.AddCommand(serveStatusCmd)
	serveCmd.AddCommand(serveStopCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the state file of the background server.
func pidFile() *daemon.ServerFile {
	return daemon.NewServerFile(filepath.Join(viper.GetString("state_dir"), "tracker-serve.pid"))
}

// serverRecord describes a server with the given PID using the current config.
func serverRecord(pid int) daemon.Record {
	backend := viper.GetString("backend")
	if backend == "" {
		backend = backendSQLite
	}
	return daemon.Record{
		PID:       pid,
		Port:      viper.GetInt("port"),
		Backend:   backend,
		StartedAt: time.Now().UTC(),
	}
}

// serveLogPath returns where the background server writes its output.
func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "tracker-serve.log")
}

// serveRun runs the server in the foreground until interrupted.
func serveRun() error {
	ctx, stop := signal.NotifyContext(context.Background(), daemon.ShutdownSignals()...)
	defer stop()

	if !verbose {
		logLevel.Set(slog.LevelInfo)
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	m, err := getModel()
	if err != nil {
		return err
	}
	defer m.Close()

	authSvc, err := getAuthService(false)
	if err != nil {
		slog.Warn("auth routes disabled", "error", err)
		authSvc = nil
	}

	stopSource, err := startRealtime(ctx)
	if err != nil {
		return err
	}
	defer stopSource()

	m.InitializeRealtime(ctx)
	m.FetchIssues(ctx)

	pf := pidFile()
	if err := pf.Save(serverRecord(os.Getpid())); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() { _ = pf.Remove() }()

	srv := api.NewServer(m, s, authSvc, viper.GetString("api_key")).WithFeed(getHub())
	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Cancelling ctx ends open event streams so Shutdown can finish.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving API", "addr", "http://localhost"+addr, "backend", viper.GetString("backend"))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// serveStartRun launches the server as a detached background process.
func serveStartRun() error {
	pf := pidFile()
	if rec, running := pf.Running(); running {
		return fmt.Errorf("server already running (PID %d, port %d)", rec.PID, rec.Port)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	args := []string{"serve", "--port", fmt.Sprint(viper.GetInt("port"))}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if verbose {
		args = append(args, "--verbose")
	}

	if dryRun {
		ui.DryRunMsg("Would start: %s %v", exe, args)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(pf.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	daemon.Detach(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.Save(serverRecord(child.Process.Pid)); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("Server started (PID %d) on port %d", child.Process.Pid, viper.GetInt("port"))
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	rec, running := pf.Running()
	if !running {
		ui.Info("Server not running")
		return nil
	}
	ui.Success("Server running (PID %d)", rec.PID)
	if rec.Port > 0 {
		ui.Info("URL: http://localhost:%d", rec.Port)
	}
	if rec.Backend != "" {
		ui.Info("Backend: %s", rec.Backend)
	}
	if !rec.StartedAt.IsZero() {
		ui.Info("Started: %s (%s)", format.FormatDateTime(&rec.StartedAt, ""), format.RelativeTime(&rec.StartedAt))
	}
	ui.VerboseLog("PID file: %s", pf.Path)
	ui.VerboseLog("Log file: %s", serveLogPath())
	return nil
}

// serveStopRun asks the server to exit and kills it after stopTimeout.
func serveStopRun() error {
	pf := pidFile()
	rec, running := pf.Running()
	if !running {
		_ = pf.Remove()
		return daemon.ErrNotRunning
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (PID %d)", rec.PID)
		return nil
	}

	forced, err := pf.Stop(stopTimeout)
	if errors.Is(err, daemon.ErrNotRunning) {
		ui.Success("Server stopped (PID %d)", rec.PID)
		return nil
	}
	if err != nil {
		return err
	}
	if forced {
		ui.Warning("Server did not exit in %s, killed PID %d", stopTimeout, rec.PID)
		return nil
	}
	ui.Success("Server stopped (PID %d)", rec.PID)
	return nil
}
