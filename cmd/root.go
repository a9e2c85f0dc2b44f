package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tracker/internal/auth"
	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/realtime"
	"github.com/joescharf/tracker/internal/store"
)

// Storage backends selected by the "backend" key.
const (
	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	hub       *realtime.Hub
	logLevel  = new(slog.LevelVar)

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Tracker - issues, comments, and follow-up actions",
	Long: `tracker keeps a prioritized list of issues with their comments and
follow-up actions. It runs against a local SQLite file or a hosted
PostgreSQL database, pushes live updates to every connected view, and
produces printable reports.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/tracker/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "tracker")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRACKER")
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "tracker"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key rooted at stateDir.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("backend", backendSQLite)
	viper.SetDefault("db_path", filepath.Join(stateDir, "tracker.db"))
	viper.SetDefault("database_url", "")
	viper.SetDefault("api_key", "")
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.session_file", filepath.Join(stateDir, "session.json"))
	viper.SetDefault("auth.session_ttl", auth.DefaultSessionTTL.String())
	viper.SetDefault("realtime.watch_file", false)
	viper.SetDefault("port", 8080)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Runtime logs stay quiet for one-shot commands unless -v is given.
	logLevel.Set(slog.LevelWarn)
	if verbose {
		logLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Store is opened lazily so config/version commands run without a db.
}

// getHub returns the shared realtime hub.
func getHub() *realtime.Hub {
	if hub == nil {
		hub = realtime.NewHub(slog.Default())
	}
	return hub
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	var s store.Store
	switch backend := viper.GetString("backend"); backend {
	case backendSQLite, "":
		ss, err := store.NewSQLiteStore(viper.GetString("db_path"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s = ss
	case backendPostgres:
		url := viper.GetString("database_url")
		if url == "" {
			slog.Error("database_url is not configured", "backend", backend)
		}
		if viper.GetString("api_key") == "" {
			slog.Error("api_key is not configured", "backend", backend)
		}
		ps, err := store.NewPostgresStore(rootCtx(), url)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s = ps
	default:
		return nil, fmt.Errorf("unknown backend: %s (use: sqlite, postgres)", backend)
	}

	if err := s.Migrate(rootCtx()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// Postgres triggers announce their own changes; SQLite writes made by
	// this process are announced in-process.
	if viper.GetString("backend") != backendPostgres {
		s = store.Notifying(s, getHub())
	}

	dataStore = s
	return dataStore, nil
}

// getModel creates an issue view-model over the shared store and hub.
func getModel() (*issues.Model, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return issues.New(s, getHub(), issues.WithLogger(slog.Default())), nil
}

// getAuthService creates the auth service from the auth.* config keys. The
// session file is only used when persist is set; the API server hands
// tokens to its clients instead.
func getAuthService(persist bool) (*auth.Service, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	ttl, err := time.ParseDuration(viper.GetString("auth.session_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth.session_ttl: %w", err)
	}
	cfg := auth.Config{
		JWTSecret:  viper.GetString("auth.jwt_secret"),
		SessionTTL: ttl,
	}
	if persist {
		cfg.SessionFile = viper.GetString("auth.session_file")
	}
	return auth.NewService(s, cfg)
}

// startRealtime starts the change source for the configured backend and
// returns a function that stops it. Without a source the hub still receives
// this process's own writes.
func startRealtime(ctx context.Context) (stop func(), err error) {
	logger := slog.Default()
	switch viper.GetString("backend") {
	case backendPostgres:
		ctx, cancel := context.WithCancel(ctx)
		l := realtime.NewPGListener(viper.GetString("database_url"), getHub(), logger)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = l.Run(ctx)
		}()
		return func() { cancel(); <-done }, nil
	default:
		if !viper.GetBool("realtime.watch_file") {
			return func() {}, nil
		}
		fw := realtime.NewFileWatcher(viper.GetString("db_path"), 250*time.Millisecond, getHub(), logger)
		if err := fw.Start(ctx); err != nil {
			return nil, err
		}
		return func() { _ = fw.Close() }, nil
	}
}

func rootCtx() context.Context {
	if ctx := rootCmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
