package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tracker"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage tracker configuration.

Running bare 'tracker config' is the same as 'tracker config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# tracker configuration
# See: tracker config show (for effective values and sources)

# State/data directory (default: ~/.config/tracker)
# state_dir: {{ .StateDir }}

# Storage backend: "sqlite" (local file) or "postgres" (hosted)
backend: "{{ .Backend }}"

# SQLite database path (default: ~/.config/tracker/tracker.db)
# db_path: {{ .DBPath }}

# PostgreSQL connection URL, required when backend is "postgres"
database_url: "{{ .DatabaseURL }}"

# API key clients must send in the "apikey" header of API requests
api_key: "{{ .APIKey }}"

# Authentication
auth:
  # Secret used to sign session tokens (required for auth commands)
  jwt_secret: "{{ .JWTSecret }}"

  # Where the CLI keeps the signed-in session
  session_file: "{{ .SessionFile }}"

  # Session lifetime (default: 168h)
  session_ttl: "{{ .SessionTTL }}"

# Live updates
realtime:
  # Watch the SQLite file for writes made by other processes (default: false)
  watch_file: {{ .WatchFile }}

# Report summaries
anthropic:
  # Model used by 'tracker report --summarize'
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	StateDir       string
	Backend        string
	DBPath         string
	DatabaseURL    string
	APIKey         string
	JWTSecret      string
	SessionFile    string
	SessionTTL     string
	WatchFile      bool
	AnthropicModel string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		Backend:        viper.GetString("backend"),
		DBPath:         viper.GetString("db_path"),
		DatabaseURL:    viper.GetString("database_url"),
		APIKey:         viper.GetString("api_key"),
		JWTSecret:      viper.GetString("auth.jwt_secret"),
		SessionFile:    viper.GetString("auth.session_file"),
		SessionTTL:     viper.GetString("auth.session_ttl"),
		WatchFile:      viper.GetBool("realtime.watch_file"),
		AnthropicModel: viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "TRACKER_STATE_DIR"},
	{Key: "backend", EnvVar: "TRACKER_BACKEND"},
	{Key: "db_path", EnvVar: "TRACKER_DB_PATH"},
	{Key: "database_url", EnvVar: "TRACKER_DATABASE_URL", Secret: true},
	{Key: "api_key", EnvVar: "TRACKER_API_KEY", Secret: true},
	{Key: "auth.jwt_secret", EnvVar: "TRACKER_AUTH_JWT_SECRET", Secret: true},
	{Key: "auth.session_file", EnvVar: "TRACKER_AUTH_SESSION_FILE"},
	{Key: "auth.session_ttl", EnvVar: "TRACKER_AUTH_SESSION_TTL"},
	{Key: "realtime.watch_file", EnvVar: "TRACKER_REALTIME_WATCH_FILE"},
	{Key: "port", EnvVar: "TRACKER_PORT"},
	{Key: "anthropic.api_key", EnvVar: "TRACKER_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "TRACKER_ANTHROPIC_MODEL"},
}

// maskSecret hides all but the last four characters of a secret value.
func maskSecret(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(val)
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'tracker config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
