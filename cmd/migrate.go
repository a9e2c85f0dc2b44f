package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Apply pending schema migrations to the configured backend.

Commands migrate on first use as well; run this to prepare a hosted
database ahead of time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateRun()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrateRun() error {
	if dryRun {
		ui.DryRunMsg("Would migrate the %s database", viper.GetString("backend"))
		return nil
	}
	// getStore applies migrations when it opens the database.
	if _, err := getStore(); err != nil {
		return err
	}
	ui.Success("Database is up to date (%s)", viper.GetString("backend"))
	return nil
}
