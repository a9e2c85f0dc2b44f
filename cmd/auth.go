package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/auth"
	"github.com/joescharf/tracker/internal/format"
	"github.com/joescharf/tracker/internal/output"
)

var (
	authEmail    string
	authPassword string
	authName     string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign up, sign in, and manage the CLI session",
	Long: `Manage the signed-in session used by the CLI.

Sessions are signed with auth.jwt_secret and stored in auth.session_file.`,
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authSignupRun()
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authLoginRun()
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authLogoutRun()
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authWhoamiRun()
	},
}

func init() {
	for _, c := range []*cobra.Command{authSignupCmd, authLoginCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "Email address (required)")
		c.Flags().StringVar(&authPassword, "password", "", "Password (required)")
		_ = c.MarkFlagRequired("email")
		_ = c.MarkFlagRequired("password")
	}
	authSignupCmd.Flags().StringVar(&authName, "name", "", "Full name")

	authCmd.AddCommand(authSignupCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authWhoamiCmd)
	rootCmd.AddCommand(authCmd)
}

// getAuthModel returns an initialized auth view-model.
func getAuthModel(ctx context.Context) (*auth.Model, error) {
	svc, err := getAuthService(true)
	if err != nil {
		return nil, err
	}
	m := auth.NewModel(svc, slog.Default())
	m.Initialize(ctx)
	return m, nil
}

func authSignupRun() error {
	ctx := context.Background()
	m, err := getAuthModel(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would sign up %s", authEmail)
		return nil
	}

	res := m.Signup(ctx, authEmail, authPassword, authName)
	if !res.Success {
		return fmt.Errorf("sign up: %s", res.Error)
	}
	ui.Success("Signed up and signed in as %s", output.Cyan(res.Session.User.Email))
	return nil
}

func authLoginRun() error {
	ctx := context.Background()
	m, err := getAuthModel(ctx)
	if err != nil {
		return err
	}

	res := m.Login(ctx, authEmail, authPassword)
	if !res.Success {
		return fmt.Errorf("sign in: %s", res.Error)
	}
	ui.Success("Signed in as %s", output.Cyan(res.Session.User.Email))
	ui.VerboseLog("Session expires %s", format.FormatDateTime(&res.Session.ExpiresAt, ""))
	return nil
}

func authLogoutRun() error {
	ctx := context.Background()
	m, err := getAuthModel(ctx)
	if err != nil {
		return err
	}

	if m.State().User == nil {
		ui.Info("Not signed in.")
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would sign out %s", m.State().User.Email)
		return nil
	}

	m.Logout(ctx)
	if m.State().User != nil {
		return errors.New("sign out failed")
	}
	ui.Success("Signed out")
	return nil
}

func authWhoamiRun() error {
	m, err := getAuthModel(context.Background())
	if err != nil {
		return err
	}

	user := m.State().User
	if user == nil {
		ui.Info("Not signed in.")
		return nil
	}
	name := user.FullName
	if name == "" {
		name = user.Email
	}
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(name), user.Email)
	fmt.Fprintf(ui.Out, "  Member since: %s\n", format.FormatDate(&user.CreatedAt, ""))
	return nil
}
