package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/hidrive-go/internal/hidrive"
	"github.com/tonimelisma/hidrive-go/internal/tokenfile"
)

var errBrowserDisabled = errors.New("browser disabled by --no-browser")

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with HiDrive in the browser",
		Long: `Authenticate with HiDrive using the OAuth2 authorization code flow.

A local callback server receives the redirect from the HiDrive login page.
The resulting token is saved to the token file and refreshed automatically.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().Bool("no-browser", false, "print the authorization URL instead of opening a browser")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved authentication token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated account",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := buildLogger()

	s, err := newSession(resolvedCfg, logger, false)
	if err != nil {
		return err
	}

	noBrowser, err := cmd.Flags().GetBool("no-browser")
	if err != nil {
		return err
	}

	open := openBrowser
	if noBrowser {
		open = func(string) error { return errBrowserDisabled }
	}

	// The URL must stay visible even with --quiet.
	showURL := func(u string) {
		fmt.Fprintf(os.Stderr, "Open this URL to sign in:\n\n  %s\n\n", u)
	}

	if err := hidrive.LoginWithBrowser(ctx, s.tokens, resolvedCfg.CallbackPort, open, showURL, logger); err != nil {
		return err
	}

	u, err := s.client.Me(ctx, hidrive.NewParams().AddString("fields", meFields))
	if err != nil {
		return fmt.Errorf("fetching account after login: %w", err)
	}

	s.cacheUser(u)

	logger.Info("login successful", "account", u.Account)
	statusf("Logged in as %s.\n", u.Account)

	return nil
}

// openBrowser asks the desktop to open u.
func openBrowser(u string) error {
	name, args := "xdg-open", []string{}

	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler"}
	}

	return exec.CommandContext(context.Background(), name, append(args, u)...).Start()
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	if err := tokenfile.Remove(resolvedCfg.TokenFile); err != nil {
		return err
	}

	logger.Info("logout successful", "token_file", resolvedCfg.TokenFile)
	statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Account   string `json:"account"`
	Alias     string `json:"alias,omitempty"`
	Email     string `json:"email,omitempty"`
	Home      string `json:"home"`
	HomeID    string `json:"home_id"`
	Language  string `json:"language,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
	IsOwner   bool   `json:"is_owner"`
	Encrypted bool   `json:"encrypted"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	u, err := s.client.Me(ctx, hidrive.NewParams().AddString("fields", meFields))
	if err != nil {
		return fmt.Errorf("fetching account: %w", err)
	}

	s.cacheUser(u)

	if flagJSON {
		return printJSON(os.Stdout, whoamiOutput{
			Account:   u.Account,
			Alias:     u.Alias,
			Email:     u.Email,
			Home:      u.Home,
			HomeID:    u.HomeID,
			Language:  u.Language,
			IsAdmin:   u.IsAdmin,
			IsOwner:   u.IsOwner,
			Encrypted: u.Encrypted,
		})
	}

	printWhoamiText(u)

	return nil
}

func printWhoamiText(u *hidrive.User) {
	fmt.Printf("Account: %s\n", u.Account)

	if u.Email != "" {
		fmt.Printf("Email:   %s\n", u.Email)
	}

	fmt.Printf("Home:    %s (%s)\n", u.Home, u.HomeID)

	if u.IsAdmin {
		fmt.Println("Role:    admin")
	}
}
