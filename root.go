package main

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/hidrive-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Resolved

// keepAliveInterval is the TCP keep-alive period for API connections.
const keepAliveInterval = 30 * time.Second

// skipConfigCommands never touch configuration.
var skipConfigCommands = map[string]bool{
	"hidrive-go help":       true,
	"hidrive-go completion": true,
}

// noClientCommands load configuration but never talk to the API, so a
// missing client_id is not an error for them.
var noClientCommands = map[string]bool{
	"hidrive-go logout": true,
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "hidrive-go",
		Short:   "HiDrive CLI client",
		Long:    "A command-line client for STRATO HiDrive storage.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newCpCmd())
	cmd.AddCommand(newRenameCmd())
	cmd.AddCommand(newURLCmd())
	cmd.AddCommand(newHashCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// skipsConfig reports whether cmd or one of its parents is config-free.
func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if skipConfigCommands[c.CommandPath()] {
			return true
		}
	}

	return false
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli, !noClientCommands[cmd.CommandPath()])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

var (
	logOutputOnce sync.Once
	logOutput     io.Writer = os.Stderr
)

// logWriter returns the configured log file, or stderr. The file is opened
// once and stays open for the life of the process.
func logWriter() io.Writer {
	logOutputOnce.Do(func() {
		if resolvedCfg == nil || resolvedCfg.LogFile == "" {
			return
		}

		f, err := os.OpenFile(resolvedCfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot open log file %s: %v\n", resolvedCfg.LogFile, err)
			return
		}

		logOutput = f
	})

	return logOutput
}

// logLevel derives the level from config, then CLI flags (which always win).
func logLevel() slog.Level {
	level := slog.LevelWarn

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return level
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags.
func buildLogger() *slog.Logger {
	return newLogger(logWriter(), logLevel())
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	if resolvedCfg != nil && resolvedCfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// newHTTPClient builds the client shared by the API and the token endpoint.
// There is no overall timeout: transfers stream for as long as they take, and
// stalls are bounded by the connect and response-header timeouts.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: keepAliveInterval,
	}

	tr, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{}
	}

	tr = tr.Clone()
	tr.DialContext = dialer.DialContext
	tr.TLSHandshakeTimeout = cfg.ConnectTimeout
	tr.ResponseHeaderTimeout = cfg.DataTimeout

	if cfg.ForceHTTP11 {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	return &http.Client{Transport: tr}
}

// userAgent returns the configured User-Agent or one naming this build.
func userAgent(cfg *config.Resolved) string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}

	return "hidrive-go/" + version
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
