package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/hidrive-go/internal/hidrive"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print change notifications until interrupted",
		Long: `Open a notification session and print every event as one JSON line.

The command ends when the server closes the session or on Ctrl-C. It does
not reconnect.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := newCommandSession()
	if err != nil {
		return err
	}

	sub, err := s.client.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to notifications: %w", err)
	}
	defer sub.Close()

	statusf("Watching for changes (Ctrl-C to stop)...\n")

	return printNotifications(ctx, sub, os.Stdout)
}

// notificationSource is the part of *hidrive.Subscription watch consumes.
type notificationSource interface {
	Next(ctx context.Context) (*hidrive.Notification, error)
}

// printNotifications writes each event's raw JSON on its own line until the
// session ends. Cancellation is a normal way to stop. Malformed events are
// skipped.
func printNotifications(ctx context.Context, src notificationSource, w io.Writer) error {
	for {
		n, err := src.Next(ctx)

		var decErr *hidrive.DecodeError

		switch {
		case err == nil:
		case errors.As(err, &decErr):
			statusf("Skipping malformed notification: %v\n", err)
			continue
		case errors.Is(err, io.EOF):
			statusf("Notification session closed by server.\n")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("reading notification: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", n.Raw); err != nil {
			return fmt.Errorf("writing notification: %w", err)
		}
	}
}
