package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the conventional status for a process killed by SIGINT.
const exitInterrupted = 130

// forceExit is replaced in tests.
var forceExit = os.Exit

// shutdownContext derives a context that is canceled by the first SIGINT or
// SIGTERM, letting running transfers abort and clean up their partial files.
// A second signal exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx := watchSignals(parent, sigCh, logger)

	go func() {
		<-parent.Done()
		signal.Stop(sigCh)
	}()

	return ctx
}

// watchSignals cancels the returned context on the first value from sigCh
// and calls forceExit on the second. It stops listening once parent ends.
func watchSignals(parent context.Context, sigCh <-chan os.Signal, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		for count := 0; ; {
			var sig os.Signal

			select {
			case sig = <-sigCh:
			case <-parent.Done():
				return
			}

			count++

			if count == 1 {
				logger.Info("interrupted, stopping transfers", slog.String("signal", sig.String()))
				cancel()

				continue
			}

			logger.Warn("interrupted again, exiting now", slog.String("signal", sig.String()))
			forceExit(exitInterrupted)

			return
		}
	}()

	return ctx
}
