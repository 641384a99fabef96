package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := bootstrap(ctx, os.Stdout)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.Server.Start(ctx); err != nil {
				return err
			}
			slog.Info("advisor stopped")
			return nil
		},
	}
}
