package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/covid-rag/reinfection-advisor/internal/config"
	"github.com/covid-rag/reinfection-advisor/internal/runtime"
	"github.com/covid-rag/reinfection-advisor/internal/telemetry"
)

const serviceName = "reinfection-advisor"

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "advisor",
		Short: "COVID-19 reinfection risk explanations grounded in literature",
		Long: `advisor explains a patient's COVID-19 reinfection risk. When the generation
backend is configured it retrieves supporting passages from the evidence
index and asks the model; otherwise it returns general guidance.

Example usage:
  advisor serve --config config.yaml
  advisor explain --file patient.json
  advisor explain --question "Does a booster lower reinfection risk?"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yaml if present)")

	root.AddCommand(newServeCmd(), newExplainCmd())
	return root
}

// bootstrap loads .env and config, installs the JSON logger, starts tracing
// and assembles the app. logOut receives log lines; the explain command
// sends them to stderr so stdout carries only the answer.
func bootstrap(ctx context.Context, logOut io.Writer) (*runtime.App, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer(serviceName, cfg.Telemetry.Enabled, os.Stderr, logger)
	if err != nil {
		return nil, nil, err
	}

	app, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, nil, err
	}

	cleanup := func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close app", slog.String("error", err.Error()))
		}
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}
	return app, cleanup, nil
}
