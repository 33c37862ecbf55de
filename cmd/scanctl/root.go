package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"skinscan-backend/internal/bootstrap"
	"skinscan-backend/internal/shared/config"
	"skinscan-backend/internal/shared/telemetry"
)

// appBuilder wires the application for commands that need live stores.
type appBuilder func(ctx context.Context) (*bootstrap.App, error)

func defaultBuilder(ctx context.Context) (*bootstrap.App, error) {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)
	return bootstrap.Build(ctx, cfg)
}

func newRootCmd(build appBuilder) *cobra.Command {
	root := &cobra.Command{
		Use:           "scanctl",
		Short:         "Operate the skin scan backend from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newBaselineCmd(),
		newAnalyzeCmd(build),
		newQuotaCmd(build),
	)
	return root
}

func withApp(cmd *cobra.Command, build appBuilder, fn func(*bootstrap.App) error) error {
	app, err := build(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
