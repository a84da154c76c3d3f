// Package courtline wires configuration parsing and the service run loop for
// the courtline command.
package courtline

import (
	"context"
	"flag"
	"fmt"

	"github.com/courtline/courtline/internal/app"
	platformcmd "github.com/courtline/courtline/internal/platform/cmd"
)

// ParseConfig loads environment defaults and applies flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (app.Config, error) {
	var cfg app.Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return app.Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// Run assembles the service and serves until the context ends.
func Run(ctx context.Context, cfg app.Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceCourtline, func(ctx context.Context) error {
		a, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("init service: %w", err)
		}
		defer a.Close()

		if err := a.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
}
