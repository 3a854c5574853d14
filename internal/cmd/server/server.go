// Package server parses signing service flags and composes the runtime.
package server

import (
	"context"
	"flag"
	"fmt"

	appserver "github.com/inkflow/inkflow/internal/app/server"
	entrypoint "github.com/inkflow/inkflow/internal/platform/cmd"
)

// ParseConfig parses environment and flags into a RuntimeConfig.
func ParseConfig(fs *flag.FlagSet, args []string) (appserver.RuntimeConfig, error) {
	var cfg appserver.RuntimeConfig
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return appserver.RuntimeConfig{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "public base URL for signer links")
	fs.StringVar(&cfg.GrantSecret, "grant-secret", cfg.GrantSecret, "dashboard grant signing secret")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return appserver.RuntimeConfig{}, err
	}
	return cfg, nil
}

// Run builds the signing app and serves it until the context ends.
func Run(ctx context.Context, cfg appserver.RuntimeConfig) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(context.Context) error {
		if err := appserver.Run(ctx, cfg); err != nil {
			return fmt.Errorf("serve signing: %w", err)
		}
		return nil
	})
}
