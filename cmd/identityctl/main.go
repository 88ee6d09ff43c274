package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/viralforge/storefront-identity/internal/app/bootstrap"
	"github.com/viralforge/storefront-identity/internal/application"
	"github.com/viralforge/storefront-identity/internal/cli"
)

type runtimeCloser struct {
	rt *bootstrap.ServiceRuntime
}

func (c runtimeCloser) Close() error {
	return c.rt.Close()
}

func main() {
	cli.Execute(cli.Dependencies{
		Open: func(ctx context.Context, configPath string) (*application.Service, io.Closer, error) {
			cfg, err := bootstrap.LoadConfig(configPath)
			if err != nil {
				return nil, nil, err
			}
			// Keep stdout for command output.
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})).With("service", cfg.ServiceID)
			slog.SetDefault(logger)
			rt, err := bootstrap.NewServiceRuntime(ctx, cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			return rt.Service(), runtimeCloser{rt: rt}, nil
		},
		Migrate: func(ctx context.Context, configPath string) error {
			cfg, err := bootstrap.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return bootstrap.Migrate(ctx, cfg)
		},
	})
}
