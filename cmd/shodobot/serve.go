package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/shodobot-go/internal/app"
	httpapi "github.com/0xcro3dile/shodobot-go/internal/infrastructure/http"
	mcpapi "github.com/0xcro3dile/shodobot-go/internal/infrastructure/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP chat API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := httpapi.NewServer(a.Pipeline, httpapi.Options{
			Addr:             cfg.Addr(),
			FrontendURL:      cfg.Server.FrontendURL,
			RateLimit:        cfg.Server.RateLimitPerMinute,
			MaxMessageLength: cfg.Server.MaxMessageLength,
			Metrics:          promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		}, logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Start(gctx) })
		g.Go(func() error { return a.Watch(gctx) })
		return g.Wait()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the chat tools over MCP stdio",
	Long: `Serve send_message, get_history and clear_history as MCP tools on
stdin/stdout. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() {
			if err := a.Watch(ctx); err != nil {
				logger.Sugar().Warnf("keyword watcher stopped: %v", err)
			}
		}()

		return mcpapi.ServeStdio(mcpapi.NewServer(a.Pipeline, Version, cfg.Server.MaxMessageLength))
	},
}
