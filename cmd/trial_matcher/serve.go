package main

import (
	"context"

	"github.com/jonathan/trial-matcher/internal/server"
	"github.com/jonathan/trial-matcher/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

var (
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for matching patients, extracting criteria and scraping metrics.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (defaults to listen_addr from config, then :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, cmd, appOptions{needDB: true})
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(a.service, server.Config{
		ListenAddr: addr,
		RateLimit:  ratelimit.LoadConfig(a.cfg.RateLimitPerMinute),
		Gatherer:   a.registry,
		Logger:     a.logger,
	})
	return srv.Start()
}
