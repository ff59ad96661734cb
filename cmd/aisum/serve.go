package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"aisum/internal/api"
	"aisum/internal/auth"
)

var (
	servePort          int
	serveHost          string
	serveMaxConcurrent int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the summarization HTTP API",
	Long: `Start the HTTP API. GET /summarize?key=PROJ-123 returns a fresh one-line
summary of the issue without writing it back. When server.authEnabled is set,
requests need a bearer token with the summarize scope (see "aisum token").`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: server.port)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().IntVar(&serveMaxConcurrent, "max-concurrent", 4, "Summaries generated at once (0 = unlimited)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a := mustGetApp(true)
	defer a.close()
	cfg, logger := a.cfg, a.logger

	host, port := cfg.Server.Host, cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !cfg.Server.AuthEnabled {
		logger.Warn("Authentication is disabled; every request is served anonymously")
	}
	authMgr, err := auth.NewManager(api.AuthConfig(cfg.Server), a.store().Conn(), logger.With("component", "auth"))
	if err != nil {
		return err
	}
	authMgr.StartBackgroundTasks(ctx)

	server := api.NewServer(api.Options{
		Addr:          addr,
		CORSOrigins:   cfg.Server.CorsOrigins,
		DefaultDepth:  cfg.Server.DefaultDepth,
		MaxCacheAge:   time.Duration(cfg.Cache.MaxAgeMinutes) * time.Minute,
		MaxConcurrent: serveMaxConcurrent,
		QueueTimeout:  30 * time.Second,
	}, a.sum, authMgr, logger.With("component", "api"))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting aisum HTTP API server", "addr", addr, "auth", cfg.Server.AuthEnabled)
		fmt.Printf("aisum HTTP API listening on http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}
