package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"langswap/internal/config"
	"langswap/pkg/logger"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:           "api",
		Short:         "Signaling, presence and call invitation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		// no subcommand means serve
		RunE: serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, newSweepCmd(), newIssueTokenCmd(), newMigrateCmd())
	return root
}

// loadConfig is shared by every subcommand. Errors are logged as JSON before
// cobra sees them.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		return config.Config{}, nil, err
	}
	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	return cfg, log, nil
}

func newServeCmd() *cobra.Command {
	var sweepEvery, retention time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), sweepEvery, retention)
		},
	}
	cmd.Flags().DurationVar(&sweepEvery, "sweep-every", time.Minute, "how often overdue invitations are expired (0 disables)")
	cmd.Flags().DurationVar(&retention, "retention", 7*24*time.Hour, "age after which answered invitations are deleted by the sweeper")
	return cmd
}

func runServe(parent context.Context, sweepEvery, retention time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(rootCtx, cfg, log)
	if err != nil {
		log.Error("app init failed", "err", err)
		return err
	}
	defer a.Close()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, logger.MiddlewareOptions{QuietPaths: []string{"/healthz"}}))
	registerRoutes(r, a)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if sweepEvery > 0 {
		g.Go(func() error {
			a.sweepLoop(gctx, sweepEvery, retention)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		// Shutdown does not wait for hijacked sockets; closing the hub does.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		a.hub.CloseAll()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
		return err
	}
	return nil
}
