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

	"github.com/spf13/cobra"
	"github.com/znz-systems/sortbox/internal/database"
	"github.com/znz-systems/sortbox/internal/ingest"
	"github.com/znz-systems/sortbox/internal/ratelimit"
	"github.com/znz-systems/sortbox/internal/web"
	"github.com/znz-systems/sortbox/internal/web/handlers"
	"github.com/znz-systems/sortbox/migrations"
)

var serveNoSweep bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and the ingestion scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := database.RunMigrations(migrations.FS, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		router := web.NewRouter(web.RouterDeps{
			IngestHandler:      handlers.NewIngestHandler(a.ingest),
			UnsubscribeHandler: handlers.NewUnsubscribeHandler(a.agent),
			MessageHandler:     handlers.NewMessageHandler(a.messages),
			CategoryHandler:    handlers.NewCategoryHandler(a.categories),
			AccountHandler:     handlers.NewAccountHandler(a.linker),
			HealthHandler:      handlers.NewHealthHandler(a.db),
			Limiter:            ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
			APIToken:           cfg.APIToken,
		})
		if cfg.APIToken == "" {
			slog.Warn("API_TOKEN not set; API routes will answer 503")
		}

		if !serveNoSweep {
			scheduler := ingest.NewScheduler(a.accounts, a.ingest, ingest.SchedulerOptions{Interval: cfg.SweepInterval})
			go scheduler.Run(ctx)
		}

		addr := fmt.Sprintf(":%d", cfg.Port)
		srv := &http.Server{
			Addr:        addr,
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Unsubscribe requests drive a browser through several pages.
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("sortbox starting", "addr", addr, "sweep_interval", cfg.SweepInterval)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
		}
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoSweep, "no-sweep", false, "serve the API without the background ingestion sweep")
}
