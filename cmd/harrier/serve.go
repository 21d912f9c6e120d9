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

	"github.com/opensource-finance/harrier/internal/alerts"
	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the batch worker",
	Long: `Serve the review API and run batch passes on request (POST /batches
or the event bus) and, when engine.schedule is set, periodically.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model", cfg.Model.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.startTracing(); err != nil {
		return err
	}

	if err := a.openCache(); err != nil {
		return err
	}
	if err := a.openBus(); err != nil {
		return err
	}

	if err := a.seedCatalog(ctx); err != nil {
		return fmt.Errorf("failed to seed rule catalog: %w", err)
	}
	if cfg.Catalog.Watch {
		stopWatch, err := a.catalog.Watch(ctx, cfg.Catalog.SeedFile)
		if err != nil {
			return err
		}
		defer stopWatch()
		slog.Info("watching rule file", "path", cfg.Catalog.SeedFile)
	}

	runner, err := a.runner()
	if err != nil {
		return err
	}

	batchWorker := worker.NewWorker(a.bus, runner)
	if err := batchWorker.Start(worker.Config{Schedule: cfg.Engine.Schedule}); err != nil {
		return fmt.Errorf("failed to start batch worker: %w", err)
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:              a.repo,
		Cache:             a.cache,
		Bus:               a.bus,
		Catalog:           a.catalog,
		Reports:           a.reports(),
		Lifecycle:         alerts.NewLifecycle(a.repo, a.bus),
		HighRiskThreshold: cfg.Engine.HighRiskThreshold,
		Version:           Version,
	})

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	slog.Info("harrier is ready", "addr", srv.Addr())
	printBanner(Version)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case runErr = <-serveErr:
		slog.Error("server failed", "error", runErr)
	}

	// A running pass is cancelled and recorded before the store closes.
	if err := batchWorker.Stop(); err != nil {
		slog.Error("failed to stop batch worker", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
	return runErr
}

func printBanner(version string) {
	w := os.Stderr
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  HARRIER  risk scoring and alerting")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Version:  %s\n", version)
	fmt.Fprintf(w, "  Tier:     %s\n", cfg.Tier)
	fmt.Fprintf(w, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Endpoints:")
	fmt.Fprintln(w, "    GET  /transactions             - List scored transactions")
	fmt.Fprintln(w, "    GET  /transactions/{id}        - Transaction with alerts and history")
	fmt.Fprintln(w, "    GET  /alerts                   - List alerts")
	fmt.Fprintln(w, "    POST /alerts/{id}/status       - Move an alert through review")
	fmt.Fprintln(w, "    GET  /rules                    - List rules")
	fmt.Fprintln(w, "    POST /rules                    - Create or update a rule")
	fmt.Fprintln(w, "    GET  /reports/rule-performance - Rule precision")
	fmt.Fprintln(w, "    POST /batches                  - Request a batch pass")
	fmt.Fprintln(w, "    GET  /health                   - Health check")
	fmt.Fprintln(w)
}
