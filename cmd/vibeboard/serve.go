package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vibeboard/internal/config"
	"vibeboard/internal/db"
	"vibeboard/internal/github"
	"vibeboard/internal/notify"
	"vibeboard/internal/orchestrator"
	"vibeboard/internal/telemetry"
	"vibeboard/internal/web"
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and GitHub sync monitor",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.Validate(); err != nil {
		return err
	}

	store, err := db.NewStore(viper.GetString("db.dsn"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	registry := orchestrator.NewRegistry(viper.GetInt("orchestrator.max_parallel"))
	provider := github.NewCLIProvider()
	syncer := github.NewSyncer(provider)
	queue := github.NewQueue()
	metrics := telemetry.NewMetrics(nil)
	notifier := notify.NewManager()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if viper.GetBool("github.monitor_enabled") {
		monitor := github.NewMonitor(store, syncer, config.SyncInterval())
		go monitor.Start(ctx)
	}

	server := web.NewServer(store, registry, syncer, queue, metrics, notifier)

	// Retry queued pushes on the sync cadence
	go func() {
		ticker := time.NewTicker(config.SyncInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				queue.ProcessQueue(ctx, server.SyncQueueExecutor())
				metrics.SyncQueueDepth.Set(float64(queue.Len()))
			}
		}
	}()
	httpServer := &http.Server{
		Addr:    viper.GetString("server.addr"),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting api server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
