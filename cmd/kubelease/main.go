package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edvin/kubelease/internal/api"
	"github.com/edvin/kubelease/internal/bot"
	"github.com/edvin/kubelease/internal/clock"
	"github.com/edvin/kubelease/internal/config"
	"github.com/edvin/kubelease/internal/lease"
	"github.com/edvin/kubelease/internal/logging"
	"github.com/edvin/kubelease/internal/metrics"
	"github.com/edvin/kubelease/internal/model"
	"github.com/edvin/kubelease/internal/provider"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	tlsConfig, err := cfg.ProviderTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure provider TLS")
	}
	if tlsConfig != nil {
		logger.Info().Msg("provider TLS overrides enabled")
	}
	client := provider.NewClient(cfg.ProviderURL, cfg.ProviderToken).WithTLS(tlsConfig)

	manager := lease.NewManager(logger, lease.NewRegistry(), client, clock.Real(), lease.Options{
		Limits: lease.Limits{
			MaxClusters: cfg.MaxClusters,
			MaxNodes:    cfg.MaxNodes,
			OffLimits:   cfg.OffLimits,
		},
		Defaults: model.SpecDefaults{
			Region:   cfg.DefaultRegion,
			Instance: cfg.DefaultInstance,
			Size:     cfg.DefaultSize,
			Version:  cfg.DefaultVersion,
			Life:     cfg.DefaultLifetime,
		},
		ReconcileInterval: cfg.ReconcileInterval,
	})
	sweeper := lease.NewSweeper(logger, manager, cfg.SweepInterval)
	dispatcher := bot.NewDispatcher(logger, manager, cfg.SweepInterval)

	httpServer := &http.Server{
		Addr:        cfg.HTTPListenAddr,
		Handler:     api.NewServer(logger, dispatcher, manager, cfg.ChatOriginPatterns),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /v1/chat sessions are long-lived.
		IdleTimeout: 60 * time.Second,
	}
	metricsServer := metrics.NewServer(cfg.MetricsListenAddr, manager.Reconciler())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		manager.Reconciler().Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting chat API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("chat API server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(httpServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("exited with error")
	}

	// Let in-flight create/delete calls land so their outcome is logged.
	manager.Wait()
	logger.Info().Msg("stopped")
}
