package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"order-analytics/internal/api"
	"order-analytics/internal/broker"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest KPIs over HTTP",
		Long: `Start the HTTP API. GET /api/v1/kpis serves the latest run and
POST /api/v1/runs triggers a new one: in-process by default, or through
Kafka when KAFKA_ENABLED is set so that a worker executes it.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a := newApp(ctx, cfg, "order-analytics-api")
	defer a.Close()

	orch := a.orchestrator()
	handler := api.NewHandler(orch, orch)
	if a.store != nil {
		handler.WithHistory(a.store).WithReadinessCheck("database", a.store)
	}
	if a.redis != nil {
		handler.WithIdempotency(a.redis).WithReadinessCheck("redis", a.redis)
	}
	if cfg.Kafka.Enabled {
		requests := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns)
		defer requests.Close()
		handler.WithRequester(broker.NewEventPublisher(requests))
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("Server exited")
	return nil
}
