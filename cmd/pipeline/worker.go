package main

import (
	"errors"
	"fmt"

	"order-analytics/internal/broker"
	"order-analytics/internal/worker"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Execute runs requested over Kafka",
		Long: `Consume run requests from KAFKA_TOPIC_RUNS and execute each one once.
Outcomes are published to KAFKA_TOPIC_RESULTS when KAFKA_ENABLED is set.`,
		RunE: runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a := newApp(ctx, cfg, "order-analytics-worker")
	defer a.Close()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRuns, cfg.Kafka.ConsumerGroup)

	var ledger worker.EventLedger
	if a.store != nil {
		ledger = a.store
	}
	w := worker.NewRunWorker(consumer, a.orchestrator(), ledger)
	defer w.Stop()

	err := w.Start(ctx)
	if err != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("worker stopped: %w", err)
	}
	return nil
}
