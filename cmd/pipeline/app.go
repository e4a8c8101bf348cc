package main

import (
	"context"
	"path/filepath"
	"time"

	"order-analytics/config"
	"order-analytics/internal/broker"
	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/gold"
	"order-analytics/internal/lake"
	"order-analytics/internal/pipeline"
	"order-analytics/internal/redisclient"
	"order-analytics/internal/report"
	"order-analytics/internal/store"
	"order-analytics/internal/util"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// app owns the optional external dependencies of a command. A dependency
// that cannot be reached is logged and left nil.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	tracer    *sdktrace.TracerProvider
	store     *store.Store
	redis     *redisclient.Client
	producer  *broker.Producer
	publisher *broker.EventPublisher
}

func newApp(ctx context.Context, cfg *config.Config, serviceName string) *app {
	a := &app{cfg: cfg, logger: util.GetLogger()}

	tp, err := util.InitTracer(serviceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		a.logger.Warn("Tracing disabled", zap.Error(err))
	}
	a.tracer = tp

	if cfg.Database.URL != "" {
		s, err := store.NewStore(cfg.Database.Driver, cfg.Database.URL)
		if err == nil {
			err = s.EnsureSchema(ctx)
			if err != nil {
				s.Close()
			}
		}
		if err != nil {
			a.warnUnreachable("database", err)
		} else {
			a.store = s
			a.logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))
		}
	}

	if cfg.Redis.Addr != "" {
		rc, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.warnUnreachable("redis", err)
		} else {
			a.redis = rc
			a.logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
		}
	}

	if cfg.Kafka.Enabled {
		a.producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicResults)
		a.publisher = broker.NewEventPublisher(a.producer)
		a.logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicResults))
	}

	return a
}

func (a *app) warnUnreachable(target string, err error) {
	a.logger.Warn("Dependency unavailable, continuing without it",
		zap.Error(&apperrors.ConnectivityError{Target: target, Cause: err}))
}

// lakeRoot is where parquet snapshots live under the data directory
func lakeRoot() string {
	return filepath.Join(cfg.Pipeline.DataDir, "lake")
}

func (a *app) orchestrator() *pipeline.Orchestrator {
	p := a.cfg.Pipeline
	params := gold.Params{WindowDays: p.WindowDays, TopN: p.TopN}

	o := pipeline.NewOrchestrator(pipeline.Options{
		CustomersPath:     p.CustomersCSV,
		OrdersPath:        p.OrdersXML,
		StrictValidation:  p.StrictValidation,
		AdditionalMetrics: p.AdditionalMetrics,
		SQLCrossCheck:     p.SQLCrossCheck,
		Params:            params,
	}, lake.NewWriter(lakeRoot(), p.ParquetCompression), report.NewGenerator(p.ReportsDir, p.Currency, nil))

	if a.store != nil {
		o.WithCrossCheck(store.NewSQLExecutor(a.store, params)).WithRecorder(a.store)
	}
	if a.redis != nil {
		o.WithCache(a.redis).WithLocker(a.redis)
	}
	if a.publisher != nil {
		o.WithEvents(a.publisher)
	}
	return o
}

func (a *app) Close() {
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}
}
