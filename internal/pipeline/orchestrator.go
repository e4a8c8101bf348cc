// Package pipeline runs the bronze, silver and gold stages in order and
// publishes the results of each run.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"order-analytics/internal/bronze"
	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/gold"
	"order-analytics/internal/lake"
	"order-analytics/internal/models"
	"order-analytics/internal/report"
	"order-analytics/internal/silver"
	"order-analytics/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Stage names
const (
	StageBronze = "bronze"
	StageSilver = "silver"
	StageGold   = "gold"
)

const (
	runLockKey = "pipeline-run"
	runLockTTL = 30 * time.Minute
	cacheTTL   = 24 * time.Hour
)

// Locker serialises runs across processes
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ExtendLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// ResultCache keeps the snapshot of the latest successful run
type ResultCache interface {
	SetLatest(ctx context.Context, snap *models.RunSnapshot, ttl time.Duration) error
	GetLatest(ctx context.Context) (*models.RunSnapshot, error)
}

// EventSink receives run outcome events
type EventSink interface {
	PublishRunCompleted(ctx context.Context, event *models.RunCompletedEvent) error
	PublishRunFailed(ctx context.Context, event *models.RunFailedEvent) error
}

// RunRecorder stores the audit summary of each run
type RunRecorder interface {
	RecordRun(ctx context.Context, run models.RunSummary) error
}

// Options configures the inputs and policies of a run
type Options struct {
	CustomersPath     string
	OrdersPath        string
	StrictValidation  bool
	AdditionalMetrics bool
	SQLCrossCheck     bool
	Params            gold.Params
}

// Overrides adjusts the policies of a single run
type Overrides struct {
	StrictValidation  *bool
	AdditionalMetrics *bool
}

// RunResult holds the snapshots a run produced. After a failed stage the
// later fields stay nil.
type RunResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Bronze    *models.BronzeData
	Silver    *models.SilverData
	Gold      *models.GoldData
	LakeFiles []string
}

// Orchestrator drives the medallion stages. Only one run executes at a time.
type Orchestrator struct {
	opts       Options
	loader     *bronze.Loader
	calculator *gold.Calculator
	lake       *lake.Writer
	reports    *report.Generator
	crossCheck gold.Executor
	cache      ResultCache
	locker     Locker
	events     EventSink
	recorder   RunRecorder
	now        func() time.Time
	logger     *zap.Logger

	runMu   sync.Mutex
	stateMu sync.RWMutex
	latest  *models.RunSnapshot
}

// NewOrchestrator creates an orchestrator writing snapshots to lakeWriter
// and reports through reports. Either may be nil to skip that output.
func NewOrchestrator(opts Options, lakeWriter *lake.Writer, reports *report.Generator) *Orchestrator {
	return &Orchestrator{
		opts:       opts,
		loader:     bronze.NewLoader(),
		calculator: gold.NewCalculator(gold.NewMemoryExecutor(opts.Params)),
		lake:       lakeWriter,
		reports:    reports,
		now:        time.Now,
		logger:     util.GetLogger(),
	}
}

// WithClock sets the clock used for cleaning and timestamps
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	o.loader = o.loader.WithClock(now)
	return o
}

// WithCrossCheck sets the executor compared against the in-memory KPIs
func (o *Orchestrator) WithCrossCheck(executor gold.Executor) *Orchestrator {
	o.crossCheck = executor
	return o
}

func (o *Orchestrator) WithLogger(logger *zap.Logger) *Orchestrator {
	o.logger = logger
	return o
}

func (o *Orchestrator) WithCache(cache ResultCache) *Orchestrator {
	o.cache = cache
	return o
}

func (o *Orchestrator) WithLocker(locker Locker) *Orchestrator {
	o.locker = locker
	return o
}

func (o *Orchestrator) WithEvents(events EventSink) *Orchestrator {
	o.events = events
	return o
}

func (o *Orchestrator) WithRecorder(recorder RunRecorder) *Orchestrator {
	o.recorder = recorder
	return o
}

// Run executes one batch run with the configured policies
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	return o.RunWith(ctx, Overrides{})
}

// RunWith executes one batch run. A stage failure aborts the run with a
// *StageError; snapshots persisted by earlier stages stay on disk.
func (o *Orchestrator) RunWith(ctx context.Context, overrides Overrides) (*RunResult, error) {
	if !o.runMu.TryLock() {
		return nil, apperrors.ErrRunInProgress
	}
	defer o.runMu.Unlock()

	if o.locker != nil {
		token, ok, err := o.locker.AcquireLock(ctx, runLockKey, runLockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire run lock: %w", &apperrors.ConnectivityError{Target: "redis", Cause: err})
		}
		if !ok {
			return nil, apperrors.ErrRunInProgress
		}
		stop := o.keepLock(token)
		defer func() {
			stop()
			if err := o.locker.ReleaseLock(context.Background(), runLockKey, token); err != nil {
				o.logger.Warn("Failed to release run lock", zap.Error(err))
			}
		}()
	}

	strict := o.opts.StrictValidation
	if overrides.StrictValidation != nil {
		strict = *overrides.StrictValidation
	}
	additional := o.opts.AdditionalMetrics
	if overrides.AdditionalMetrics != nil {
		additional = *overrides.AdditionalMetrics
	}

	r := &run{
		o:      o,
		result: &RunResult{RunID: uuid.New().String(), StartedAt: o.now()},
		counts: map[string]int{},
	}

	ctx, span := util.StartSpan(ctx, "Orchestrator.Run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", r.result.RunID))

	o.logger.Info("Pipeline run started",
		zap.String("run_id", r.result.RunID),
		zap.Bool("strict_validation", strict),
		zap.Bool("additional_metrics", additional))

	if err := r.bronze(ctx); err != nil {
		return r.fail(ctx, StageBronze, err)
	}
	if err := r.silver(ctx, strict); err != nil {
		return r.fail(ctx, StageSilver, err)
	}
	if err := r.gold(ctx, additional); err != nil {
		return r.fail(ctx, StageGold, err)
	}

	return r.succeed(ctx)
}

// keepLock extends the run lock until the returned func is called
func (o *Orchestrator) keepLock(token string) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(runLockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ok, err := o.locker.ExtendLock(context.Background(), runLockKey, token, runLockTTL)
				if err != nil || !ok {
					o.logger.Warn("Failed to extend run lock", zap.Bool("owned", ok), zap.Error(err))
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// Latest returns the snapshot of the latest successful run, falling back to
// the cache when this process has not completed a run yet
func (o *Orchestrator) Latest(ctx context.Context) (*models.RunSnapshot, error) {
	o.stateMu.RLock()
	latest := o.latest
	o.stateMu.RUnlock()
	if latest != nil {
		return latest, nil
	}
	if o.cache != nil {
		return o.cache.GetLatest(ctx)
	}
	return nil, apperrors.ErrNoResults
}

// run carries the state of one execution between its stages
type run struct {
	o      *Orchestrator
	result *RunResult
	counts map[string]int
}

func (r *run) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	util.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}

func (r *run) persist(ctx context.Context, write func(*lake.Writer) ([]string, error)) error {
	if r.o.lake == nil {
		return nil
	}
	paths, err := write(r.o.lake)
	r.result.LakeFiles = append(r.result.LakeFiles, paths...)
	if err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}

func (r *run) bronze(ctx context.Context) error {
	return r.timed(StageBronze, func() error {
		data, err := r.o.loader.Load(ctx, r.o.opts.CustomersPath, r.o.opts.OrdersPath)
		if err != nil {
			return err
		}
		r.result.Bronze = data
		r.counts["customers_raw"] = data.Customers.Len()
		r.counts["orders_raw"] = data.Orders.Len()
		util.RecordsProcessed.WithLabelValues(StageBronze, "customers").Set(float64(data.Customers.Len()))
		util.RecordsProcessed.WithLabelValues(StageBronze, "orders").Set(float64(data.Orders.Len()))

		return r.persist(ctx, func(w *lake.Writer) ([]string, error) { return w.WriteBronze(ctx, data) })
	})
}

func (r *run) silver(ctx context.Context, strict bool) error {
	return r.timed(StageSilver, func() error {
		data, err := silver.NewProcessor(r.o.now, strict).Process(ctx, r.result.Bronze)
		if err != nil {
			return err
		}
		r.result.Silver = data
		r.counts["customers_clean"] = len(data.Customers)
		r.counts["orders_clean"] = len(data.Orders)
		util.RecordsProcessed.WithLabelValues(StageSilver, "customers").Set(float64(len(data.Customers)))
		util.RecordsProcessed.WithLabelValues(StageSilver, "orders").Set(float64(len(data.Orders)))

		return r.persist(ctx, func(w *lake.Writer) ([]string, error) { return w.WriteSilver(ctx, data) })
	})
}

func (r *run) gold(ctx context.Context, additional bool) error {
	return r.timed(StageGold, func() error {
		start := time.Now()
		kpis, err := r.o.calculator.Compute(ctx, r.result.Silver)
		if err != nil {
			return err
		}
		data := &models.GoldData{KPIs: kpis}
		r.result.Gold = data
		for _, name := range models.KPINames {
			util.KPIRows.WithLabelValues(name).Set(float64(kpis.RowCount(name)))
		}

		if additional {
			data.Additional = gold.ComputeBusinessMetrics(r.result.Silver)
		}

		if err := r.persist(ctx, func(w *lake.Writer) ([]string, error) {
			return w.WriteGold(ctx, kpis, data.Additional)
		}); err != nil {
			return err
		}

		r.crossCheck(ctx, data)

		if r.o.reports != nil {
			paths, err := r.o.reports.WriteAll(kpis, report.Meta{RunID: r.result.RunID, Additional: data.Additional})
			if err != nil {
				r.o.logger.Warn("Report generation failed", zap.Error(err))
			}
			data.Reports = paths
		}

		data.ProcessedAt = r.o.now()
		data.Duration = time.Since(start)
		return nil
	})
}

// crossCheck recomputes the KPIs with the configured executor and records
// every difference. Errors only skip the check, and a KPI the executor
// could not compute is skipped rather than counted as a match.
func (r *run) crossCheck(ctx context.Context, data *models.GoldData) {
	if r.o.crossCheck == nil || !r.o.opts.SQLCrossCheck {
		return
	}
	ctx, span := util.StartSpan(ctx, "Orchestrator.CrossCheck")
	defer span.End()

	executor := r.o.crossCheck
	sqlKPIs, err := gold.NewCalculator(executor).Compute(ctx, r.result.Silver)
	if err != nil {
		cerr := &apperrors.ConnectivityError{Target: executor.Name(), Cause: err}
		r.o.logger.Warn("SQL cross-check skipped", zap.Error(cerr))
		return
	}

	data.SQLKPIs = sqlKPIs
	if len(sqlKPIs.Failures) > 0 {
		for name := range sqlKPIs.Failures {
			data.CrossCheckSkipped = append(data.CrossCheckSkipped, name)
		}
		sort.Strings(data.CrossCheckSkipped)
		cerr := &apperrors.ConnectivityError{
			Target: executor.Name(),
			Cause:  fmt.Errorf("failed KPIs: %s", strings.Join(data.CrossCheckSkipped, ", ")),
		}
		r.o.logger.Warn("SQL cross-check skipped", zap.Error(cerr))
	}
	for _, m := range gold.Compare(data.KPIs, sqlKPIs) {
		data.Mismatches = append(data.Mismatches, m.String())
	}
	util.CrossCheckMismatchesTotal.Add(float64(len(data.Mismatches)))
	util.SetCount(span, "mismatches", len(data.Mismatches))

	if len(data.Mismatches) > 0 {
		r.o.logger.Warn("SQL cross-check found differences",
			zap.String("executor", executor.Name()),
			zap.Strings("mismatches", data.Mismatches))
	} else if len(data.CrossCheckSkipped) == 0 {
		r.o.logger.Info("SQL cross-check passed", zap.String("executor", executor.Name()))
	}
}

func (r *run) summary(status, stage, detail string) models.RunSummary {
	s := models.RunSummary{
		RunID:       r.result.RunID,
		Status:      status,
		Stage:       stage,
		StartedAt:   r.result.StartedAt,
		FinishedAt:  r.result.StartedAt.Add(r.result.Duration),
		ErrorDetail: detail,
	}
	if r.result.Silver != nil {
		s.Customers = len(r.result.Silver.Customers)
		s.Orders = len(r.result.Silver.Orders)
	}
	if r.result.Gold != nil {
		s.Mismatches = len(r.result.Gold.Mismatches)
	}
	return s
}

func (r *run) record(ctx context.Context, s models.RunSummary) {
	if r.o.recorder == nil {
		return
	}
	if err := r.o.recorder.RecordRun(ctx, s); err != nil {
		r.o.logger.Warn("Failed to record run", zap.String("run_id", s.RunID), zap.Error(err))
	}
}

func (r *run) fail(ctx context.Context, stage string, cause error) (*RunResult, error) {
	r.result.Duration = r.o.now().Sub(r.result.StartedAt)
	stageErr := apperrors.NewStageError(stage, r.counts, cause)

	util.StageFailuresTotal.WithLabelValues(stage).Inc()
	util.PipelineRunsTotal.WithLabelValues("failed").Inc()

	r.o.logger.Error("Pipeline run failed",
		zap.String("run_id", r.result.RunID),
		zap.String("stage", stage),
		zap.Any("counts", r.counts),
		zap.Error(cause))

	if r.o.events != nil {
		event := &models.RunFailedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeRunFailed,
				Timestamp: r.o.now(),
			},
			RunID:  r.result.RunID,
			Stage:  stage,
			Reason: cause.Error(),
			Counts: r.counts,
		}
		if err := r.o.events.PublishRunFailed(ctx, event); err != nil {
			r.o.logger.Warn("Failed to publish run failed event", zap.Error(err))
		}
	}

	r.record(ctx, r.summary(models.RunStatusFailed, stage, cause.Error()))
	return r.result, stageErr
}

func (r *run) succeed(ctx context.Context) (*RunResult, error) {
	r.result.Duration = r.o.now().Sub(r.result.StartedAt)
	kpis := r.result.Gold.KPIs

	snap := &models.RunSnapshot{
		RunID:      r.result.RunID,
		FinishedAt: r.o.now(),
		KPIs:       kpis,
		Additional: r.result.Gold.Additional,
		Validation: r.result.Silver.Validation,
		Mismatches: r.result.Gold.Mismatches,
	}
	r.o.stateMu.Lock()
	r.o.latest = snap
	r.o.stateMu.Unlock()

	if r.o.cache != nil {
		if err := r.o.cache.SetLatest(ctx, snap, cacheTTL); err != nil {
			r.o.logger.Warn("Failed to cache results", zap.Error(err))
		}
	}

	if r.o.events != nil {
		event := &models.RunCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeRunCompleted,
				Timestamp: r.o.now(),
			},
			RunID:           r.result.RunID,
			DurationSeconds: r.result.Duration.Seconds(),
			Customers:       len(r.result.Silver.Customers),
			Orders:          len(r.result.Silver.Orders),
			KPIRows:         make(map[string]int, len(models.KPINames)),
			Mismatches:      len(r.result.Gold.Mismatches),
		}
		for _, name := range models.KPINames {
			event.KPIRows[name] = kpis.RowCount(name)
			if _, failed := kpis.Failures[name]; failed {
				event.DegradedKPIs = append(event.DegradedKPIs, name)
			}
		}
		if err := r.o.events.PublishRunCompleted(ctx, event); err != nil {
			r.o.logger.Warn("Failed to publish run completed event", zap.Error(err))
		}
	}

	r.record(ctx, r.summary(models.RunStatusSucceeded, StageGold, ""))

	util.PipelineRunsTotal.WithLabelValues("succeeded").Inc()
	util.PipelineRunDuration.Observe(r.result.Duration.Seconds())

	r.o.logger.Info("Pipeline run completed",
		zap.String("run_id", r.result.RunID),
		zap.Duration("duration", r.result.Duration),
		zap.Int("customers", len(r.result.Silver.Customers)),
		zap.Int("orders", len(r.result.Silver.Orders)),
		zap.Int("degraded_kpis", len(kpis.Failures)))
	return r.result, nil
}
