package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	apperrors "order-analytics/internal/errors"
	"order-analytics/internal/models"
	"order-analytics/internal/pipeline"
	"order-analytics/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const idempotencyTTL = 24 * time.Hour

// ResultSource serves the latest published run
type ResultSource interface {
	Latest(ctx context.Context) (*models.RunSnapshot, error)
}

// Runner executes a pipeline run synchronously
type Runner interface {
	RunWith(ctx context.Context, overrides pipeline.Overrides) (*pipeline.RunResult, error)
}

// RunRequester hands a run over to the workers
type RunRequester interface {
	PublishRunRequested(ctx context.Context, event *models.RunRequestedEvent) error
}

// IdempotencyStore remembers the outcome of POST /runs per Idempotency-Key
type IdempotencyStore interface {
	LookupIdempotencyKey(ctx context.Context, key string) (string, bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RunHistory lists recorded runs
type RunHistory interface {
	ListRecentRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunRequest is the optional body of POST /api/v1/runs
type RunRequest struct {
	StrictValidation  *bool `json:"strict_validation"`
	AdditionalMetrics *bool `json:"additional_metrics"`
}

// Handler contains HTTP handlers
type Handler struct {
	results  ResultSource
	runner   Runner
	requests RunRequester
	idem     IdempotencyStore
	history  RunHistory
	checks   map[string]Pinger
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. POST /runs executes in-process
// through runner unless a RunRequester is set.
func NewHandler(results ResultSource, runner Runner) *Handler {
	return &Handler{
		results: results,
		runner:  runner,
		checks:  map[string]Pinger{},
		logger:  util.GetLogger(),
	}
}

func (h *Handler) WithRequester(requests RunRequester) *Handler {
	h.requests = requests
	return h
}

func (h *Handler) WithIdempotency(idem IdempotencyStore) *Handler {
	h.idem = idem
	return h
}

func (h *Handler) WithHistory(history RunHistory) *Handler {
	h.history = history
	return h
}

// WithReadinessCheck adds a dependency to /ready
func (h *Handler) WithReadinessCheck(name string, p Pinger) *Handler {
	h.checks[name] = p
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/kpis", h.getKPIs)
		v1.GET("/kpis/:name", h.getKPI)
		v1.GET("/validation", h.getValidation)
		v1.GET("/runs", h.listRuns)
		v1.POST("/runs", h.createRun)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// latest writes an error response and returns nil when no snapshot is available
func (h *Handler) latest(c *gin.Context) *models.RunSnapshot {
	snap, err := h.results.Latest(c.Request.Context())
	if apperrors.Is(err, apperrors.ErrNoResults) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No completed run yet",
		})
		return nil
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load results",
			"details": err.Error(),
		})
		return nil
	}
	return snap
}

// getKPIs returns the latest snapshot
func (h *Handler) getKPIs(c *gin.Context) {
	snap := h.latest(c)
	if snap == nil {
		return
	}
	c.JSON(http.StatusOK, snap)
}

// getKPI returns one KPI table of the latest snapshot
func (h *Handler) getKPI(c *gin.Context) {
	name := c.Param("name")
	snap := h.latest(c)
	if snap == nil {
		return
	}

	rows, ok := snap.KPIs.Table(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown KPI",
			"kpis":  models.KPINames,
		})
		return
	}

	resp := gin.H{
		"run_id": snap.RunID,
		"kpi":    name,
		"rows":   rows,
	}
	if reason, degraded := snap.KPIs.Failures[name]; degraded {
		resp["degraded"] = reason
	}
	c.JSON(http.StatusOK, resp)
}

// getValidation returns the validation reports of the latest snapshot
func (h *Handler) getValidation(c *gin.Context) {
	snap := h.latest(c)
	if snap == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":  snap.RunID,
		"reports": snap.Validation,
	})
}

// listRuns returns the most recent run summaries
func (h *Handler) listRuns(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []models.RunSummary{}})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid limit",
			})
			return
		}
		limit = n
	}

	runs, err := h.history.ListRecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list runs",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// createRun starts a run, or queues one when a RunRequester is set
func (h *Handler) createRun(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	ctx := c.Request.Context()
	key := c.GetHeader("Idempotency-Key")
	if key != "" && h.idem != nil {
		previous, found, err := h.idem.LookupIdempotencyKey(ctx, key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to check idempotency",
				"details": err.Error(),
			})
			return
		}
		if found {
			h.logger.Info("Duplicate run request detected",
				zap.String("idempotency_key", key),
				zap.String("id", previous))
			c.JSON(http.StatusOK, gin.H{
				"status": "duplicate",
				"id":     previous,
			})
			return
		}
	}

	if h.requests != nil {
		event := &models.RunRequestedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeRunRequested,
				Timestamp: time.Now(),
			},
			RequestedBy:       "api",
			StrictValidation:  req.StrictValidation,
			AdditionalMetrics: req.AdditionalMetrics,
		}
		if err := h.requests.PublishRunRequested(ctx, event); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Failed to queue run",
				"details": err.Error(),
			})
			return
		}
		h.remember(ctx, key, event.EventID)
		c.JSON(http.StatusAccepted, gin.H{
			"status": "queued",
			"id":     event.EventID,
		})
		return
	}

	result, err := h.runner.RunWith(ctx, pipeline.Overrides{
		StrictValidation:  req.StrictValidation,
		AdditionalMetrics: req.AdditionalMetrics,
	})
	if err != nil {
		h.runError(c, err)
		return
	}

	h.remember(ctx, key, result.RunID)
	resp := gin.H{
		"status":           "succeeded",
		"id":               result.RunID,
		"duration_seconds": result.Duration.Seconds(),
		"kpis":             result.Gold.KPIs,
	}
	if len(result.Gold.Mismatches) > 0 {
		resp["crosscheck_mismatches"] = result.Gold.Mismatches
	}
	if len(result.Gold.CrossCheckSkipped) > 0 {
		resp["crosscheck_skipped"] = result.Gold.CrossCheckSkipped
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) runError(c *gin.Context, err error) {
	if apperrors.Is(err, apperrors.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "A run is already in progress",
		})
		return
	}

	var stageErr *apperrors.StageError
	if apperrors.As(err, &stageErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Run failed",
			"stage":   stageErr.Stage,
			"counts":  stageErr.Counts,
			"details": stageErr.Cause.Error(),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Failed to run pipeline",
		"details": err.Error(),
	})
}

func (h *Handler) remember(ctx context.Context, key, id string) {
	if key == "" || h.idem == nil {
		return
	}
	if err := h.idem.SetIdempotencyKey(ctx, key, id, idempotencyTTL); err != nil {
		h.logger.Warn("Failed to store idempotency key", zap.String("idempotency_key", key), zap.Error(err))
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
