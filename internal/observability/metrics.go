package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/envutil"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec

	aggregateOps       *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	stageRuns     *CounterVec
	stageDuration *HistogramVec
	batchOutcomes *CounterVec
	corrections   *CounterVec

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	canvasRequests *CounterVec

	quizzesByStatus *GaugeVec
	dbStats         *GaugeVec
	redisUp         *GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

// Init returns the process metrics, or nil when METRICS_ENABLED is off.
// Every method is safe on a nil receiver.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// NewMetrics builds an unregistered metrics set; tests use it directly.
func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("qb_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"qb_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		aggregateOps: NewHistogramVec(
			"qb_aggregate_operation_duration_seconds",
			"Aggregate write duration by operation/status.",
			[]string{"operation", "status"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		),
		aggregateConflicts: NewCounterVec("qb_aggregate_conflicts_total", "Aggregate conflicts by operation.", []string{"operation"}),
		aggregateRetries:   NewCounterVec("qb_aggregate_retries_total", "Aggregate retries by operation.", []string{"operation"}),
		stageRuns:          NewCounterVec("qb_stage_runs_total", "Quiz stage runs by stage/outcome.", []string{"stage", "outcome"}),
		stageDuration: NewHistogramVec(
			"qb_stage_duration_seconds",
			"Quiz stage duration in seconds by stage/outcome.",
			[]string{"stage", "outcome"},
			[]float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		),
		batchOutcomes: NewCounterVec("qb_generation_batches_total", "Generation batch outcomes by question type/outcome.", []string{"question_type", "outcome"}),
		corrections:   NewCounterVec("qb_generation_corrections_total", "Generation correction rounds by kind.", []string{"kind"}),
		llmRequests:   NewCounterVec("qb_llm_requests_total", "LLM requests by model/status.", []string{"model", "status"}),
		llmLatency: NewHistogramVec(
			"qb_llm_request_duration_seconds",
			"LLM request latency in seconds by model/status.",
			[]string{"model", "status"},
			[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		llmTokens:       NewCounterVec("qb_llm_tokens_total", "LLM tokens by model/direction.", []string{"model", "direction"}),
		canvasRequests:  NewCounterVec("qb_canvas_requests_total", "Canvas API requests by operation/status.", []string{"operation", "status"}),
		quizzesByStatus: NewGaugeVec("qb_quizzes", "Quizzes by lifecycle status.", []string{"status"}),
		dbStats:         NewGaugeVec("qb_db_pool", "Database pool stats.", []string{"stat"}),
		redisUp:         NewGaugeVec("qb_redis_up", "Redis reachability.", []string{"addr"}),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency,
		m.aggregateOps, m.aggregateConflicts, m.aggregateRetries,
		m.stageRuns, m.stageDuration, m.batchOutcomes, m.corrections,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.canvasRequests,
		m.quizzesByStatus, m.dbStats, m.redisUp,
	}
	for _, mw := range all {
		if err := mw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ObserveAggregateOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Observe(dur.Seconds(), name, status)
}

func (m *Metrics) IncAggregateConflict(name string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(name)
}

func (m *Metrics) IncAggregateRetry(name string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(name)
}

func (m *Metrics) ObserveStage(stage, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.Inc(stage, outcome)
	if dur > 0 {
		m.stageDuration.Observe(dur.Seconds(), stage, outcome)
	}
}

func (m *Metrics) StageRuns(stage, outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.stageRuns.Value(stage, outcome)
}

func (m *Metrics) IncBatchOutcome(questionType, outcome string) {
	if m == nil {
		return
	}
	m.batchOutcomes.Inc(questionType, outcome)
}

func (m *Metrics) IncCorrection(kind string) {
	if m == nil {
		return
	}
	m.corrections.Inc(kind)
}

func (m *Metrics) ObserveLLMRequest(model, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(model, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) IncCanvasRequest(operation, status string) {
	if m == nil {
		return
	}
	m.canvasRequests.Inc(operation, status)
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	statuses := []quiz.Status{
		quiz.StatusCreated, quiz.StatusExtractingContent, quiz.StatusReadyForReview,
		quiz.StatusReadyForReviewPartial, quiz.StatusPublished, quiz.StatusFailed,
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if sqlDB, err := db.DB(); err == nil {
					stats := sqlDB.Stats()
					m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
					m.dbStats.Set(float64(stats.InUse), "in_use")
					m.dbStats.Set(float64(stats.Idle), "idle")
					m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				}
				for _, s := range statuses {
					m.quizzesByStatus.Set(0, string(s))
				}
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Model(&quiz.Quiz{}).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: quiz status query failed", "error", err)
					}
					continue
				}
				for _, row := range rows {
					m.quizzesByStatus.Set(float64(row.Count), row.Status)
				}
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client, addr string) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0, addr)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1, addr)
			}
		}
	}()
}
