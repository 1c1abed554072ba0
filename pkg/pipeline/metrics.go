package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const metricsNamespace = "survey_ingress"

const (
	MetricRowsPresented    = "rows_presented_total"
	MetricRowsInserted     = "rows_inserted_total"
	MetricRowsRejected     = "rows_rejected_total"
	MetricCleaningOps      = "cleaning_operations_total"
	MetricErrors           = "errors_total"
	MetricStageDuration    = "stage_duration_seconds"
	MetricLastRunSuccess   = "last_run_success"
	MetricLastRunTimestamp = "last_run_timestamp_seconds"
	MetricLastRunDuration  = "last_run_duration_seconds"
)

// RunMetrics tracks load metrics on a private registry so a run can be
// exported as a node-exporter textfile at exit
type RunMetrics struct {
	mu       sync.Mutex
	logger   *zap.Logger
	registry *prometheus.Registry

	rowsPresented    *prometheus.CounterVec
	rowsInserted     *prometheus.CounterVec
	rowsRejected     *prometheus.CounterVec
	cleaningOps      *prometheus.CounterVec
	errors           *prometheus.CounterVec
	stageDuration    *prometheus.GaugeVec
	lastRunSuccess   prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
	lastRunDuration  prometheus.Gauge
}

// NewRunMetrics creates and registers the run metrics
func NewRunMetrics(logger *zap.Logger) *RunMetrics {
	m := &RunMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),

		rowsPresented: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      MetricRowsPresented,
				Help:      "Rows presented to the store per table.",
			},
			[]string{"table"},
		),
		rowsInserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      MetricRowsInserted,
				Help:      "Rows accepted by the store per table.",
			},
			[]string{"table"},
		),
		rowsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      MetricRowsRejected,
				Help:      "Source rows rejected during normalization per dataset.",
			},
			[]string{"dataset"},
		),
		cleaningOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      MetricCleaningOps,
				Help:      "Cleaning operations applied per operation type.",
			},
			[]string{"operation"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      MetricErrors,
				Help:      "Load errors per category.",
			},
			[]string{"category"},
		),
		stageDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      MetricStageDuration,
				Help:      "Duration of each load stage in the last run.",
			},
			[]string{"stage"},
		),
		lastRunSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      MetricLastRunSuccess,
				Help:      "1 if the last run completed successfully, 0 otherwise.",
			},
		),
		lastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      MetricLastRunTimestamp,
				Help:      "Unix time the last run finished.",
			},
		),
		lastRunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      MetricLastRunDuration,
				Help:      "Duration of the last run.",
			},
		),
	}

	m.registry.MustRegister(
		m.rowsPresented,
		m.rowsInserted,
		m.rowsRejected,
		m.cleaningOps,
		m.errors,
		m.stageDuration,
		m.lastRunSuccess,
		m.lastRunTimestamp,
		m.lastRunDuration,
	)

	return m
}

// RecordInsert records rows presented to and accepted by a table
func (m *RunMetrics) RecordInsert(table string, presented int, inserted int64) {
	m.rowsPresented.WithLabelValues(table).Add(float64(presented))
	m.rowsInserted.WithLabelValues(table).Add(float64(inserted))
}

// RecordRejected records source rows rejected for a dataset
func (m *RunMetrics) RecordRejected(dataset string, n int) {
	m.rowsRejected.WithLabelValues(dataset).Add(float64(n))
}

// RecordCleaningOperation increments the count for one operation type
func (m *RunMetrics) RecordCleaningOperation(operation string) {
	m.cleaningOps.WithLabelValues(operation).Inc()
}

// RecordError increments the count for a specific error category
func (m *RunMetrics) RecordError(category ErrorCategory) {
	m.errors.WithLabelValues(category.String()).Inc()
}

// RecordStage records a finished stage
func (m *RunMetrics) RecordStage(stage *StageResult) {
	m.stageDuration.WithLabelValues(stage.Name).Set(stage.Duration.Seconds())
}

// RecordRun records the outcome of a completed run
func (m *RunMetrics) RecordRun(result *RunResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	success := 0.0
	if result.Success {
		success = 1
	}
	m.lastRunSuccess.Set(success)
	m.lastRunTimestamp.Set(float64(result.EndTime.Unix()))
	m.lastRunDuration.Set(result.Duration.Seconds())

	if m.logger != nil {
		m.logger.Info("Load run completed",
			zap.String("runID", result.RunID),
			zap.Bool("success", result.Success),
			zap.Duration("duration", result.Duration),
			zap.Int("households", result.Households),
			zap.Int("persons", result.Persons),
			zap.Int64("rowsInserted", result.TotalInserted()),
			zap.Int("cleaningOps", result.CleaningOps),
			zap.String("throughput", formatThroughput(result.TotalInserted(), result.Duration)))
	}
}

// WriteTextfile writes the registry in the Prometheus text format
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// formatThroughput formats rows per second for logs
func formatThroughput(rows int64, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f rows/sec", float64(rows)/d.Seconds())
}
