package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReconcilerReasonDeadlineExceeded     = "deadline_exceeded"
	ReconcilerReasonDBLockTimeout        = "db_lock_timeout"
	ReconcilerReasonSerializationFailure = "serialization_failure"
	ReconcilerReasonDB                   = "db"
	ReconcilerReasonUnknown              = "unknown"
)

const (
	SkipReasonPayableMissing     = "payable_missing"
	SkipReasonPayableUnsupported = "payable_unsupported"
	SkipReasonPayableTerminal    = "payable_terminal"
	SkipReasonNotificationFailed = "notification_failed"
	SkipReasonLockHeld           = "lock_held"
)

// ReconcilerMetrics captures expiry reconciliation health.
type ReconcilerMetrics struct {
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	timeouts   *prometheus.CounterVec
	errors     *prometheus.CounterVec
	processed  *prometheus.CounterVec
	skipped    *prometheus.CounterVec
	runLoopLag prometheus.Observer
}

var (
	reconcilerMetricsOnce sync.Once
	reconcilerMetrics     *ReconcilerMetrics
)

// Reconciler returns the singleton reconciler metrics registry.
func Reconciler() *ReconcilerMetrics {
	return ReconcilerWithConfig(Config{})
}

// ReconcilerWithConfig returns the singleton registry using config labels.
func ReconcilerWithConfig(cfg Config) *ReconcilerMetrics {
	reconcilerMetricsOnce.Do(func() {
		reconcilerMetrics = newReconcilerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcilerMetrics
}

// ResetReconcilerMetricsForTest resets the singleton for tests.
func ResetReconcilerMetricsForTest() {
	reconcilerMetricsOnce = sync.Once{}
	reconcilerMetrics = nil
}

func newReconcilerMetrics(registerer prometheus.Registerer, cfg Config) *ReconcilerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "payforms"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payforms_reconciler_runs_total",
		Help:        "Expiry reconciler runs by job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "payforms_reconciler_duration_seconds",
		Help:        "Expiry reconciler run latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	timeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payforms_reconciler_timeouts_total",
		Help:        "Expiry reconciler tenant runs that hit their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	errorsVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payforms_reconciler_errors_total",
		Help:        "Expiry reconciler errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payforms_reconciler_processed_total",
		Help:        "Payables notified of payment expiry.",
		ConstLabels: constLabels,
	}, []string{"job"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payforms_reconciler_skipped_total",
		Help:        "Expired transactions skipped by reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "payforms_reconciler_runloop_lag_seconds",
		Help:        "Reconciler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(runs, duration, timeouts, errorsVec, processed, skipped, runLoopLag)

	return &ReconcilerMetrics{
		runs:       runs,
		duration:   duration,
		timeouts:   timeouts,
		errors:     errorsVec,
		processed:  processed,
		skipped:    skipped,
		runLoopLag: runLoopLag,
	}
}

func (m *ReconcilerMetrics) IncRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

func (m *ReconcilerMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *ReconcilerMetrics) IncTimeout(job string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(job).Inc()
}

// IncError increments the error counter with a classified reason.
func (m *ReconcilerMetrics) IncError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(job, ClassifyReconcilerReason(err)).Inc()
}

func (m *ReconcilerMetrics) AddProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.processed.WithLabelValues(job).Add(float64(count))
}

func (m *ReconcilerMetrics) IncSkipped(job, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(job, reason).Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *ReconcilerMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.runLoopLag.Observe(d.Seconds())
}

// ClassifyReconcilerReason maps errors to low-cardinality reasons.
func ClassifyReconcilerReason(err error) string {
	switch {
	case err == nil:
		return ReconcilerReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReconcilerReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return ReconcilerReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReconcilerReasonSerializationFailure
	case isDBError(err):
		return ReconcilerReasonDB
	default:
		return ReconcilerReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
