package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StorageReasonDeadlineExceeded     = "deadline_exceeded"
	StorageReasonDBLockTimeout        = "db_lock_timeout"
	StorageReasonSerializationFailure = "serialization_failure"
	StorageReasonDeadlock             = "deadlock"
	StorageReasonUniqueViolation      = "unique_violation"
	StorageReasonGuardMismatch        = "guard_mismatch"
	StorageReasonUnknown              = "unknown"
)

// ReconcileMetrics captures booking reconciliation health for the prometheus scrape.
type ReconcileMetrics struct {
	outcomes  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	lockWait  prometheus.Histogram
	attempts  prometheus.Histogram
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// NewReconcileMetrics returns the singleton reconciliation metrics registry.
func NewReconcileMetrics(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

// NewReconcileMetricsWithRegistry builds an unshared registry-bound instance, used by tests.
func NewReconcileMetricsWithRegistry(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	return newReconcileMetrics(registerer, cfg)
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := serviceLabels(cfg)

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "servicepoint_reconcile_outcomes_total",
		Help:        "Booking reconciliation outcomes by signal.",
		ConstLabels: constLabels,
	}, []string{"signal", "outcome"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "servicepoint_reconcile_conflicts_total",
		Help:        "Booking writes that lost a race or hit a retryable storage error.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "servicepoint_reconcile_lock_wait_seconds",
		Help:        "Time spent acquiring the booking row lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	})
	attempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "servicepoint_reconcile_attempts",
		Help:        "Transaction attempts needed per reconciliation.",
		Buckets:     []float64{1, 2, 3, 4, 5},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(outcomes, conflicts, lockWait, attempts)

	return &ReconcileMetrics{
		outcomes:  outcomes,
		conflicts: conflicts,
		lockWait:  lockWait,
		attempts:  attempts,
	}
}

// IncOutcome counts one reconciliation result.
func (m *ReconcileMetrics) IncOutcome(signal, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(strings.TrimSpace(signal), strings.TrimSpace(outcome)).Inc()
}

// IncConflict counts a lost race or retryable storage failure.
func (m *ReconcileMetrics) IncConflict(err error) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(ClassifyStorageReason(err)).Inc()
}

// ObserveLockWait records how long the booking row lock took.
func (m *ReconcileMetrics) ObserveLockWait(duration time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.lockWait.Observe(duration.Seconds())
}

// ObserveAttempts records how many transaction attempts a reconciliation used.
func (m *ReconcileMetrics) ObserveAttempts(n int) {
	if m == nil || m.attempts == nil || n <= 0 {
		return
	}
	m.attempts.Observe(float64(n))
}

// ErrGuardMismatch marks a compare-and-set that matched zero rows.
var ErrGuardMismatch = errors.New("guard_mismatch")

// ClassifyStorageReason maps storage errors to low-cardinality reasons.
func ClassifyStorageReason(err error) string {
	switch {
	case err == nil:
		return StorageReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return StorageReasonDeadlineExceeded
	case errors.Is(err, ErrGuardMismatch):
		return StorageReasonGuardMismatch
	case hasSQLState(err, "55P03"):
		return StorageReasonDBLockTimeout
	case hasSQLState(err, "40001"):
		return StorageReasonSerializationFailure
	case hasSQLState(err, "40P01"):
		return StorageReasonDeadlock
	case errors.Is(err, gorm.ErrDuplicatedKey), hasSQLState(err, "23505"):
		return StorageReasonUniqueViolation
	default:
		return StorageReasonUnknown
	}
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}
