// Package reconcile applies authenticated payment signals to bookings. Every
// transition runs as one locked read, a pure decision and a guarded write.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	"github.com/smallbiznis/servicepoint/internal/clock"
	obsmetrics "github.com/smallbiznis/servicepoint/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"github.com/smallbiznis/servicepoint/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 20 * time.Millisecond
	defaultMaxInterval     = 250 * time.Millisecond
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Clock            clock.Clock
	Repo             bookingdomain.Repository
	Metrics          *obsmetrics.Metrics          `optional:"true"`
	ReconcileMetrics *obsmetrics.ReconcileMetrics `optional:"true"`
}

type Engine struct {
	db               *gorm.DB
	log              *zap.Logger
	clock            clock.Clock
	repo             bookingdomain.Repository
	metrics          *obsmetrics.Metrics
	reconcileMetrics *obsmetrics.ReconcileMetrics

	maxAttempts     uint
	initialInterval time.Duration
	maxInterval     time.Duration
}

func New(p Params) paymentdomain.Reconciler {
	return newEngine(p)
}

func newEngine(p Params) *Engine {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Engine{
		db:               p.DB,
		log:              log.Named("payment.reconcile"),
		clock:            clk,
		repo:             p.Repo,
		metrics:          p.Metrics,
		reconcileMetrics: p.ReconcileMetrics,
		maxAttempts:      defaultMaxAttempts,
		initialInterval:  defaultInitialInterval,
		maxInterval:      defaultMaxInterval,
	}
}

// Apply runs cmd against its booking. Duplicate and stale signals succeed
// with the matching outcome. Storage conflicts are retried a bounded number
// of times before ErrStorageConflict is returned.
func (e *Engine) Apply(ctx context.Context, cmd paymentdomain.Command) (paymentdomain.Result, error) {
	if cmd.BookingID == 0 {
		return paymentdomain.Result{}, paymentdomain.ErrUnknownBooking
	}
	if cmd.Evidence.At.IsZero() {
		cmd.Evidence.At = e.clock.Now()
	}
	cmd.Evidence.At = cmd.Evidence.At.UTC()

	attempts := 0
	operation := func() (paymentdomain.Result, error) {
		attempts++
		result, err := e.applyOnce(ctx, cmd)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, paymentdomain.ErrStorageConflict) {
			e.reconcileMetrics.IncConflict(err)
			e.log.Warn("reconcile conflict, retrying",
				zap.String("booking_id", cmd.BookingID.String()),
				zap.String("signal", string(cmd.Signal)),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return result, err
		}
		return result, backoff.Permanent(err)
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(e.maxAttempts),
	)
	result.BookingID = cmd.BookingID
	result.Attempts = attempts
	e.reconcileMetrics.ObserveAttempts(attempts)
	e.record(ctx, cmd, result, err)
	return result, err
}

func (e *Engine) applyOnce(ctx context.Context, cmd paymentdomain.Command) (paymentdomain.Result, error) {
	var result paymentdomain.Result
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStarted := time.Now()
		booking, err := e.repo.FindByIDForUpdate(ctx, tx, cmd.BookingID)
		e.reconcileMetrics.ObserveLockWait(time.Since(lockStarted))
		if err != nil {
			return err
		}
		if booking == nil {
			return paymentdomain.ErrUnknownBooking
		}

		decision := bookingdomain.Decide(*booking, cmd.Signal, cmd.Evidence)
		result = paymentdomain.Result{
			BookingID: booking.ID,
			Outcome:   decision.Outcome,
			Reason:    decision.Reason,
			Booking:   *booking,
		}

		switch decision.Outcome {
		case bookingdomain.OutcomeApplied:
		case bookingdomain.OutcomeRejected:
			return rejection(decision)
		default:
			return nil
		}

		next := decision.Apply(*booking)
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %w", paymentdomain.ErrPreconditionFailed, err)
		}

		updated, err := e.repo.CompareAndSetPaymentFields(ctx, tx, booking.ID, decision.Expected, decision.Fields)
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("%w: %w", paymentdomain.ErrStorageConflict, obsmetrics.ErrGuardMismatch)
		}
		result.Booking = next
		return nil
	})
	if err != nil && !errors.Is(err, paymentdomain.ErrStorageConflict) && db.IsRetryableErr(err) {
		err = fmt.Errorf("%w: %w", paymentdomain.ErrStorageConflict, err)
	}
	return result, err
}

func rejection(decision bookingdomain.Decision) error {
	if errors.Is(decision.Err, bookingdomain.ErrBookingCancelled) {
		return fmt.Errorf("%w: %s", paymentdomain.ErrBookingCancelled, decision.Reason)
	}
	if decision.Err != nil {
		return fmt.Errorf("%w: %w", paymentdomain.ErrPreconditionFailed, decision.Err)
	}
	return fmt.Errorf("%w: %s", paymentdomain.ErrPreconditionFailed, decision.Reason)
}

func (e *Engine) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.initialInterval
	b.MaxInterval = e.maxInterval
	return b
}

func (e *Engine) record(ctx context.Context, cmd paymentdomain.Command, result paymentdomain.Result, err error) {
	outcome := string(result.Outcome)
	switch {
	case errors.Is(err, paymentdomain.ErrUnknownBooking):
		outcome = "unknown_booking"
	case errors.Is(err, paymentdomain.ErrStorageConflict):
		outcome = "conflict"
	case err != nil && outcome == "":
		outcome = "error"
	}
	e.metrics.RecordReconciliation(ctx, string(cmd.Signal), outcome)
	e.reconcileMetrics.IncOutcome(string(cmd.Signal), outcome)

	fields := []zap.Field{
		zap.String("booking_id", cmd.BookingID.String()),
		zap.String("signal", string(cmd.Signal)),
		zap.String("source", cmd.Source),
		zap.String("outcome", outcome),
		zap.Int("attempts", result.Attempts),
	}
	if cmd.EventID != "" {
		fields = append(fields, zap.String("event_id", cmd.EventID))
	}
	if result.Reason != "" {
		fields = append(fields, zap.String("reason", result.Reason))
	}

	switch {
	case errors.Is(err, paymentdomain.ErrBookingCancelled):
		// Money was taken for a booking nobody will serve.
		e.log.Error("payment completed for cancelled booking, manual refund required",
			append(fields,
				zap.String("session_id", cmd.Evidence.SessionID),
				zap.String("payment_intent_id", cmd.Evidence.PaymentIntentID),
			)...,
		)
	case errors.Is(err, paymentdomain.ErrUnknownBooking):
		e.log.Warn("reconcile for unknown booking", fields...)
	case err != nil:
		e.log.Warn("reconcile failed", append(fields, zap.Error(err))...)
	case result.Outcome == bookingdomain.OutcomeApplied:
		e.log.Info("booking payment reconciled",
			append(fields, zap.String("payment_status", string(result.Booking.PaymentStatus)))...,
		)
	default:
		e.log.Debug("reconcile no-op", fields...)
	}
}
