package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a payment fact about a booking, already authenticated.
type Signal string

const (
	SignalCheckoutCompleted Signal = "checkout_completed"
	SignalCheckoutExpired   Signal = "checkout_expired"
	SignalPaymentFailed     Signal = "payment_failed"
	SignalPaymentSucceeded  Signal = "payment_succeeded"
	SignalCheckoutAbandoned Signal = "checkout_abandoned"
	SignalChargeRefunded    Signal = "charge_refunded"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeRejected  Outcome = "rejected"
)

// Evidence is what the processor told us alongside the signal.
type Evidence struct {
	SessionID       string
	PaymentIntentID string
	At              time.Time
}

// PaymentFields is the write side of a payment transition. Nil pointers are
// left untouched.
type PaymentFields struct {
	PaymentStatus     PaymentStatus
	Status            *Status
	CheckoutSessionID *string
	PaymentIntentID   *string
	PaidAt            *time.Time
	RefundedAt        *time.Time
	UpdatedAt         time.Time
}

// Decision is the result of Decide. Fields and Expected are meaningful only
// when Outcome is OutcomeApplied; Err only when it is OutcomeRejected.
type Decision struct {
	Outcome  Outcome
	Reason   string
	Expected PaymentStatus
	Fields   PaymentFields
	Err      error
}

// Decide computes the payment transition for b. It never mutates b and has
// no side effects, so the caller owns locking and persistence.
func Decide(b Booking, signal Signal, ev Evidence) Decision {
	switch signal {
	case SignalCheckoutCompleted:
		return decideCompleted(b, ev)
	case SignalCheckoutExpired:
		return decideNonTerminal(b, PaymentExpired, ev, "stale expiry after completion")
	case SignalPaymentFailed:
		return decideNonTerminal(b, PaymentFailed, ev, "stale failure after completion")
	case SignalPaymentSucceeded:
		return Decision{Outcome: OutcomeStale, Reason: "intent success acknowledged; completion is carried by the checkout session"}
	case SignalCheckoutAbandoned:
		return decideAbandoned(b, ev)
	case SignalChargeRefunded:
		return decideRefunded(b, ev)
	default:
		return Decision{Outcome: OutcomeRejected, Reason: "unknown signal " + string(signal), Err: ErrInvalidTransition}
	}
}

func decideCompleted(b Booking, ev Evidence) Decision {
	switch {
	case b.PaymentStatus == PaymentCompleted:
		return Decision{Outcome: OutcomeDuplicate, Reason: "payment already completed"}
	case b.PaymentStatus == PaymentRefunded:
		return Decision{Outcome: OutcomeStale, Reason: "completion after refund"}
	case b.Status == StatusCancelled:
		return Decision{Outcome: OutcomeRejected, Reason: "completion for cancelled booking requires manual refund", Err: ErrBookingCancelled}
	case ev.SessionID == "" || ev.PaymentIntentID == "":
		return Decision{Outcome: OutcomeRejected, Reason: "completion without session or payment intent", Err: ErrMissingPaymentReference}
	}

	status := b.Status
	if status == StatusPending {
		status = StatusConfirmed
	}
	sessionID := ev.SessionID
	intentID := ev.PaymentIntentID
	paidAt := ev.At
	return Decision{
		Outcome:  OutcomeApplied,
		Expected: b.PaymentStatus,
		Fields: PaymentFields{
			PaymentStatus:     PaymentCompleted,
			Status:            &status,
			CheckoutSessionID: &sessionID,
			PaymentIntentID:   &intentID,
			PaidAt:            &paidAt,
			UpdatedAt:         ev.At,
		},
	}
}

func decideNonTerminal(b Booking, next PaymentStatus, ev Evidence, staleReason string) Decision {
	switch b.PaymentStatus {
	case PaymentCompleted, PaymentRefunded:
		return Decision{Outcome: OutcomeStale, Reason: staleReason}
	case next:
		return Decision{Outcome: OutcomeDuplicate, Reason: "payment already " + string(next)}
	}
	return Decision{
		Outcome:  OutcomeApplied,
		Expected: b.PaymentStatus,
		Fields: PaymentFields{
			PaymentStatus: next,
			UpdatedAt:     ev.At,
		},
	}
}

func decideAbandoned(b Booking, ev Evidence) Decision {
	switch b.PaymentStatus {
	case PaymentPending, PaymentExpired, PaymentFailed:
		return Decision{
			Outcome:  OutcomeApplied,
			Expected: b.PaymentStatus,
			Fields: PaymentFields{
				PaymentStatus: PaymentCancelled,
				UpdatedAt:     ev.At,
			},
		}
	case PaymentCancelled:
		return Decision{Outcome: OutcomeDuplicate, Reason: "checkout already abandoned"}
	default:
		return Decision{Outcome: OutcomeStale, Reason: "abandon after " + string(b.PaymentStatus)}
	}
}

func decideRefunded(b Booking, ev Evidence) Decision {
	switch b.PaymentStatus {
	case PaymentRefunded:
		return Decision{Outcome: OutcomeDuplicate, Reason: "payment already refunded"}
	case PaymentCompleted:
	default:
		return Decision{Outcome: OutcomeRejected, Reason: "refund for unpaid booking", Err: ErrInvalidTransition}
	}
	if ev.PaymentIntentID == "" || b.PaymentIntentID == nil || *b.PaymentIntentID != ev.PaymentIntentID {
		return Decision{Outcome: OutcomeRejected, Reason: "refund does not match the booking payment intent", Err: ErrPaymentIntentMismatch}
	}

	status := StatusCancelled
	refundedAt := ev.At
	return Decision{
		Outcome:  OutcomeApplied,
		Expected: PaymentCompleted,
		Fields: PaymentFields{
			PaymentStatus: PaymentRefunded,
			Status:        &status,
			RefundedAt:    &refundedAt,
			UpdatedAt:     ev.At,
		},
	}
}

// Apply returns b with an applied decision's fields merged in. It is used to
// validate the post-state before it is written.
func (d Decision) Apply(b Booking) Booking {
	if d.Outcome != OutcomeApplied {
		return b
	}
	b.PaymentStatus = d.Fields.PaymentStatus
	if d.Fields.Status != nil {
		b.Status = *d.Fields.Status
	}
	if d.Fields.CheckoutSessionID != nil {
		b.CheckoutSessionID = d.Fields.CheckoutSessionID
	}
	if d.Fields.PaymentIntentID != nil {
		b.PaymentIntentID = d.Fields.PaymentIntentID
	}
	if d.Fields.PaidAt != nil {
		b.PaidAt = d.Fields.PaidAt
	}
	if d.Fields.RefundedAt != nil {
		b.RefundedAt = d.Fields.RefundedAt
	}
	b.UpdatedAt = d.Fields.UpdatedAt
	return b
}

// MinorUnits converts a major-unit amount to cents with half-to-even rounding.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).RoundBank(0).IntPart()
}

// RoundCents rounds a major-unit amount to two places, half to even.
func RoundCents(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(2)
}

// Lifecycle guards for user and admin actions. Payment-driven transitions go
// through Decide.

func CanCancel(b Booking) error {
	if b.PaymentStatus == PaymentCompleted || b.PaymentStatus == PaymentRefunded {
		return ErrPaymentCompleted
	}
	switch b.Status {
	case StatusPending, StatusConfirmed, StatusPaid:
		return nil
	case StatusCancelled:
		return ErrBookingCancelled
	default:
		return ErrInvalidTransition
	}
}

func CanStart(b Booking) error {
	if b.Status != StatusConfirmed && b.Status != StatusPaid {
		return ErrInvalidTransition
	}
	if b.PaymentStatus != PaymentCompleted {
		return ErrInvalidTransition
	}
	return nil
}

func CanFinish(b Booking) error {
	if b.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	return nil
}

func CanReschedule(b Booking) error {
	switch b.Status {
	case StatusCancelled:
		return ErrBookingCancelled
	case StatusCompleted:
		return ErrInvalidTransition
	default:
		return nil
	}
}

func CanDelete(b Booking) error {
	if b.HasPaymentHistory() {
		return ErrPaymentCompleted
	}
	return nil
}

func CanRefund(b Booking) error {
	if b.PaymentStatus != PaymentCompleted {
		return ErrInvalidTransition
	}
	if b.Status != StatusConfirmed && b.Status != StatusPaid {
		return ErrInvalidTransition
	}
	if b.PaymentIntentID == nil || *b.PaymentIntentID == "" {
		return ErrMissingPaymentReference
	}
	return nil
}
