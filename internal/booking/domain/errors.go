package domain

import "errors"

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrInvalidService     = errors.New("invalid_service")
	ErrInvalidSchedule    = errors.New("invalid_schedule")
	ErrInvalidHours       = errors.New("invalid_hours")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrNotFound           = errors.New("not_found")
	ErrConflict           = errors.New("conflict")

	ErrInvalidTransition       = errors.New("invalid_transition")
	ErrPaymentCompleted        = errors.New("payment_completed")
	ErrBookingCancelled        = errors.New("booking_cancelled")
	ErrMissingPaymentReference = errors.New("missing_payment_reference")
	ErrPaymentIntentMismatch   = errors.New("payment_intent_mismatch")
	ErrReceiptUnavailable      = errors.New("receipt_unavailable")
	ErrInvariantViolated       = errors.New("invariant_violated")
)
