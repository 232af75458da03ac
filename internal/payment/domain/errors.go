package domain

import "errors"

var (
	ErrAuthentication       = errors.New("authentication_failed")
	ErrUnknownBooking       = errors.New("unknown_booking")
	ErrDuplicateEvent       = errors.New("duplicate_event")
	ErrProcessorUnavailable = errors.New("processor_unavailable")
	ErrPreconditionFailed   = errors.New("precondition_failed")
	ErrStorageConflict      = errors.New("storage_conflict")
	ErrCheckoutInProgress   = errors.New("checkout_in_progress")
	ErrBookingCancelled     = errors.New("booking_cancelled")

	ErrInvalidPayload = errors.New("invalid_payload")
	ErrInvalidConfig  = errors.New("invalid_config")
	ErrInvalidBooking = errors.New("invalid_booking")
)
