package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
)

type SessionResult struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type CheckoutService interface {
	CreateSession(ctx context.Context, bookingID string) (SessionResult, error)
}

// Command asks the reconciliation engine to apply one signal to one booking.
type Command struct {
	BookingID snowflake.ID
	Signal    bookingdomain.Signal
	Evidence  bookingdomain.Evidence
	Source    string
	EventID   string
}

const (
	SourceWebhook         = "webhook"
	SourceReturnRedirect  = "return_redirect"
	SourceCustomerAbandon = "customer_abandon"
)

type Result struct {
	BookingID snowflake.ID
	Outcome   bookingdomain.Outcome
	Reason    string
	Booking   bookingdomain.Booking
	Attempts  int
}

// Err reports a redelivered signal as ErrDuplicateEvent. Any other outcome
// is nil; rejections arrive as the Apply error instead.
func (r Result) Err() error {
	if r.Outcome == bookingdomain.OutcomeDuplicate {
		return ErrDuplicateEvent
	}
	return nil
}

type Reconciler interface {
	Apply(ctx context.Context, cmd Command) (Result, error)
}

type StatusView struct {
	BookingID     string                      `json:"booking_id"`
	Status        bookingdomain.Status        `json:"status"`
	PaymentStatus bookingdomain.PaymentStatus `json:"payment_status"`
	PaidAt        *time.Time                  `json:"paid_at,omitempty"`
}

type StatusService interface {
	GetStatus(ctx context.Context, bookingID string) (StatusView, error)
	VerifyAndComplete(ctx context.Context, bookingID, sessionID string) (StatusView, error)
	Abandon(ctx context.Context, bookingID string) (StatusView, error)
}

type WebhookResult struct {
	EventID   string `json:"event_id"`
	Kind      Kind   `json:"kind"`
	Outcome   string `json:"outcome"`
	BookingID string `json:"booking_id,omitempty"`
}

type WebhookService interface {
	Ingest(ctx context.Context, payload []byte, signatureHeader string) (WebhookResult, error)
}

type RefundResult struct {
	RefundID      string `json:"refund_id"`
	Status        string `json:"status"`
	BookingID     string `json:"booking_id"`
	PaymentStatus string `json:"payment_status"`
}

type RefundService interface {
	Refund(ctx context.Context, bookingID string) (RefundResult, error)
}

// ParseBookingID parses a path or body booking id.
func ParseBookingID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, bookingdomain.ErrInvalidID
	}
	return id, nil
}
