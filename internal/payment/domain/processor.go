package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type CheckoutSessionRequest struct {
	BookingID   snowflake.ID
	CustomerID  snowflake.ID
	ProviderID  snowflake.ID
	AmountMinor int64
	Currency    string
	ProductName string
	Description string
	SuccessURL  string
	CancelURL   string
}

type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

// Paid reports whether the processor considers the session settled.
func (s CheckoutSession) Paid() bool {
	return s.Status == "complete" && (s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required")
}

type RefundRequest struct {
	BookingID       snowflake.ID
	PaymentIntentID string
	Reason          string
}

type Refund struct {
	ID              string
	Status          string
	PaymentIntentID string
	Amount          int64
	Currency        string
}

// Processor is the outbound port to the hosted-checkout provider. Transport
// failures and timeouts are reported as ErrProcessorUnavailable.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (CheckoutSession, error)
	CreateRefund(ctx context.Context, req RefundRequest) (Refund, error)
}

// Verifier authenticates a raw webhook body before anything parses it.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (Event, error)
}
