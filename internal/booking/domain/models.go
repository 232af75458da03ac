package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusPaid       Status = "paid"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPaid, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentExpired   PaymentStatus = "expired"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentExpired, PaymentCancelled, PaymentFailed, PaymentRefunded:
		return true
	default:
		return false
	}
}

type PricingType string

const (
	PricingHourly  PricingType = "hourly"
	PricingPerWork PricingType = "per_work"
)

// Booking carries both the service lifecycle and the payment fields so a
// single guarded row update moves them together.
type Booking struct {
	ID                   snowflake.ID        `gorm:"primaryKey" json:"id"`
	CustomerID           snowflake.ID        `gorm:"not null;index" json:"customer_id"`
	ProviderID           snowflake.ID        `gorm:"not null;index" json:"provider_id"`
	ServiceID            snowflake.ID        `gorm:"not null" json:"service_id"`
	PriceAtBooking       decimal.Decimal     `gorm:"type:numeric(14,4);not null" json:"price_at_booking"`
	PricingTypeAtBooking PricingType         `gorm:"not null" json:"pricing_type_at_booking"`
	Hours                decimal.NullDecimal `gorm:"type:numeric(8,2)" json:"hours"`
	TotalPrice           decimal.NullDecimal `gorm:"type:numeric(14,4)" json:"total_price"`
	ServiceDateTime      time.Time           `gorm:"not null" json:"service_date_time"`
	Notes                string              `gorm:"not null" json:"notes"`
	Status               Status              `gorm:"not null" json:"status"`
	PaymentStatus        PaymentStatus       `gorm:"not null" json:"payment_status"`
	CheckoutSessionID    *string             `json:"checkout_session_id,omitempty"`
	PaymentIntentID      *string             `json:"payment_intent_id,omitempty"`
	PaidAt               *time.Time          `json:"paid_at,omitempty"`
	RefundedAt           *time.Time          `json:"refunded_at,omitempty"`
	BookingDate          time.Time           `gorm:"not null" json:"booking_date"`
	CreatedAt            time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"not null" json:"updated_at"`
}

func (Booking) TableName() string {
	return "bookings"
}

// ChargeAmount is what the customer pays: the total when one was computed,
// otherwise the price snapshot.
func (b Booking) ChargeAmount() decimal.Decimal {
	if b.TotalPrice.Valid {
		return b.TotalPrice.Decimal
	}
	return b.PriceAtBooking
}

// HasPaymentHistory reports whether money has moved for this booking.
func (b Booking) HasPaymentHistory() bool {
	return b.PaymentStatus == PaymentCompleted || b.PaymentStatus == PaymentRefunded
}

// Validate checks the cross-field rules every persisted booking must satisfy.
func (b Booking) Validate() error {
	if !b.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvariantViolated, b.Status)
	}
	if !b.PaymentStatus.Valid() {
		return fmt.Errorf("%w: payment_status %q", ErrInvariantViolated, b.PaymentStatus)
	}
	if b.PriceAtBooking.IsNegative() {
		return fmt.Errorf("%w: negative price snapshot", ErrInvariantViolated)
	}

	switch b.PaymentStatus {
	case PaymentCompleted:
		if !hasReferences(b) {
			return fmt.Errorf("%w: completed payment without session, intent and paid_at", ErrInvariantViolated)
		}
		switch b.Status {
		case StatusPaid, StatusConfirmed, StatusInProgress, StatusCompleted:
		default:
			return fmt.Errorf("%w: completed payment with status %q", ErrInvariantViolated, b.Status)
		}
	case PaymentRefunded:
		if !hasReferences(b) || b.RefundedAt == nil {
			return fmt.Errorf("%w: refunded payment without references", ErrInvariantViolated)
		}
	default:
		if b.RefundedAt != nil {
			return fmt.Errorf("%w: refunded_at set on %q payment", ErrInvariantViolated, b.PaymentStatus)
		}
	}
	return nil
}

func hasReferences(b Booking) bool {
	return b.CheckoutSessionID != nil && *b.CheckoutSessionID != "" &&
		b.PaymentIntentID != nil && *b.PaymentIntentID != "" &&
		b.PaidAt != nil
}
