package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
)

const ProviderStripe = "stripe"

// Kind is the processor-neutral classification of a verified event.
type Kind string

const (
	KindSessionCompleted       Kind = "session_completed"
	KindSessionExpired         Kind = "session_expired"
	KindPaymentIntentSucceeded Kind = "payment_intent_succeeded"
	KindPaymentIntentFailed    Kind = "payment_intent_failed"
	KindChargeRefunded         Kind = "charge_refunded"
	KindUnhandled              Kind = "unhandled"
)

// Signal maps an event kind onto the booking transition it drives.
func (k Kind) Signal() (bookingdomain.Signal, bool) {
	switch k {
	case KindSessionCompleted:
		return bookingdomain.SignalCheckoutCompleted, true
	case KindSessionExpired:
		return bookingdomain.SignalCheckoutExpired, true
	case KindPaymentIntentSucceeded:
		return bookingdomain.SignalPaymentSucceeded, true
	case KindPaymentIntentFailed:
		return bookingdomain.SignalPaymentFailed, true
	case KindChargeRefunded:
		return bookingdomain.SignalChargeRefunded, true
	default:
		return "", false
	}
}

// Event is a verified, decoded processor notification. It is never persisted
// as a source of truth.
type Event struct {
	ID              string
	Type            string
	Kind            Kind
	SessionID       string
	PaymentIntentID string
	BookingID       snowflake.ID
	CustomerID      snowflake.ID
	ProviderID      snowflake.ID
	PaymentStatus   string
	OccurredAt      time.Time
	Raw             []byte
}
