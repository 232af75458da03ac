package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeliveryRecord is an audit row for one verified webhook delivery. It is
// never read back to decide whether an event was already applied.
type DeliveryRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Kind            Kind           `json:"kind" gorm:"type:text;not null"`
	BookingID       *snowflake.ID  `json:"booking_id"`
	SessionID       *string        `json:"session_id"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Outcome         string         `json:"outcome" gorm:"type:text;not null"`
	Error           string         `json:"error" gorm:"type:text;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (DeliveryRecord) TableName() string { return "payment_webhook_deliveries" }

const (
	DeliveryReceived       = "received"
	DeliveryProcessed      = "processed"
	DeliveryDuplicate      = "duplicate"
	DeliveryStale          = "stale"
	DeliveryUnhandled      = "unhandled"
	DeliveryUnknownBooking = "unknown_booking"
	DeliveryRejected       = "rejected"
	DeliveryFailed         = "failed"
)

type DeliveryRepository interface {
	Insert(ctx context.Context, db *gorm.DB, record *DeliveryRecord) error
	MarkOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, bookingID *snowflake.ID, outcome, errMsg string, processedAt time.Time) error
	ListByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, limit int) ([]DeliveryRecord, error)
}
