package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicepoint/internal/payment/domain"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type repo struct{}

func Provide() domain.DeliveryRepository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.DeliveryRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_webhook_deliveries (
			id, provider, provider_event_id, event_type, kind, booking_id,
			session_id, payload, outcome, error, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Provider,
		record.ProviderEventID,
		record.EventType,
		record.Kind,
		record.BookingID,
		record.SessionID,
		record.Payload,
		record.Outcome,
		record.Error,
		record.ReceivedAt,
		record.ProcessedAt,
	).Error
}

func (r *repo) MarkOutcome(
	ctx context.Context,
	db *gorm.DB,
	id snowflake.ID,
	bookingID *snowflake.ID,
	outcome string,
	errMsg string,
	processedAt time.Time,
) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_webhook_deliveries
		 SET outcome = ?, error = ?, booking_id = COALESCE(?, booking_id), processed_at = ?
		 WHERE id = ?`,
		outcome,
		errMsg,
		bookingID,
		processedAt,
		id,
	).Error
}

func (r *repo) ListByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, limit int) ([]domain.DeliveryRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var items []domain.DeliveryRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, kind, booking_id,
			session_id, payload, outcome, error, received_at, processed_at
		 FROM payment_webhook_deliveries
		 WHERE booking_id = ?
		 ORDER BY received_at DESC, id DESC
		 LIMIT ?`,
		bookingID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
