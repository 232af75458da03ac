package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicepoint/internal/booking/domain"
	"github.com/smallbiznis/servicepoint/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const bookingColumns = `id, customer_id, provider_id, service_id, price_at_booking, pricing_type_at_booking,
	hours, total_price, service_date_time, notes, status, payment_status, checkout_session_id,
	payment_intent_id, paid_at, refunded_at, booking_date, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID,
		booking.CustomerID,
		booking.ProviderID,
		booking.ServiceID,
		booking.PriceAtBooking,
		booking.PricingTypeAtBooking,
		booking.Hours,
		booking.TotalPrice,
		booking.ServiceDateTime,
		booking.Notes,
		booking.Status,
		booking.PaymentStatus,
		booking.CheckoutSessionID,
		booking.PaymentIntentID,
		booking.PaidAt,
		booking.RefundedAt,
		booking.BookingDate,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`,
		id,
	).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, nil
	}
	return &booking, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var booking domain.Booking
	// clause.Locking lets dialects without row locks drop FOR UPDATE.
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ?", id).
		Take(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}

func (r *repo) FindIDByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (snowflake.ID, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM bookings WHERE payment_intent_id = ? LIMIT 1`,
		paymentIntentID,
	).Scan(&ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return snowflake.ID(ids[0]), nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListBookingFilter, page pagination.Pagination) ([]*domain.Booking, error) {
	var bookings []*domain.Booking
	stmt := db.WithContext(ctx).Model(&domain.Booking{})
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.ProviderID != 0 {
		stmt = stmt.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		stmt = stmt.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.BeforeCreatedAt != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			*filter.BeforeCreatedAt, *filter.BeforeCreatedAt, filter.BeforeID)
	}

	limit := page.PageSize
	if limit <= 0 {
		limit = 10
	}
	// One extra row tells the caller whether another page exists.
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repo) CompareAndSetPaymentFields(ctx context.Context, db *gorm.DB, id snowflake.ID, expected domain.PaymentStatus, fields domain.PaymentFields) (bool, error) {
	updates := map[string]any{
		"payment_status": fields.PaymentStatus,
		"updated_at":     fields.UpdatedAt,
	}
	if fields.Status != nil {
		updates["status"] = *fields.Status
	}
	if fields.CheckoutSessionID != nil {
		updates["checkout_session_id"] = *fields.CheckoutSessionID
	}
	if fields.PaymentIntentID != nil {
		updates["payment_intent_id"] = *fields.PaymentIntentID
	}
	if fields.PaidAt != nil {
		updates["paid_at"] = *fields.PaidAt
	}
	if fields.RefundedAt != nil {
		updates["refunded_at"] = *fields.RefundedAt
	}

	result := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND payment_status = ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) CompareAndSetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, guard domain.StatusGuard, next domain.Status, updatedAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND payment_status = ?`,
		next,
		updatedAt,
		id,
		guard.Status,
		guard.PaymentStatus,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) UpdateSchedule(ctx context.Context, db *gorm.DB, id snowflake.ID, guard domain.StatusGuard, serviceDateTime time.Time, notes string, updatedAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings SET service_date_time = ?, notes = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND payment_status = ?`,
		serviceDateTime,
		notes,
		updatedAt,
		id,
		guard.Status,
		guard.PaymentStatus,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID, guard domain.StatusGuard) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM bookings WHERE id = ? AND status = ? AND payment_status = ?`,
		id,
		guard.Status,
		guard.PaymentStatus,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
