package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicepoint/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	// FindByIDForUpdate must run inside a transaction; it holds the row lock
	// until that transaction ends.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	// FindIDByPaymentIntent resolves bookings for processor objects that do
	// not carry booking metadata, such as refunded charges.
	FindIDByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (snowflake.ID, error)
	List(ctx context.Context, db *gorm.DB, filter ListBookingFilter, page pagination.Pagination) ([]*Booking, error)

	// CompareAndSetPaymentFields writes fields only while payment_status still
	// equals expected. It reports whether a row was updated.
	CompareAndSetPaymentFields(ctx context.Context, db *gorm.DB, id snowflake.ID, expected PaymentStatus, fields PaymentFields) (bool, error)
	CompareAndSetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, guard StatusGuard, next Status, updatedAt time.Time) (bool, error)
	UpdateSchedule(ctx context.Context, db *gorm.DB, id snowflake.ID, guard StatusGuard, serviceDateTime time.Time, notes string, updatedAt time.Time) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID, guard StatusGuard) (bool, error)
}

// StatusGuard is the (status, payment_status) pair a lifecycle write expects
// to still hold.
type StatusGuard struct {
	Status        Status
	PaymentStatus PaymentStatus
}

func GuardOf(b Booking) StatusGuard {
	return StatusGuard{Status: b.Status, PaymentStatus: b.PaymentStatus}
}

type ListBookingFilter struct {
	CustomerID    snowflake.ID
	ProviderID    snowflake.ID
	Status        Status
	PaymentStatus PaymentStatus
	// Cursor bounds, decoded from the page token.
	BeforeCreatedAt *time.Time
	BeforeID        snowflake.ID
}
