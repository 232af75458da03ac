// Package paymenttest holds fixtures shared by the payment package tests.
package paymenttest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const bookingsDDL = `CREATE TABLE bookings (
	id BIGINT PRIMARY KEY,
	customer_id BIGINT NOT NULL,
	provider_id BIGINT NOT NULL,
	service_id BIGINT NOT NULL,
	price_at_booking TEXT NOT NULL,
	pricing_type_at_booking TEXT NOT NULL,
	hours TEXT NULL,
	total_price TEXT NULL,
	service_date_time TIMESTAMP NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	checkout_session_id TEXT NULL,
	payment_intent_id TEXT NULL,
	paid_at TIMESTAMP NULL,
	refunded_at TIMESTAMP NULL,
	booking_date TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const deliveriesDDL = `CREATE TABLE payment_webhook_deliveries (
	id BIGINT PRIMARY KEY,
	provider TEXT NOT NULL,
	provider_event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	kind TEXT NOT NULL,
	booking_id BIGINT NULL,
	session_id TEXT NULL,
	payload TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	received_at TIMESTAMP NOT NULL,
	processed_at TIMESTAMP NULL
)`

// OpenDB returns a single-connection in-memory database with the booking and
// delivery tables created.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.Exec(bookingsDDL).Error)
	require.NoError(t, conn.Exec(deliveriesDDL).Error)
	return conn
}

// NewBooking returns a pending booking priced at 49.99.
func NewBooking(id int64, now time.Time) bookingdomain.Booking {
	return bookingdomain.Booking{
		ID:                   snowflake.ID(id),
		CustomerID:           snowflake.ID(7),
		ProviderID:           snowflake.ID(9),
		ServiceID:            snowflake.ID(501),
		PriceAtBooking:       decimal.RequireFromString("49.99"),
		PricingTypeAtBooking: bookingdomain.PricingPerWork,
		TotalPrice:           decimal.NewNullDecimal(decimal.RequireFromString("49.99")),
		ServiceDateTime:      now.Add(72 * time.Hour),
		Status:               bookingdomain.StatusPending,
		PaymentStatus:        bookingdomain.PaymentPending,
		BookingDate:          now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// SeedBooking inserts b through the given repository.
func SeedBooking(t *testing.T, db *gorm.DB, repo bookingdomain.Repository, b bookingdomain.Booking) bookingdomain.Booking {
	t.Helper()
	require.NoError(t, repo.Insert(context.Background(), db, &b))
	return b
}

// LoadBooking reads a booking back, failing the test when it is missing.
func LoadBooking(t *testing.T, db *gorm.DB, repo bookingdomain.Repository, id snowflake.ID) bookingdomain.Booking {
	t.Helper()
	b, err := repo.FindByID(context.Background(), db, id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return *b
}

// FakeProcessor records calls and answers from its configured hooks.
type FakeProcessor struct {
	mu sync.Mutex

	CreateFn   func(req paymentdomain.CheckoutSessionRequest) (paymentdomain.CheckoutSession, error)
	RetrieveFn func(sessionID string) (paymentdomain.CheckoutSession, error)
	RefundFn   func(req paymentdomain.RefundRequest) (paymentdomain.Refund, error)

	Creates   []paymentdomain.CheckoutSessionRequest
	Retrieves []string
	Refunds   []paymentdomain.RefundRequest
}

func (p *FakeProcessor) CreateCheckoutSession(_ context.Context, req paymentdomain.CheckoutSessionRequest) (paymentdomain.CheckoutSession, error) {
	p.mu.Lock()
	p.Creates = append(p.Creates, req)
	fn := p.CreateFn
	p.mu.Unlock()
	if fn == nil {
		return paymentdomain.CheckoutSession{ID: "cs_" + req.BookingID.String(), URL: "https://checkout.example/" + req.BookingID.String(), Status: "open"}, nil
	}
	return fn(req)
}

func (p *FakeProcessor) RetrieveCheckoutSession(_ context.Context, sessionID string) (paymentdomain.CheckoutSession, error) {
	p.mu.Lock()
	p.Retrieves = append(p.Retrieves, sessionID)
	fn := p.RetrieveFn
	p.mu.Unlock()
	if fn == nil {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrPreconditionFailed
	}
	return fn(sessionID)
}

func (p *FakeProcessor) CreateRefund(_ context.Context, req paymentdomain.RefundRequest) (paymentdomain.Refund, error) {
	p.mu.Lock()
	p.Refunds = append(p.Refunds, req)
	fn := p.RefundFn
	p.mu.Unlock()
	if fn == nil {
		return paymentdomain.Refund{ID: "re_1", Status: "pending", PaymentIntentID: req.PaymentIntentID}, nil
	}
	return fn(req)
}

// CreateCount reports how many sessions were requested.
func (p *FakeProcessor) CreateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Creates)
}

// SignatureHeader builds a Stripe-Signature header for payload.
func SignatureHeader(secret string, ts time.Time, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.", ts.Unix())
	_, _ = mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
