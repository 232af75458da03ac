package refund

import (
	"context"
	"testing"
	"time"

	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	bookingrepo "github.com/smallbiznis/servicepoint/internal/booking/repository"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"github.com/smallbiznis/servicepoint/internal/payment/paymenttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func paid(b *bookingdomain.Booking, now time.Time) {
	session, intent := "cs_1", "pi_1"
	b.PaymentStatus = bookingdomain.PaymentCompleted
	b.Status = bookingdomain.StatusConfirmed
	b.CheckoutSessionID = &session
	b.PaymentIntentID = &intent
	b.PaidAt = &now
}

func TestRefund(t *testing.T) {
	db := paymenttest.OpenDB(t)
	repo := bookingrepo.Provide()
	processor := &paymenttest.FakeProcessor{}
	svc := New(Params{DB: db, Log: zap.NewNop(), BookingRepo: repo, Processor: processor})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	b := paymenttest.NewBooking(42, now)
	paid(&b, now)
	paymenttest.SeedBooking(t, db, repo, b)
	paymenttest.SeedBooking(t, db, repo, paymenttest.NewBooking(43, now))

	res, err := svc.Refund(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "re_1", res.RefundID)
	assert.Equal(t, "completed", res.PaymentStatus)
	require.Len(t, processor.Refunds, 1)
	assert.Equal(t, "pi_1", processor.Refunds[0].PaymentIntentID)
	assert.Equal(t, "requested_by_customer", processor.Refunds[0].Reason)

	// The row waits for the charge.refunded notification.
	stored := paymenttest.LoadBooking(t, db, repo, 42)
	assert.Equal(t, bookingdomain.PaymentCompleted, stored.PaymentStatus)

	_, err = svc.Refund(context.Background(), "43")
	assert.ErrorIs(t, err, paymentdomain.ErrPreconditionFailed)

	_, err = svc.Refund(context.Background(), "44")
	assert.ErrorIs(t, err, bookingdomain.ErrNotFound)
	assert.Len(t, processor.Refunds, 1)
}

func TestRefundProcessorUnavailable(t *testing.T) {
	db := paymenttest.OpenDB(t)
	repo := bookingrepo.Provide()
	processor := &paymenttest.FakeProcessor{
		RefundFn: func(paymentdomain.RefundRequest) (paymentdomain.Refund, error) {
			return paymentdomain.Refund{}, paymentdomain.ErrProcessorUnavailable
		},
	}
	svc := New(Params{DB: db, Log: zap.NewNop(), BookingRepo: repo, Processor: processor})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	b := paymenttest.NewBooking(42, now)
	paid(&b, now)
	paymenttest.SeedBooking(t, db, repo, b)

	_, err := svc.Refund(context.Background(), "42")
	assert.ErrorIs(t, err, paymentdomain.ErrProcessorUnavailable)
}
