package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	bookingrepo "github.com/smallbiznis/servicepoint/internal/booking/repository"
	catalogdomain "github.com/smallbiznis/servicepoint/internal/catalog/domain"
	"github.com/smallbiznis/servicepoint/internal/config"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"github.com/smallbiznis/servicepoint/internal/payment/paymenttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Create(ctx context.Context, req catalogdomain.CreateOfferingRequest) (catalogdomain.Offering, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(catalogdomain.Offering), args.Error(1)
}

func (m *mockCatalog) GetByID(ctx context.Context, id string) (catalogdomain.Offering, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(catalogdomain.Offering), args.Error(1)
}

func (m *mockCatalog) ListByProvider(ctx context.Context, req catalogdomain.ListOfferingsRequest) ([]catalogdomain.Offering, error) {
	args := m.Called(ctx, req)
	return args.Get(0).([]catalogdomain.Offering), args.Error(1)
}

type heldGuard struct{}

func (heldGuard) Acquire(context.Context, string) (func(context.Context), bool, error) {
	return func(context.Context) {}, false, nil
}

type brokenGuard struct{}

func (brokenGuard) Acquire(context.Context, string) (func(context.Context), bool, error) {
	return nil, false, errors.New("redis down")
}

type fixture struct {
	db        *gorm.DB
	repo      bookingdomain.Repository
	processor *paymenttest.FakeProcessor
	svc       *Service
	now       time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := paymenttest.OpenDB(t)
	repo := bookingrepo.Provide()
	processor := &paymenttest.FakeProcessor{}

	catalog := &mockCatalog{}
	catalog.On("GetByID", mock.Anything, "501").Return(catalogdomain.Offering{
		ID:           501,
		ProviderID:   9,
		ProviderName: "Ana",
		Name:         "House Cleaning",
	}, nil)

	svc := newService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Config:      config.Config{PublicBaseURL: "https://app.example/"},
		CheckoutCfg: config.NewStaticCheckoutConfigHolder(config.DefaultCheckoutConfig()),
		BookingRepo: repo,
		Catalog:     catalog,
		Processor:   processor,
	})

	return &fixture{
		db:        db,
		repo:      repo,
		processor: processor,
		svc:       svc,
		now:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) seed(t *testing.T, id int64, mutate func(*bookingdomain.Booking)) {
	t.Helper()
	b := paymenttest.NewBooking(id, f.now)
	if mutate != nil {
		mutate(&b)
	}
	paymenttest.SeedBooking(t, f.db, f.repo, b)
}

func TestCreateSession(t *testing.T) {
	f := setup(t)
	f.seed(t, 42, nil)

	res, err := f.svc.CreateSession(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "cs_42", res.SessionID)
	assert.Equal(t, int64(4999), res.AmountMinor)
	assert.Equal(t, "usd", res.Currency)

	require.Equal(t, 1, f.processor.CreateCount())
	req := f.processor.Creates[0]
	assert.Equal(t, snowflake.ID(42), req.BookingID)
	assert.Equal(t, snowflake.ID(7), req.CustomerID)
	assert.Equal(t, snowflake.ID(9), req.ProviderID)
	assert.Equal(t, "House Cleaning", req.ProductName)
	assert.Equal(t, "Booking with Ana", req.Description)
	assert.Equal(t, "https://app.example/booking/payment/success?session_id={CHECKOUT_SESSION_ID}&booking_id=42", req.SuccessURL)
	assert.Equal(t, "https://app.example/booking/payment/cancel?booking_id=42", req.CancelURL)

	// Session creation leaves the booking untouched.
	b := paymenttest.LoadBooking(t, f.db, f.repo, 42)
	assert.Nil(t, b.CheckoutSessionID)
	assert.Equal(t, bookingdomain.PaymentPending, b.PaymentStatus)
}

func TestCreateSessionUsesBankersRounding(t *testing.T) {
	f := setup(t)
	f.seed(t, 44, func(b *bookingdomain.Booking) {
		b.TotalPrice = decimal.NullDecimal{}
		b.PriceAtBooking = decimal.RequireFromString("19.985")
	})

	res, err := f.svc.CreateSession(context.Background(), "44")
	require.NoError(t, err)
	assert.Equal(t, int64(1998), res.AmountMinor)
}

func TestScenarioC_CompletedBookingIsRejected(t *testing.T) {
	f := setup(t)
	f.seed(t, 45, func(b *bookingdomain.Booking) {
		session, intent, paidAt := "cs_old", "pi_old", f.now
		b.PaymentStatus = bookingdomain.PaymentCompleted
		b.Status = bookingdomain.StatusConfirmed
		b.CheckoutSessionID = &session
		b.PaymentIntentID = &intent
		b.PaidAt = &paidAt
	})

	_, err := f.svc.CreateSession(context.Background(), "45")
	assert.ErrorIs(t, err, paymentdomain.ErrPreconditionFailed)
	assert.Zero(t, f.processor.CreateCount())
}

func TestCreateSessionPreconditions(t *testing.T) {
	f := setup(t)
	f.seed(t, 46, func(b *bookingdomain.Booking) { b.Status = bookingdomain.StatusCancelled })
	f.seed(t, 47, func(b *bookingdomain.Booking) {
		b.TotalPrice = decimal.NewNullDecimal(decimal.Zero)
		b.PriceAtBooking = decimal.Zero
	})
	f.seed(t, 48, func(b *bookingdomain.Booking) { b.ProviderID = 0 })

	for _, id := range []string{"46", "47", "48"} {
		_, err := f.svc.CreateSession(context.Background(), id)
		assert.ErrorIs(t, err, paymentdomain.ErrPreconditionFailed, id)
	}

	_, err := f.svc.CreateSession(context.Background(), "999")
	assert.ErrorIs(t, err, bookingdomain.ErrNotFound)

	_, err = f.svc.CreateSession(context.Background(), "abc")
	assert.ErrorIs(t, err, bookingdomain.ErrInvalidID)

	assert.Zero(t, f.processor.CreateCount())
}

func TestCreateSessionAfterExpiryOpensNewSession(t *testing.T) {
	f := setup(t)
	f.seed(t, 49, func(b *bookingdomain.Booking) { b.PaymentStatus = bookingdomain.PaymentExpired })

	_, err := f.svc.CreateSession(context.Background(), "49")
	require.NoError(t, err)
	assert.Equal(t, 1, f.processor.CreateCount())
}

func TestCreateSessionProcessorUnavailable(t *testing.T) {
	f := setup(t)
	f.seed(t, 50, nil)
	f.processor.CreateFn = func(paymentdomain.CheckoutSessionRequest) (paymentdomain.CheckoutSession, error) {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrProcessorUnavailable
	}

	_, err := f.svc.CreateSession(context.Background(), "50")
	assert.ErrorIs(t, err, paymentdomain.ErrProcessorUnavailable)

	b := paymenttest.LoadBooking(t, f.db, f.repo, 50)
	assert.Equal(t, bookingdomain.PaymentPending, b.PaymentStatus)
}

func TestCreateSessionGuard(t *testing.T) {
	f := setup(t)
	f.seed(t, 51, nil)

	f.svc.guard = heldGuard{}
	_, err := f.svc.CreateSession(context.Background(), "51")
	assert.ErrorIs(t, err, paymentdomain.ErrCheckoutInProgress)
	assert.Zero(t, f.processor.CreateCount())

	f.svc.guard = brokenGuard{}
	_, err = f.svc.CreateSession(context.Background(), "51")
	require.NoError(t, err)
	assert.Equal(t, 1, f.processor.CreateCount())
}
