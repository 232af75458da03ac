package webhook

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	bookingrepo "github.com/smallbiznis/servicepoint/internal/booking/repository"
	"github.com/smallbiznis/servicepoint/internal/clock"
	"github.com/smallbiznis/servicepoint/internal/config"
	"github.com/smallbiznis/servicepoint/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"github.com/smallbiznis/servicepoint/internal/payment/paymenttest"
	"github.com/smallbiznis/servicepoint/internal/payment/reconcile"
	paymentrepo "github.com/smallbiznis/servicepoint/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

type fixture struct {
	db           *gorm.DB
	repo         bookingdomain.Repository
	deliveryRepo paymentdomain.DeliveryRepository
	clock        *clock.FakeClock
	processor    *paymenttest.FakeProcessor
	svc          paymentdomain.WebhookService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := paymenttest.OpenDB(t)
	repo := bookingrepo.Provide()
	deliveryRepo := paymentrepo.Provide()
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	processor := &paymenttest.FakeProcessor{}
	log := zaptest.NewLogger(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	engine := reconcile.New(reconcile.Params{DB: db, Log: log, Clock: fake, Repo: repo})
	verifier := stripe.NewVerifier(config.Config{Stripe: config.StripeConfig{
		WebhookSecret:    webhookSecret,
		WebhookTolerance: 5 * time.Minute,
	}}, fake)

	svc := NewService(Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        fake,
		Verifier:     verifier,
		Processor:    processor,
		Reconciler:   engine,
		BookingRepo:  repo,
		DeliveryRepo: deliveryRepo,
	})
	return &fixture{db: db, repo: repo, deliveryRepo: deliveryRepo, clock: fake, processor: processor, svc: svc}
}

func (f *fixture) deliver(t *testing.T, payload []byte) (paymentdomain.WebhookResult, error) {
	t.Helper()
	return f.svc.Ingest(context.Background(), payload, paymenttest.SignatureHeader(webhookSecret, f.clock.Now(), payload))
}

func sessionEvent(eventID, eventType, sessionID, intent string, bookingID int64) []byte {
	intentJSON := "null"
	if intent != "" {
		intentJSON = `"` + intent + `"`
	}
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"created":1772359200,"data":{"object":{"id":%q,"status":"complete","payment_status":"paid","payment_intent":%s,"metadata":{"booking_id":"%d","customer_id":"7","provider_id":"9"}}}}`,
		eventID, eventType, sessionID, intentJSON, bookingID))
}

func TestScenarioA_DuplicateDeliveryIsAcknowledged(t *testing.T) {
	f := setup(t)
	paymenttest.SeedBooking(t, f.db, f.repo, paymenttest.NewBooking(42, f.clock.Now()))
	payload := sessionEvent("evt_1", "checkout.session.completed", "cs_1", "pi_1", 42)

	res, err := f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.DeliveryProcessed, res.Outcome)
	assert.Equal(t, "42", res.BookingID)

	first := paymenttest.LoadBooking(t, f.db, f.repo, 42)
	assert.Equal(t, bookingdomain.PaymentCompleted, first.PaymentStatus)
	assert.Equal(t, bookingdomain.StatusConfirmed, first.Status)

	f.clock.Advance(time.Minute)
	res, err = f.deliver(t, payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.DeliveryDuplicate, res.Outcome)

	again := paymenttest.LoadBooking(t, f.db, f.repo, 42)
	assert.True(t, first.PaidAt.Equal(*again.PaidAt))

	deliveries, err := f.deliveryRepo.ListByBooking(context.Background(), f.db, 42, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.Equal(t, paymentdomain.DeliveryDuplicate, deliveries[0].Outcome)
	assert.Equal(t, paymentdomain.DeliveryProcessed, deliveries[1].Outcome)
	assert.Equal(t, paymentdomain.ErrDuplicateEvent.Error(), deliveries[0].Error)
	assert.Empty(t, deliveries[1].Error)
	assert.NotNil(t, deliveries[0].ProcessedAt)
}

func TestScenarioB_LateCompletionAfterExpiry(t *testing.T) {
	f := setup(t)
	paymenttest.SeedBooking(t, f.db, f.repo, paymenttest.NewBooking(43, f.clock.Now()))

	res, err := f.deliver(t, sessionEvent("evt_2", "checkout.session.expired", "cs_2", "", 43))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.DeliveryProcessed, res.Outcome)
	b := paymenttest.LoadBooking(t, f.db, f.repo, 43)
	assert.Equal(t, bookingdomain.PaymentExpired, b.PaymentStatus)
	assert.Equal(t, bookingdomain.StatusPending, b.Status)

	_, err = f.deliver(t, sessionEvent("evt_3", "checkout.session.completed", "cs_2", "pi_2", 43))
	require.NoError(t, err)
	b = paymenttest.LoadBooking(t, f.db, f.repo, 43)
	assert.Equal(t, bookingdomain.PaymentCompleted, b.PaymentStatus)
	assert.Equal(t, bookingdomain.StatusConfirmed, b.Status)
}

func TestTamperedDeliveryIsRejected(t *testing.T) {
	f := setup(t)
	paymenttest.SeedBooking(t, f.db, f.repo, paymenttest.NewBooking(42, f.clock.Now()))
	payload := sessionEvent("evt_1", "checkout.session.completed", "cs_1", "pi_1", 42)
	header := paymenttest.SignatureHeader(webhookSecret, f.clock.Now(), payload)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-5] = '8'

	_, err := f.svc.Ingest(context.Background(), tampered, header)
	assert.ErrorIs(t, err, paymentdomain.ErrAuthentication)

	b := paymenttest.LoadBooking(t, f.db, f.repo, 42)
	assert.Equal(t, bookingdomain.PaymentPending, b.PaymentStatus)

	deliveries, err := f.deliveryRepo.ListByBooking(context.Background(), f.db, 42, 10)
	require.NoError(t, err)
	assert.Empty(t, deliveries)
}

func TestUnknownBookingIsAcknowledged(t *testing.T) {
	f := setup(t)

	res, err := f.deliver(t, sessionEvent("evt_4", "checkout.session.completed", "cs_4", "pi_4", 404))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.DeliveryUnknownBooking, res.Outcome)
}

func TestUnhandledEventIsAcknowledged(t *testing.T) {
	f := setup(t)

	res, err := f.deliver(t, []byte(`{"id":"evt_5","type":"customer.created","data":{"object":{"id":"cus_1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.DeliveryUnhandled, res.Outcome)
	assert.Equal(t, paymentdomain.KindUnhandled, res.Kind)
}

func TestCompletionForCancelledBookingIsAcknowledged(t *testing.T) {
	f := setup(t)
	b := paymenttest.NewBooking(44, f.clock.Now())
	b.Status = bookingdomain.StatusCancelled
	paymenttest.SeedBooking(t, f.db, f.repo, b)

	res, err := f.deliver(t, sessionEvent("evt_6", "checkout.session.completed", "cs_6", "pi_6", 44))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.DeliveryRejected, res.Outcome)

	stored := paymenttest.LoadBooking(t, f.db, f.repo, 44)
	assert.Equal(t, bookingdomain.PaymentPending, stored.PaymentStatus)
}

func TestMissingIntentIsResolvedFromProcessor(t *testing.T) {
	f := setup(t)
	paymenttest.SeedBooking(t, f.db, f.repo, paymenttest.NewBooking(45, f.clock.Now()))
	f.processor.RetrieveFn = func(sessionID string) (paymentdomain.CheckoutSession, error) {
		return paymentdomain.CheckoutSession{ID: sessionID, PaymentIntentID: "pi_from_api"}, nil
	}

	res, err := f.deliver(t, sessionEvent("evt_7", "checkout.session.completed", "cs_7", "", 45))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.DeliveryProcessed, res.Outcome)
	assert.Equal(t, []string{"cs_7"}, f.processor.Retrieves)

	b := paymenttest.LoadBooking(t, f.db, f.repo, 45)
	assert.Equal(t, "pi_from_api", *b.PaymentIntentID)
}

func TestMissingIntentProcessorDownAsksForRedelivery(t *testing.T) {
	f := setup(t)
	paymenttest.SeedBooking(t, f.db, f.repo, paymenttest.NewBooking(46, f.clock.Now()))
	f.processor.RetrieveFn = func(string) (paymentdomain.CheckoutSession, error) {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrProcessorUnavailable
	}

	res, err := f.deliver(t, sessionEvent("evt_8", "checkout.session.completed", "cs_8", "", 46))
	assert.ErrorIs(t, err, paymentdomain.ErrProcessorUnavailable)
	assert.Equal(t, paymentdomain.DeliveryFailed, res.Outcome)
}

func TestRefundedChargeResolvesBookingByIntent(t *testing.T) {
	f := setup(t)
	paymenttest.SeedBooking(t, f.db, f.repo, paymenttest.NewBooking(47, f.clock.Now()))

	_, err := f.deliver(t, sessionEvent("evt_9", "checkout.session.completed", "cs_9", "pi_9", 47))
	require.NoError(t, err)

	charge := []byte(`{"id":"evt_10","type":"charge.refunded","data":{"object":{"id":"ch_1","refunded":true,"amount":4999,"amount_refunded":4999,"payment_intent":"pi_9","metadata":{}}}}`)
	res, err := f.deliver(t, charge)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.DeliveryProcessed, res.Outcome)
	assert.Equal(t, "47", res.BookingID)

	b := paymenttest.LoadBooking(t, f.db, f.repo, 47)
	assert.Equal(t, bookingdomain.PaymentRefunded, b.PaymentStatus)
	assert.Equal(t, bookingdomain.StatusCancelled, b.Status)
	assert.NotNil(t, b.RefundedAt)
}

func TestConcurrentDeliveriesConverge(t *testing.T) {
	f := setup(t)
	paymenttest.SeedBooking(t, f.db, f.repo, paymenttest.NewBooking(48, f.clock.Now()))
	payload := sessionEvent("evt_11", "checkout.session.completed", "cs_11", "pi_11", 48)

	var wg sync.WaitGroup
	outcomes := make([]string, 4)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.deliver(t, payload)
			assert.NoError(t, err)
			outcomes[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	processed := 0
	for _, outcome := range outcomes {
		if outcome == paymentdomain.DeliveryProcessed {
			processed++
		}
	}
	assert.Equal(t, 1, processed)
	b := paymenttest.LoadBooking(t, f.db, f.repo, 48)
	assert.Equal(t, bookingdomain.PaymentCompleted, b.PaymentStatus)
	assert.NoError(t, b.Validate())
}
