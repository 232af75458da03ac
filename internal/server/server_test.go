package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/servicepoint/internal/authorization"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	catalogdomain "github.com/smallbiznis/servicepoint/internal/catalog/domain"
	"github.com/smallbiznis/servicepoint/internal/config"
	"github.com/smallbiznis/servicepoint/internal/observability"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCheckout struct{ mock.Mock }

func (m *mockCheckout) CreateSession(ctx context.Context, bookingID string) (paymentdomain.SessionResult, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).(paymentdomain.SessionResult), args.Error(1)
}

type mockStatus struct{ mock.Mock }

func (m *mockStatus) GetStatus(ctx context.Context, bookingID string) (paymentdomain.StatusView, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).(paymentdomain.StatusView), args.Error(1)
}

func (m *mockStatus) VerifyAndComplete(ctx context.Context, bookingID, sessionID string) (paymentdomain.StatusView, error) {
	args := m.Called(ctx, bookingID, sessionID)
	return args.Get(0).(paymentdomain.StatusView), args.Error(1)
}

func (m *mockStatus) Abandon(ctx context.Context, bookingID string) (paymentdomain.StatusView, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).(paymentdomain.StatusView), args.Error(1)
}

type mockRefund struct{ mock.Mock }

func (m *mockRefund) Refund(ctx context.Context, bookingID string) (paymentdomain.RefundResult, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).(paymentdomain.RefundResult), args.Error(1)
}

type mockWebhook struct{ mock.Mock }

func (m *mockWebhook) Ingest(ctx context.Context, payload []byte, signatureHeader string) (paymentdomain.WebhookResult, error) {
	args := m.Called(ctx, payload, signatureHeader)
	return args.Get(0).(paymentdomain.WebhookResult), args.Error(1)
}

type mockAuthz struct{ mock.Mock }

func (m *mockAuthz) Authorize(ctx context.Context, actor authorization.Actor, object string, action string) error {
	return m.Called(ctx, actor, object, action).Error(0)
}

// Only the methods a test touches are implemented; the rest panic.
type fakeBookingService struct {
	bookingdomain.Service
	cancelled []string
	err       error
}

func (f *fakeBookingService) Cancel(ctx context.Context, id string) (bookingdomain.Booking, error) {
	f.cancelled = append(f.cancelled, id)
	if f.err != nil {
		return bookingdomain.Booking{}, f.err
	}
	return bookingdomain.Booking{Status: bookingdomain.StatusCancelled, PaymentStatus: bookingdomain.PaymentPending}, nil
}

type fakeCatalogService struct {
	catalogdomain.Service
}

type testServer struct {
	engine   *gin.Engine
	checkout *mockCheckout
	status   *mockStatus
	refund   *mockRefund
	webhook  *mockWebhook
	bookings *fakeBookingService
	authz    *mockAuthz
}

func newTestServer(t *testing.T, authzEnabled bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		engine:   NewEngine(observability.Config{}, nil),
		checkout: &mockCheckout{},
		status:   &mockStatus{},
		refund:   &mockRefund{},
		webhook:  &mockWebhook{},
		bookings: &fakeBookingService{},
		authz:    &mockAuthz{},
	}
	cfg := config.Config{Authz: config.AuthzConfig{Enabled: authzEnabled}}
	NewServer(ServerParams{
		Gin:         ts.engine,
		Cfg:         cfg,
		AuthzSvc:    ts.authz,
		BookingSvc:  ts.bookings,
		CatalogSvc:  &fakeCatalogService{},
		CheckoutSvc: ts.checkout,
		StatusSvc:   ts.status,
		RefundSvc:   ts.refund,
		WebhookSvc:  ts.webhook,
	})
	return ts
}

func (ts *testServer) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestWebhookStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"bad signature", paymentdomain.ErrAuthentication, http.StatusUnauthorized},
		{"malformed payload", fmt.Errorf("decode: %w", paymentdomain.ErrInvalidPayload), http.StatusBadRequest},
		{"storage conflict", fmt.Errorf("apply: %w", paymentdomain.ErrStorageConflict), http.StatusServiceUnavailable},
		{"processor down", paymentdomain.ErrProcessorUnavailable, http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("db gone"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, true)
			ts.webhook.On("Ingest", mock.Anything, []byte(`{"id":"evt_1"}`), "t=1,v1=abc").
				Return(paymentdomain.WebhookResult{}, tc.err)

			rec := ts.do(http.MethodPost, "/api/payments/webhook", []byte(`{"id":"evt_1"}`), map[string]string{
				"Stripe-Signature": "t=1,v1=abc",
			})
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestWebhookSettledDeliveryIsOK(t *testing.T) {
	ts := newTestServer(t, true)
	payload := []byte(`{"id":"evt_2","type":"checkout.session.completed"}`)
	ts.webhook.On("Ingest", mock.Anything, payload, "sig").
		Return(paymentdomain.WebhookResult{EventID: "evt_2", Outcome: "duplicate", BookingID: "42"}, nil)

	rec := ts.do(http.MethodPost, "/api/payments/webhook", payload, map[string]string{"Stripe-Signature": "sig"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"outcome":"duplicate"}`, rec.Body.String())
	ts.webhook.AssertExpectations(t)
}

func TestCreateCheckoutSessionErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"completed", fmt.Errorf("%w: %w", paymentdomain.ErrPreconditionFailed, bookingdomain.ErrPaymentCompleted), http.StatusUnprocessableEntity, "precondition_failed"},
		{"processor", paymentdomain.ErrProcessorUnavailable, http.StatusServiceUnavailable, "processor_unavailable"},
		{"in progress", paymentdomain.ErrCheckoutInProgress, http.StatusConflict, "checkout_in_progress"},
		{"missing", bookingdomain.ErrNotFound, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, false)
			ts.checkout.On("CreateSession", mock.Anything, "42").Return(paymentdomain.SessionResult{}, tc.err)

			rec := ts.do(http.MethodPost, "/api/payments/checkout-sessions", []byte(`{"booking_id":"42"}`), nil)

			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.typ, decodeError(t, rec).Type)
		})
	}
}

func TestCreateCheckoutSessionSuccess(t *testing.T) {
	ts := newTestServer(t, false)
	ts.checkout.On("CreateSession", mock.Anything, "42").Return(paymentdomain.SessionResult{
		SessionID:   "cs_1",
		RedirectURL: "https://checkout.stripe.test/cs_1",
		AmountMinor: 4999,
		Currency:    "usd",
	}, nil)

	rec := ts.do(http.MethodPost, "/api/payments/checkout-sessions", []byte(`{"booking_id":"42"}`), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data paymentdomain.SessionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cs_1", resp.Data.SessionID)
	assert.EqualValues(t, 4999, resp.Data.AmountMinor)
}

func TestCreateCheckoutSessionRequiresBookingID(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(http.MethodPost, "/api/payments/checkout-sessions", []byte(`{}`), nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "booking_id", payload.Errors[0].Field)
	ts.checkout.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestAuthorizationGate(t *testing.T) {
	ts := newTestServer(t, true)

	rec := ts.do(http.MethodGet, "/api/payments/status/42", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts.authz.On("Authorize", mock.Anything, authorization.Actor{ID: "7", Role: "provider"}, authorization.ObjectPayment, authorization.ActionPaymentCheckout).
		Return(authorization.ErrForbidden)
	rec = ts.do(http.MethodPost, "/api/payments/checkout-sessions", []byte(`{"booking_id":"42"}`), map[string]string{
		HeaderActorID:   "7",
		HeaderActorRole: "Provider",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	ts.checkout.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)

	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ts.authz.On("Authorize", mock.Anything, authorization.Actor{ID: "7", Role: "customer"}, authorization.ObjectPayment, authorization.ActionPaymentStatus).
		Return(nil)
	ts.status.On("GetStatus", mock.Anything, "42").Return(paymentdomain.StatusView{
		BookingID:     "42",
		Status:        bookingdomain.StatusConfirmed,
		PaymentStatus: bookingdomain.PaymentCompleted,
		PaidAt:        &paidAt,
	}, nil)
	rec = ts.do(http.MethodGet, "/api/payments/status/42", nil, map[string]string{
		HeaderActorID:   "7",
		HeaderActorRole: "customer",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_status":"completed"`)
}

func TestStatusNotFound(t *testing.T) {
	ts := newTestServer(t, false)
	ts.status.On("GetStatus", mock.Anything, "99").Return(paymentdomain.StatusView{}, bookingdomain.ErrNotFound)

	rec := ts.do(http.MethodGet, "/api/payments/status/99", nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyAndComplete(t *testing.T) {
	ts := newTestServer(t, false)
	ts.status.On("VerifyAndComplete", mock.Anything, "42", "cs_1").Return(paymentdomain.StatusView{
		BookingID:     "42",
		Status:        bookingdomain.StatusConfirmed,
		PaymentStatus: bookingdomain.PaymentCompleted,
	}, nil)

	rec := ts.do(http.MethodPost, "/api/payments/verify-and-complete", []byte(`{"booking_id":"42","session_id":"cs_1"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/payments/verify-and-complete", []byte(`{"booking_id":"42"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLandings(t *testing.T) {
	ts := newTestServer(t, false)
	ts.status.On("GetStatus", mock.Anything, "42").Return(paymentdomain.StatusView{
		BookingID:     "42",
		Status:        bookingdomain.StatusPending,
		PaymentStatus: bookingdomain.PaymentPending,
	}, nil)

	rec := ts.do(http.MethodGet, "/api/payments/success?session_id=cs_1&booking_id=42", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_id":"cs_1"`)

	rec = ts.do(http.MethodGet, "/api/payments/cancel?booking_id=42", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_status":"pending"`)

	rec = ts.do(http.MethodGet, "/api/payments/cancel", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.status.AssertNotCalled(t, "VerifyAndComplete", mock.Anything, mock.Anything, mock.Anything)
	ts.status.AssertNotCalled(t, "Abandon", mock.Anything, mock.Anything)
}

func TestCancelLandingNeverWritesWithoutActor(t *testing.T) {
	ts := newTestServer(t, true)
	ts.status.On("GetStatus", mock.Anything, "42").Return(paymentdomain.StatusView{
		BookingID:     "42",
		Status:        bookingdomain.StatusPending,
		PaymentStatus: bookingdomain.PaymentPending,
	}, nil)

	rec := ts.do(http.MethodGet, "/api/payments/cancel?booking_id=42", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"payment_status":"cancelled"`)

	rec = ts.do(http.MethodPost, "/api/payments/abandon", []byte(`{"booking_id":"42"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts.status.AssertNotCalled(t, "Abandon", mock.Anything, mock.Anything)
	ts.authz.AssertNotCalled(t, "Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAbandonCheckout(t *testing.T) {
	ts := newTestServer(t, true)
	customer := map[string]string{HeaderActorID: "7", HeaderActorRole: "customer"}
	ts.authz.On("Authorize", mock.Anything, authorization.Actor{ID: "7", Role: "customer"}, authorization.ObjectPayment, authorization.ActionPaymentCheckout).
		Return(nil)
	ts.status.On("Abandon", mock.Anything, "42").Return(paymentdomain.StatusView{
		BookingID:     "42",
		Status:        bookingdomain.StatusPending,
		PaymentStatus: bookingdomain.PaymentCancelled,
	}, nil)

	rec := ts.do(http.MethodPost, "/api/payments/abandon", []byte(`{"booking_id":"42"}`), customer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_status":"cancelled"`)

	rec = ts.do(http.MethodPost, "/api/payments/abandon", []byte(`{}`), customer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ts.status.AssertNumberOfCalls(t, "Abandon", 1)
}

func TestRefundBooking(t *testing.T) {
	ts := newTestServer(t, false)
	ts.refund.On("Refund", mock.Anything, "42").Return(paymentdomain.RefundResult{
		RefundID:      "re_1",
		Status:        "pending",
		BookingID:     "42",
		PaymentStatus: string(bookingdomain.PaymentCompleted),
	}, nil)
	ts.refund.On("Refund", mock.Anything, "43").Return(paymentdomain.RefundResult{},
		fmt.Errorf("%w: %w", paymentdomain.ErrPreconditionFailed, bookingdomain.ErrInvalidTransition))

	rec := ts.do(http.MethodPost, "/api/bookings/42/refund", nil, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = ts.do(http.MethodPost, "/api/bookings/43/refund", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, rec).Message)
}

func TestCancelBookingMapsDomainErrors(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(http.MethodPost, "/api/bookings/42/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"42"}, ts.bookings.cancelled)

	ts.bookings.err = bookingdomain.ErrPaymentCompleted
	rec = ts.do(http.MethodPost, "/api/bookings/42/cancel", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "payment_completed", decodeError(t, rec).Message)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(http.MethodGet, "/api/nope", nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{bookingdomain.ErrInvalidID, http.StatusBadRequest, "validation_error"},
		{fmt.Errorf("load offering: %w", catalogdomain.ErrInvalidPrice), http.StatusBadRequest, "validation_error"},
		{paymentdomain.ErrAuthentication, http.StatusUnauthorized, "unauthorized"},
		{authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{paymentdomain.ErrUnknownBooking, http.StatusNotFound, "not_found"},
		{bookingdomain.ErrConflict, http.StatusConflict, "conflict"},
		{paymentdomain.ErrBookingCancelled, http.StatusUnprocessableEntity, "precondition_failed"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{paymentdomain.ErrInvalidConfig, http.StatusServiceUnavailable, "processor_unavailable"},
		{paymentdomain.ErrStorageConflict, http.StatusServiceUnavailable, "service_unavailable"},
		{bookingdomain.ErrInvariantViolated, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.typ, payload.Type, tc.err.Error())
	}

	_, payload := mapError(fmt.Errorf("load offering: %w", catalogdomain.ErrInvalidPrice))
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "price", payload.Errors[0].Field)
}
