package stripe

import (
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/servicepoint/internal/clock"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func buildStripeSignatureHeader(secret string, ts int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, sign(secret, ts, payload))
}

func sessionCompletedPayload(paymentStatus string) []byte {
	return []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1767225600,
		"data": {"object": {
			"id": "cs_test_1",
			"status": "complete",
			"payment_status": "` + paymentStatus + `",
			"payment_intent": "pi_1",
			"metadata": {"booking_id": "42", "customer_id": "7", "provider_id": "9"}
		}}
	}`)
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1767225600, 0)
	v := newVerifier(testSecret, 5*time.Minute, clock.NewFakeClock(now))
	payload := sessionCompletedPayload("paid")

	event, err := v.Verify(payload, buildStripeSignatureHeader(testSecret, now.Unix(), payload))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, paymentdomain.KindSessionCompleted, event.Kind)
	assert.Equal(t, "cs_test_1", event.SessionID)
	assert.Equal(t, "pi_1", event.PaymentIntentID)
	assert.Equal(t, int64(42), event.BookingID.Int64())
	assert.Equal(t, int64(7), event.CustomerID.Int64())
	assert.Equal(t, int64(9), event.ProviderID.Int64())
	assert.Equal(t, now.UTC(), event.OccurredAt)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	now := time.Unix(1767225600, 0)
	v := newVerifier(testSecret, 5*time.Minute, clock.NewFakeClock(now))
	payload := sessionCompletedPayload("paid")
	header := buildStripeSignatureHeader(testSecret, now.Unix(), payload)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-3] ^= 0x01

	_, err := v.Verify(tampered, header)
	assert.ErrorIs(t, err, paymentdomain.ErrAuthentication)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1767225600, 0)
	v := newVerifier(testSecret, 5*time.Minute, clock.NewFakeClock(now))
	payload := sessionCompletedPayload("paid")

	_, err := v.Verify(payload, buildStripeSignatureHeader("whsec_other", now.Unix(), payload))
	assert.ErrorIs(t, err, paymentdomain.ErrAuthentication)
}

func TestVerifyToleranceWindow(t *testing.T) {
	signedAt := time.Unix(1767225600, 0)
	payload := sessionCompletedPayload("paid")
	header := buildStripeSignatureHeader(testSecret, signedAt.Unix(), payload)

	fake := clock.NewFakeClock(signedAt)
	v := newVerifier(testSecret, 5*time.Minute, fake)

	fake.Advance(5 * time.Minute)
	_, err := v.Verify(payload, header)
	require.NoError(t, err)

	fake.Advance(time.Second)
	_, err = v.Verify(payload, header)
	assert.ErrorIs(t, err, paymentdomain.ErrAuthentication)

	early := newVerifier(testSecret, 5*time.Minute, clock.NewFakeClock(signedAt.Add(-10*time.Minute)))
	_, err = early.Verify(payload, header)
	assert.ErrorIs(t, err, paymentdomain.ErrAuthentication)
}

func TestVerifyAcceptsAnyMatchingV1(t *testing.T) {
	now := time.Unix(1767225600, 0)
	v := newVerifier(testSecret, 5*time.Minute, clock.NewFakeClock(now))
	payload := sessionCompletedPayload("paid")

	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), sign("whsec_rotated", now.Unix(), payload), sign(testSecret, now.Unix(), payload))
	_, err := v.Verify(payload, header)
	assert.NoError(t, err)
}

func TestVerifyMalformedHeaders(t *testing.T) {
	v := newVerifier(testSecret, 5*time.Minute, clock.NewFakeClock(time.Unix(1767225600, 0)))
	payload := sessionCompletedPayload("paid")

	for _, header := range []string{"", "t=abc,v1=00", "v1=deadbeef", "t=1767225600", "garbage"} {
		_, err := v.Verify(payload, header)
		assert.ErrorIs(t, err, paymentdomain.ErrAuthentication, header)
	}
}

func TestVerifyWithoutSecret(t *testing.T) {
	now := time.Unix(1767225600, 0)
	v := newVerifier("", 0, clock.NewFakeClock(now))
	payload := sessionCompletedPayload("paid")

	_, err := v.Verify(payload, buildStripeSignatureHeader("", now.Unix(), payload))
	assert.ErrorIs(t, err, paymentdomain.ErrAuthentication)
}

func TestVerifyInvalidJSONAfterSignature(t *testing.T) {
	now := time.Unix(1767225600, 0)
	v := newVerifier(testSecret, 5*time.Minute, clock.NewFakeClock(now))
	payload := []byte(`{"id":`)

	_, err := v.Verify(payload, buildStripeSignatureHeader(testSecret, now.Unix(), payload))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}
