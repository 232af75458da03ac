package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/servicepoint/internal/clock"
	"github.com/smallbiznis/servicepoint/internal/config"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
)

const (
	SignatureHeader  = "Stripe-Signature"
	defaultTolerance = 5 * time.Minute
)

// Verifier authenticates Stripe webhook deliveries and decodes them into
// processor-neutral events.
type Verifier struct {
	secret    string
	tolerance time.Duration
	clock     clock.Clock
}

func NewVerifier(cfg config.Config, clk clock.Clock) paymentdomain.Verifier {
	return newVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance, clk)
}

func newVerifier(secret string, tolerance time.Duration, clk clock.Clock) *Verifier {
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Verifier{
		secret:    strings.TrimSpace(secret),
		tolerance: tolerance,
		clock:     clk,
	}
}

func (v *Verifier) Verify(payload []byte, signatureHeader string) (paymentdomain.Event, error) {
	if v.secret == "" {
		return paymentdomain.Event{}, fmt.Errorf("%w: webhook secret not configured", paymentdomain.ErrAuthentication)
	}

	ts, signatures, err := parseStripeSignature(strings.TrimSpace(signatureHeader))
	if err != nil {
		return paymentdomain.Event{}, fmt.Errorf("%w: %v", paymentdomain.ErrAuthentication, err)
	}

	signedAt := time.Unix(ts, 0)
	if skew := v.clock.Now().Sub(signedAt); skew > v.tolerance || skew < -v.tolerance {
		return paymentdomain.Event{}, fmt.Errorf("%w: timestamp outside tolerance", paymentdomain.ErrAuthentication)
	}

	expected := sign(v.secret, ts, payload)
	matched := false
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return paymentdomain.Event{}, fmt.Errorf("%w: no matching v1 signature", paymentdomain.ErrAuthentication)
	}

	return decodeEvent(payload, v.clock.Now())
}

func sign(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseStripeSignature(header string) (int64, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" && value != "" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return 0, nil, errors.New("malformed signature header")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return 0, nil, errors.New("malformed signature timestamp")
	}
	return ts, signatures, nil
}
