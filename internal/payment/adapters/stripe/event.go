package stripe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
)

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID            string          `json:"id"`
	URL           string          `json:"url"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	PaymentIntent json.RawMessage `json:"payment_intent"`
	AmountTotal   int64           `json:"amount_total"`
	Currency      string          `json:"currency"`
	Metadata      map[string]any  `json:"metadata"`
}

type stripePaymentIntent struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

type stripeCharge struct {
	ID             string          `json:"id"`
	Amount         int64           `json:"amount"`
	AmountRefunded int64           `json:"amount_refunded"`
	Refunded       bool            `json:"refunded"`
	PaymentIntent  json.RawMessage `json:"payment_intent"`
	Metadata       map[string]any  `json:"metadata"`
}

// decodeEvent runs only after the signature check passed.
func decodeEvent(payload []byte, now time.Time) (paymentdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return paymentdomain.Event{}, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(event.ID) == "" {
		return paymentdomain.Event{}, fmt.Errorf("%w: missing event id", paymentdomain.ErrInvalidPayload)
	}

	out := paymentdomain.Event{
		ID:         event.ID,
		Type:       strings.TrimSpace(event.Type),
		Kind:       paymentdomain.KindUnhandled,
		OccurredAt: timestamp(event.Created, now),
		Raw:        payload,
	}

	switch out.Type {
	case "checkout.session.completed", "checkout.session.expired":
		var session stripeCheckoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return paymentdomain.Event{}, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidPayload, err)
		}
		out.SessionID = session.ID
		out.PaymentIntentID = expandableID(session.PaymentIntent)
		out.PaymentStatus = session.PaymentStatus
		applyMetadata(&out, session.Metadata)

		if out.Type == "checkout.session.expired" {
			out.Kind = paymentdomain.KindSessionExpired
			break
		}
		switch session.PaymentStatus {
		case "paid", "no_payment_required":
			out.Kind = paymentdomain.KindSessionCompleted
		}
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripePaymentIntent
		if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
			return paymentdomain.Event{}, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidPayload, err)
		}
		out.PaymentIntentID = intent.ID
		out.PaymentStatus = intent.Status
		applyMetadata(&out, intent.Metadata)
		if out.Type == "payment_intent.succeeded" {
			out.Kind = paymentdomain.KindPaymentIntentSucceeded
		} else {
			out.Kind = paymentdomain.KindPaymentIntentFailed
		}
	case "charge.refunded":
		var charge stripeCharge
		if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
			return paymentdomain.Event{}, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidPayload, err)
		}
		out.PaymentIntentID = expandableID(charge.PaymentIntent)
		applyMetadata(&out, charge.Metadata)
		// Partial refunds leave the booking paid.
		if charge.Refunded {
			out.Kind = paymentdomain.KindChargeRefunded
		}
	}

	return out, nil
}

func applyMetadata(event *paymentdomain.Event, metadata map[string]any) {
	event.BookingID = parseMetadataID(metadata, "booking_id")
	event.CustomerID = parseMetadataID(metadata, "customer_id")
	event.ProviderID = parseMetadataID(metadata, "provider_id")
}

func parseMetadataID(metadata map[string]any, key string) snowflake.ID {
	raw := readMetadataValue(metadata, key)
	if raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}

// expandableID reads a Stripe field that is either an id string or an
// expanded object with an id.
func expandableID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.ID)
	}
	return ""
}

func timestamp(value int64, fallback time.Time) time.Time {
	if value == 0 {
		return fallback.UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}

func metadataStrings(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for key := range metadata {
		if value := readMetadataValue(metadata, key); value != "" {
			out[key] = value
		}
	}
	return out
}
