package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/servicepoint/internal/config"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	defaultAPIBaseURL     = "https://api.stripe.com"
	defaultRequestTimeout = 10 * time.Second
)

type stripeRefund struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the Stripe REST API with form-encoded requests.
type Client struct {
	apiKey    string
	accountID string
	baseURL   string
	timeout   time.Duration
	client    *http.Client
	log       *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) paymentdomain.Processor {
	return newClient(cfg.Stripe, log)
}

func newClient(cfg config.StripeConfig, log *zap.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:    strings.TrimSpace(cfg.SecretKey),
		accountID: strings.TrimSpace(cfg.AccountID),
		baseURL:   baseURL,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		log:       log.Named("payment.stripe"),
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutSessionRequest) (paymentdomain.CheckoutSession, error) {
	if req.BookingID == 0 || req.AmountMinor <= 0 {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrInvalidBooking
	}

	bookingID := req.BookingID.String()
	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("payment_method_types[]", "card")
	values.Set("client_reference_id", bookingID)
	values.Set("success_url", req.SuccessURL)
	values.Set("cancel_url", req.CancelURL)
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountMinor, 10))
	values.Set("line_items[0][price_data][product_data][name]", req.ProductName)
	if strings.TrimSpace(req.Description) != "" {
		values.Set("line_items[0][price_data][product_data][description]", req.Description)
	}
	for key, value := range bookingMetadata(req) {
		values.Set("metadata["+key+"]", value)
		values.Set("payment_intent_data[metadata]["+key+"]", value)
	}

	// A fresh key per attempt: a retried creation must yield a new session.
	idempotencyKey := "checkout:" + bookingID + ":" + ulid.Make().String()

	var session stripeCheckoutSession
	if err := c.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", values, idempotencyKey, &session); err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	if session.ID == "" || session.URL == "" {
		return paymentdomain.CheckoutSession{}, fmt.Errorf("%w: session response missing id or url", paymentdomain.ErrProcessorUnavailable)
	}
	return toCheckoutSession(session), nil
}

func (c *Client) RetrieveCheckoutSession(ctx context.Context, sessionID string) (paymentdomain.CheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return paymentdomain.CheckoutSession{}, fmt.Errorf("%w: session id is required", paymentdomain.ErrPreconditionFailed)
	}

	var session stripeCheckoutSession
	if err := c.doRequest(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, "", &session); err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	if session.ID == "" {
		return paymentdomain.CheckoutSession{}, fmt.Errorf("%w: session response missing id", paymentdomain.ErrProcessorUnavailable)
	}
	return toCheckoutSession(session), nil
}

func (c *Client) CreateRefund(ctx context.Context, req paymentdomain.RefundRequest) (paymentdomain.Refund, error) {
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		return paymentdomain.Refund{}, fmt.Errorf("%w: payment intent is required", paymentdomain.ErrPreconditionFailed)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "requested_by_customer"
	}

	values := url.Values{}
	values.Set("payment_intent", intentID)
	values.Set("reason", reason)
	if req.BookingID != 0 {
		values.Set("metadata[booking_id]", req.BookingID.String())
	}

	var refund stripeRefund
	if err := c.doRequest(ctx, http.MethodPost, "/v1/refunds", values, "refund:"+intentID, &refund); err != nil {
		return paymentdomain.Refund{}, err
	}
	if refund.ID == "" {
		return paymentdomain.Refund{}, fmt.Errorf("%w: refund response missing id", paymentdomain.ErrProcessorUnavailable)
	}
	return paymentdomain.Refund{
		ID:              refund.ID,
		Status:          refund.Status,
		PaymentIntentID: refund.PaymentIntent,
		Amount:          refund.Amount,
		Currency:        refund.Currency,
	}, nil
}

// doRequest maps transport failures, timeouts, throttling and 5xx to
// ErrProcessorUnavailable. Other 4xx answers are the caller's fault and
// surface as ErrPreconditionFailed.
func (c *Client) doRequest(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if c.apiKey == "" {
		return paymentdomain.ErrInvalidConfig
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if values != nil {
		body = strings.NewReader(values.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.accountID != "" {
		req.Header.Set("Stripe-Account", c.accountID)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("stripe request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", paymentdomain.ErrProcessorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		message := readStripeError(resp.Body)
		c.log.Warn("stripe request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", message),
		)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", paymentdomain.ErrProcessorUnavailable, message)
		}
		return fmt.Errorf("%w: %s", paymentdomain.ErrPreconditionFailed, message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", paymentdomain.ErrProcessorUnavailable, err)
	}
	return nil
}

func readStripeError(body io.Reader) string {
	var stripeErr stripeErrorResponse
	if err := json.NewDecoder(body).Decode(&stripeErr); err != nil {
		return "stripe_request_failed"
	}
	message := strings.TrimSpace(stripeErr.Error.Message)
	if message == "" {
		return "stripe_request_failed"
	}
	return message
}

func bookingMetadata(req paymentdomain.CheckoutSessionRequest) map[string]string {
	metadata := map[string]string{"booking_id": req.BookingID.String()}
	if req.CustomerID != 0 {
		metadata["customer_id"] = req.CustomerID.String()
	}
	if req.ProviderID != 0 {
		metadata["provider_id"] = req.ProviderID.String()
	}
	return metadata
}

func toCheckoutSession(session stripeCheckoutSession) paymentdomain.CheckoutSession {
	return paymentdomain.CheckoutSession{
		ID:              session.ID,
		URL:             session.URL,
		Status:          session.Status,
		PaymentStatus:   session.PaymentStatus,
		PaymentIntentID: expandableID(session.PaymentIntent),
		AmountTotal:     session.AmountTotal,
		Currency:        session.Currency,
		Metadata:        metadataStrings(session.Metadata),
	}
}

var (
	_ paymentdomain.Processor = (*Client)(nil)
	_ paymentdomain.Verifier  = (*Verifier)(nil)
)
