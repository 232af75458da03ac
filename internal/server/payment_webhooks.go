package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"github.com/smallbiznis/servicepoint/internal/payment/adapters/stripe"
)

const maxWebhookPayloadBytes = 1 << 20

// HandlePaymentWebhook answers 200 for every settled delivery so the
// processor stops redelivering; anything transient is a 503.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadBytes+1))
	if err != nil || len(payload) > maxWebhookPayloadBytes {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.GetHeader(stripe.SignatureHeader))
	if result.BookingID != "" {
		c.Set("booking_id", result.BookingID)
	}
	if err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrAuthentication),
			errors.Is(err, paymentdomain.ErrInvalidPayload):
			AbortWithError(c, err)
		default:
			_ = c.Error(fmt.Errorf("%w: %w", ErrServiceUnavailable, err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: errorPayload{
				Type:    "service_unavailable",
				Message: "delivery not processed, retry later",
			}})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"outcome":  result.Outcome,
	})
}
