package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type createCheckoutSessionRequest struct {
	BookingID string `json:"booking_id"`
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req createCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	bookingID := strings.TrimSpace(req.BookingID)
	if bookingID == "" {
		AbortWithError(c, newValidationError("booking_id", "required", "booking_id is required"))
		return
	}
	c.Set("booking_id", bookingID)

	resp, err := s.checkoutSvc.CreateSession(c.Request.Context(), bookingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentStatus(c *gin.Context) {
	bookingID := strings.TrimSpace(c.Param("bookingId"))
	c.Set("booking_id", bookingID)

	view, err := s.statusSvc.GetStatus(c.Request.Context(), bookingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

type verifyAndCompleteRequest struct {
	BookingID string `json:"booking_id"`
	SessionID string `json:"session_id"`
}

func (s *Server) VerifyAndComplete(c *gin.Context) {
	var req verifyAndCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	bookingID := strings.TrimSpace(req.BookingID)
	sessionID := strings.TrimSpace(req.SessionID)
	if bookingID == "" {
		AbortWithError(c, newValidationError("booking_id", "required", "booking_id is required"))
		return
	}
	if sessionID == "" {
		AbortWithError(c, newValidationError("session_id", "required", "session_id is required"))
		return
	}
	c.Set("booking_id", bookingID)

	view, err := s.statusSvc.VerifyAndComplete(c.Request.Context(), bookingID, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

// PaymentSuccessLanding never completes a payment; the webhook or an explicit
// verify-and-complete call does.
func (s *Server) PaymentSuccessLanding(c *gin.Context) {
	bookingID := strings.TrimSpace(c.Query("booking_id"))
	if bookingID == "" {
		AbortWithError(c, newValidationError("booking_id", "required", "booking_id is required"))
		return
	}
	c.Set("booking_id", bookingID)

	view, err := s.statusSvc.GetStatus(c.Request.Context(), bookingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       view,
		"session_id": strings.TrimSpace(c.Query("session_id")),
	})
}

// PaymentCancelLanding is read-only. The verified checkout.session.expired
// webhook is what moves payment state after a customer walks away.
func (s *Server) PaymentCancelLanding(c *gin.Context) {
	bookingID := strings.TrimSpace(c.Query("booking_id"))
	if bookingID == "" {
		AbortWithError(c, newValidationError("booking_id", "required", "booking_id is required"))
		return
	}
	c.Set("booking_id", bookingID)

	view, err := s.statusSvc.GetStatus(c.Request.Context(), bookingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

type abandonCheckoutRequest struct {
	BookingID string `json:"booking_id"`
}

// AbandonCheckout lets an authenticated customer give up on an open
// checkout before the processor expires the session.
func (s *Server) AbandonCheckout(c *gin.Context) {
	var req abandonCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	bookingID := strings.TrimSpace(req.BookingID)
	if bookingID == "" {
		AbortWithError(c, newValidationError("booking_id", "required", "booking_id is required"))
		return
	}
	c.Set("booking_id", bookingID)

	view, err := s.statusSvc.Abandon(c.Request.Context(), bookingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
