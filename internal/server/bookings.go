package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	"github.com/smallbiznis/servicepoint/pkg/db/pagination"
)

type createBookingRequest struct {
	CustomerID      string `json:"customer_id"`
	ProviderID      string `json:"provider_id"`
	ServiceID       string `json:"service_id"`
	ServiceDateTime string `json:"service_date_time"`
	Hours           string `json:"hours"`
	Notes           string `json:"notes"`
}

func (s *Server) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	serviceAt, err := parseRequiredTime(req.ServiceDateTime)
	if err != nil {
		AbortWithError(c, newValidationError("service_date_time", "invalid_schedule", "service_date_time must be RFC3339"))
		return
	}

	resp, err := s.bookingSvc.Create(c.Request.Context(), bookingdomain.CreateBookingRequest{
		CustomerID:      strings.TrimSpace(req.CustomerID),
		ProviderID:      strings.TrimSpace(req.ProviderID),
		ServiceID:       strings.TrimSpace(req.ServiceID),
		ServiceDateTime: serviceAt,
		Hours:           strings.TrimSpace(req.Hours),
		Notes:           strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("booking_id", resp.ID.String())

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListBookings(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CustomerID    string `form:"customer_id"`
		ProviderID    string `form:"provider_id"`
		Status        string `form:"status"`
		PaymentStatus string `form:"payment_status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.bookingSvc.List(c.Request.Context(), bookingdomain.ListBookingRequest{
		PageToken:     query.PageToken,
		PageSize:      int32(query.PageSize),
		CustomerID:    strings.TrimSpace(query.CustomerID),
		ProviderID:    strings.TrimSpace(query.ProviderID),
		Status:        strings.TrimSpace(query.Status),
		PaymentStatus: strings.TrimSpace(query.PaymentStatus),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Bookings,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetBookingByID(c *gin.Context) {
	id := bookingIDParam(c)

	resp, err := s.bookingSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type rescheduleBookingRequest struct {
	ServiceDateTime string  `json:"service_date_time"`
	Notes           *string `json:"notes"`
}

func (s *Server) RescheduleBooking(c *gin.Context) {
	id := bookingIDParam(c)

	var req rescheduleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	serviceAt, err := parseRequiredTime(req.ServiceDateTime)
	if err != nil {
		AbortWithError(c, newValidationError("service_date_time", "invalid_schedule", "service_date_time must be RFC3339"))
		return
	}
	if req.Notes != nil {
		trimmed := strings.TrimSpace(*req.Notes)
		req.Notes = &trimmed
	}

	resp, err := s.bookingSvc.Reschedule(c.Request.Context(), bookingdomain.RescheduleRequest{
		ID:              id,
		ServiceDateTime: serviceAt,
		Notes:           req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelBooking(c *gin.Context) {
	s.bookingAction(c, s.bookingSvc.Cancel)
}

func (s *Server) StartBooking(c *gin.Context) {
	s.bookingAction(c, s.bookingSvc.Start)
}

func (s *Server) FinishBooking(c *gin.Context) {
	s.bookingAction(c, s.bookingSvc.Finish)
}

func (s *Server) DeleteBooking(c *gin.Context) {
	id := bookingIDParam(c)

	if err := s.bookingSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetBookingReceipt(c *gin.Context) {
	id := bookingIDParam(c)

	pdf, err := s.bookingSvc.Receipt(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\"receipt-"+id+".pdf\"")
	c.Header("Content-Length", strconv.Itoa(len(pdf)))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) RefundBooking(c *gin.Context) {
	id := bookingIDParam(c)

	resp, err := s.refundSvc.Refund(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": resp})
}

func (s *Server) bookingAction(c *gin.Context, action func(ctx context.Context, id string) (bookingdomain.Booking, error)) {
	id := bookingIDParam(c)

	resp, err := action(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func bookingIDParam(c *gin.Context) string {
	id := strings.TrimSpace(c.Param("id"))
	c.Set("booking_id", id)
	return id
}

func parseRequiredTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(value))
}
