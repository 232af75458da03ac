package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/servicepoint/internal/authorization"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	catalogdomain "github.com/smallbiznis/servicepoint/internal/catalog/domain"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrAuthentication),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrCheckoutInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "checkout_in_progress",
			Message: "a checkout session is already being created for this booking",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, bookingdomain.ErrConflict),
		errors.Is(err, catalogdomain.ErrDuplicateSlug):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isPreconditionError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "precondition_failed",
			Message: preconditionMessage(err),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrProcessorUnavailable),
		errors.Is(err, paymentdomain.ErrInvalidConfig):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "processor_unavailable",
			Message: "payment processor unavailable",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrStorageConflict),
		errors.Is(err, bookingdomain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	return payload.Type, strconv.Itoa(status)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidBooking):
		return true
	default:
		for _, sentinel := range validationSentinels {
			if errors.Is(err, sentinel) {
				return true
			}
		}
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, bookingdomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrUnknownBooking),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isPreconditionError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrPreconditionFailed),
		errors.Is(err, paymentdomain.ErrBookingCancelled),
		errors.Is(err, bookingdomain.ErrInvalidTransition),
		errors.Is(err, bookingdomain.ErrPaymentCompleted),
		errors.Is(err, bookingdomain.ErrBookingCancelled),
		errors.Is(err, bookingdomain.ErrMissingPaymentReference),
		errors.Is(err, bookingdomain.ErrPaymentIntentMismatch),
		errors.Is(err, bookingdomain.ErrReceiptUnavailable):
		return true
	default:
		return false
	}
}

// preconditionMessage exposes the domain reason code, never wrapped context.
func preconditionMessage(err error) string {
	for _, reason := range []error{
		bookingdomain.ErrPaymentCompleted,
		bookingdomain.ErrBookingCancelled,
		paymentdomain.ErrBookingCancelled,
		bookingdomain.ErrMissingPaymentReference,
		bookingdomain.ErrPaymentIntentMismatch,
		bookingdomain.ErrReceiptUnavailable,
		bookingdomain.ErrInvalidTransition,
	} {
		if errors.Is(err, reason) {
			return reason.Error()
		}
	}
	return "precondition failed"
}

var validationSentinels = []error{
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidBooking,
	bookingdomain.ErrInvalidID,
	bookingdomain.ErrInvalidCustomer,
	bookingdomain.ErrInvalidProvider,
	bookingdomain.ErrInvalidService,
	bookingdomain.ErrInvalidSchedule,
	bookingdomain.ErrInvalidHours,
	catalogdomain.ErrInvalidID,
	catalogdomain.ErrInvalidProvider,
	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidPrice,
	catalogdomain.ErrInvalidPricingType,
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "invalid_request"
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
