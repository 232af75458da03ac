package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/servicepoint/pkg/db/pagination"
)

type CreateBookingRequest struct {
	CustomerID      string    `json:"customer_id"`
	ProviderID      string    `json:"provider_id"`
	ServiceID       string    `json:"service_id"`
	ServiceDateTime time.Time `json:"service_date_time"`
	Hours           string    `json:"hours"`
	Notes           string    `json:"notes"`
}

type ListBookingRequest struct {
	PageToken     string
	PageSize      int32
	CustomerID    string
	ProviderID    string
	Status        string
	PaymentStatus string
}

type ListBookingResponse struct {
	pagination.PageInfo
	Bookings []Booking `json:"bookings"`
}

type RescheduleRequest struct {
	ID              string
	ServiceDateTime time.Time
	Notes           *string
}

type Service interface {
	Create(context.Context, CreateBookingRequest) (Booking, error)
	GetByID(ctx context.Context, id string) (Booking, error)
	List(context.Context, ListBookingRequest) (ListBookingResponse, error)
	Reschedule(context.Context, RescheduleRequest) (Booking, error)
	Cancel(ctx context.Context, id string) (Booking, error)
	Start(ctx context.Context, id string) (Booking, error)
	Finish(ctx context.Context, id string) (Booking, error)
	Delete(ctx context.Context, id string) error
	Receipt(ctx context.Context, id string) ([]byte, error)
}

// ReceiptRenderer turns a paid booking into a printable document.
type ReceiptRenderer interface {
	RenderBookingReceipt(ctx context.Context, booking Booking, serviceName, providerName string) ([]byte, error)
}
