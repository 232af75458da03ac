package domain

import (
	"context"
	"errors"
)

type CreateOfferingRequest struct {
	ProviderID   string `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Price        string `json:"price"`
	PricingType  string `json:"pricing_type"`
}

type ListOfferingsRequest struct {
	ProviderID string
	ActiveOnly bool
}

type Service interface {
	Create(context.Context, CreateOfferingRequest) (Offering, error)
	GetByID(ctx context.Context, id string) (Offering, error)
	ListByProvider(context.Context, ListOfferingsRequest) ([]Offering, error)
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrInvalidPricingType = errors.New("invalid_pricing_type")
	ErrDuplicateSlug      = errors.New("duplicate_slug")
	ErrNotFound           = errors.New("not_found")
)
