package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PricingType string

const (
	PricingHourly  PricingType = "hourly"
	PricingPerWork PricingType = "per_work"
)

func (p PricingType) Valid() bool {
	return p == PricingHourly || p == PricingPerWork
}

// Offering is the bookable service a provider publishes. Bookings copy its
// price once at creation.
type Offering struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	ProviderID   snowflake.ID    `gorm:"not null;index" json:"provider_id"`
	ProviderName string          `gorm:"not null" json:"provider_name"`
	Name         string          `gorm:"not null" json:"name"`
	Slug         string          `gorm:"not null" json:"slug"`
	Description  string          `gorm:"not null" json:"description,omitempty"`
	Price        decimal.Decimal `gorm:"type:numeric(14,4);not null" json:"price"`
	PricingType  PricingType     `gorm:"not null" json:"pricing_type"`
	Active       bool            `gorm:"not null" json:"active"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (Offering) TableName() string {
	return "service_offerings"
}
