package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicepoint/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, offering *domain.Offering) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO service_offerings (id, provider_id, provider_name, name, slug, description, price, pricing_type, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		offering.ID,
		offering.ProviderID,
		offering.ProviderName,
		offering.Name,
		offering.Slug,
		offering.Description,
		offering.Price,
		offering.PricingType,
		offering.Active,
		offering.CreatedAt,
		offering.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Offering, error) {
	var offering domain.Offering
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider_id, provider_name, name, slug, description, price, pricing_type, active, created_at, updated_at
		 FROM service_offerings WHERE id = ?`,
		id,
	).Scan(&offering).Error
	if err != nil {
		return nil, err
	}
	if offering.ID == 0 {
		return nil, nil
	}
	return &offering, nil
}

func (r *repo) ListByProvider(ctx context.Context, db *gorm.DB, providerID snowflake.ID, activeOnly bool) ([]*domain.Offering, error) {
	var offerings []*domain.Offering
	stmt := db.WithContext(ctx).
		Model(&domain.Offering{}).
		Where("provider_id = ?", providerID)
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}
	if err := stmt.Order("created_at desc, id desc").Find(&offerings).Error; err != nil {
		return nil, err
	}
	return offerings, nil
}
