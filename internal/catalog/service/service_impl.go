package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/servicepoint/internal/catalog/domain"
	"github.com/smallbiznis/servicepoint/internal/clock"
	"github.com/smallbiznis/servicepoint/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOfferingRequest) (domain.Offering, error) {
	providerID, err := snowflake.ParseString(strings.TrimSpace(req.ProviderID))
	if err != nil || providerID == 0 {
		return domain.Offering{}, domain.ErrInvalidProvider
	}
	providerName := strings.TrimSpace(req.ProviderName)
	if providerName == "" {
		return domain.Offering{}, domain.ErrInvalidProvider
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Offering{}, domain.ErrInvalidName
	}
	offeringSlug := slug.Make(name)
	if offeringSlug == "" {
		return domain.Offering{}, domain.ErrInvalidName
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil || !price.IsPositive() {
		return domain.Offering{}, domain.ErrInvalidPrice
	}

	pricingType := domain.PricingType(strings.ToLower(strings.TrimSpace(req.PricingType)))
	if !pricingType.Valid() {
		return domain.Offering{}, domain.ErrInvalidPricingType
	}

	now := s.clock.Now()
	offering := domain.Offering{
		ID:           s.genID.Generate(),
		ProviderID:   providerID,
		ProviderName: providerName,
		Name:         name,
		Slug:         offeringSlug,
		Description:  strings.TrimSpace(req.Description),
		Price:        price,
		PricingType:  pricingType,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &offering); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Offering{}, domain.ErrDuplicateSlug
		}
		return domain.Offering{}, err
	}

	s.log.Info("service offering created",
		zap.String("offering_id", offering.ID.String()),
		zap.String("provider_id", providerID.String()),
		zap.String("slug", offeringSlug),
	)
	return offering, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Offering, error) {
	offeringID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || offeringID == 0 {
		return domain.Offering{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, offeringID)
	if err != nil {
		return domain.Offering{}, err
	}
	if item == nil {
		return domain.Offering{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) ListByProvider(ctx context.Context, req domain.ListOfferingsRequest) ([]domain.Offering, error) {
	providerID, err := snowflake.ParseString(strings.TrimSpace(req.ProviderID))
	if err != nil || providerID == 0 {
		return nil, domain.ErrInvalidProvider
	}

	items, err := s.repo.ListByProvider(ctx, s.db, providerID, req.ActiveOnly)
	if err != nil {
		return nil, err
	}

	offerings := make([]domain.Offering, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		offerings = append(offerings, *item)
	}
	return offerings, nil
}
