package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/servicepoint/internal/booking/domain"
	catalogdomain "github.com/smallbiznis/servicepoint/internal/catalog/domain"
	"github.com/smallbiznis/servicepoint/internal/clock"
	"github.com/smallbiznis/servicepoint/internal/config"
	"github.com/smallbiznis/servicepoint/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Catalog     catalogdomain.Service
	CheckoutCfg *config.CheckoutConfigHolder
	Receipts    domain.ReceiptRenderer
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	catalog     catalogdomain.Service
	checkoutCfg *config.CheckoutConfigHolder
	receipts    domain.ReceiptRenderer
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("booking.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalog:     p.Catalog,
		checkoutCfg: p.CheckoutCfg,
		receipts:    p.Receipts,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateBookingRequest) (domain.Booking, error) {
	customerID, err := parseID(req.CustomerID, domain.ErrInvalidCustomer)
	if err != nil {
		return domain.Booking{}, err
	}

	offering, err := s.catalog.GetByID(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrNotFound) || errors.Is(err, catalogdomain.ErrInvalidID) {
			return domain.Booking{}, domain.ErrInvalidService
		}
		return domain.Booking{}, err
	}
	if !offering.Active {
		return domain.Booking{}, domain.ErrServiceUnavailable
	}

	if strings.TrimSpace(req.ProviderID) != "" {
		providerID, err := parseID(req.ProviderID, domain.ErrInvalidProvider)
		if err != nil {
			return domain.Booking{}, err
		}
		if providerID != offering.ProviderID {
			return domain.Booking{}, domain.ErrInvalidProvider
		}
	}

	now := s.clock.Now()
	if req.ServiceDateTime.IsZero() || !req.ServiceDateTime.After(now) {
		return domain.Booking{}, domain.ErrInvalidSchedule
	}

	pricingType := domain.PricingType(offering.PricingType)
	subtotal := offering.Price
	var hours decimal.NullDecimal
	switch pricingType {
	case domain.PricingHourly:
		h, err := decimal.NewFromString(strings.TrimSpace(req.Hours))
		if err != nil || !h.IsPositive() {
			return domain.Booking{}, domain.ErrInvalidHours
		}
		hours = decimal.NewNullDecimal(h)
		subtotal = offering.Price.Mul(h)
	case domain.PricingPerWork:
	default:
		return domain.Booking{}, domain.ErrInvalidService
	}

	fee := subtotal.Mul(s.checkoutCfg.Get().FeeRate())
	total := domain.RoundCents(subtotal.Add(fee))

	booking := domain.Booking{
		ID:                   s.genID.Generate(),
		CustomerID:           customerID,
		ProviderID:           offering.ProviderID,
		ServiceID:            offering.ID,
		PriceAtBooking:       offering.Price,
		PricingTypeAtBooking: pricingType,
		Hours:                hours,
		TotalPrice:           decimal.NewNullDecimal(total),
		ServiceDateTime:      req.ServiceDateTime.UTC(),
		Notes:                strings.TrimSpace(req.Notes),
		Status:               domain.StatusPending,
		PaymentStatus:        domain.PaymentPending,
		BookingDate:          now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Insert(ctx, s.db, &booking); err != nil {
		return domain.Booking{}, err
	}

	s.log.Info("booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("service_id", offering.ID.String()),
		zap.String("total_price", total.StringFixed(2)),
	)
	return booking, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Booking, error) {
	bookingID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return domain.Booking{}, err
	}
	return s.load(ctx, bookingID)
}

func (s *Service) List(ctx context.Context, req domain.ListBookingRequest) (domain.ListBookingResponse, error) {
	var filter domain.ListBookingFilter
	if strings.TrimSpace(req.CustomerID) != "" {
		id, err := parseID(req.CustomerID, domain.ErrInvalidCustomer)
		if err != nil {
			return domain.ListBookingResponse{}, err
		}
		filter.CustomerID = id
	}
	if strings.TrimSpace(req.ProviderID) != "" {
		id, err := parseID(req.ProviderID, domain.ErrInvalidProvider)
		if err != nil {
			return domain.ListBookingResponse{}, err
		}
		filter.ProviderID = id
	}
	if filter.CustomerID == 0 && filter.ProviderID == 0 {
		return domain.ListBookingResponse{}, domain.ErrInvalidCustomer
	}
	if status := domain.Status(strings.TrimSpace(req.Status)); status != "" {
		filter.Status = status
	}
	if paymentStatus := domain.PaymentStatus(strings.TrimSpace(req.PaymentStatus)); paymentStatus != "" {
		filter.PaymentStatus = paymentStatus
	}

	page := pagination.Pagination{PageToken: strings.TrimSpace(req.PageToken), PageSize: int(req.PageSize)}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return domain.ListBookingResponse{}, domain.ErrInvalidID
		}
		createdAt := cursor.CreatedAt
		filter.BeforeCreatedAt = &createdAt
		filter.BeforeID = cursor.ID
	}

	pageSize := page.Size()
	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{PageSize: pageSize})
	if err != nil {
		return domain.ListBookingResponse{}, err
	}

	pageInfo, err := pagination.BuildCursorPageInfo(items, pageSize, bookingCursor)
	if err != nil {
		return domain.ListBookingResponse{}, err
	}
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	return buildListResponse(items, pageInfo), nil
}

func (s *Service) Reschedule(ctx context.Context, req domain.RescheduleRequest) (domain.Booking, error) {
	bookingID, err := parseID(req.ID, domain.ErrInvalidID)
	if err != nil {
		return domain.Booking{}, err
	}
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if err := domain.CanReschedule(booking); err != nil {
		return domain.Booking{}, err
	}

	now := s.clock.Now()
	when := booking.ServiceDateTime
	if !req.ServiceDateTime.IsZero() {
		if !req.ServiceDateTime.After(now) {
			return domain.Booking{}, domain.ErrInvalidSchedule
		}
		when = req.ServiceDateTime.UTC()
	}
	notes := booking.Notes
	if req.Notes != nil {
		notes = strings.TrimSpace(*req.Notes)
	}

	ok, err := s.repo.UpdateSchedule(ctx, s.db, bookingID, domain.GuardOf(booking), when, notes, now)
	if err != nil {
		return domain.Booking{}, err
	}
	if !ok {
		return domain.Booking{}, domain.ErrConflict
	}
	return s.load(ctx, bookingID)
}

func (s *Service) Cancel(ctx context.Context, id string) (domain.Booking, error) {
	return s.moveStatus(ctx, id, domain.StatusCancelled, domain.CanCancel)
}

func (s *Service) Start(ctx context.Context, id string) (domain.Booking, error) {
	return s.moveStatus(ctx, id, domain.StatusInProgress, domain.CanStart)
}

func (s *Service) Finish(ctx context.Context, id string) (domain.Booking, error) {
	return s.moveStatus(ctx, id, domain.StatusCompleted, domain.CanFinish)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	bookingID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return err
	}
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := domain.CanDelete(booking); err != nil {
		return err
	}

	ok, err := s.repo.Delete(ctx, s.db, bookingID, domain.GuardOf(booking))
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrConflict
	}
	s.log.Info("booking deleted", zap.String("booking_id", bookingID.String()))
	return nil
}

func (s *Service) Receipt(ctx context.Context, id string) ([]byte, error) {
	bookingID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.PaymentStatus != domain.PaymentCompleted {
		return nil, domain.ErrReceiptUnavailable
	}
	if s.receipts == nil {
		return nil, domain.ErrReceiptUnavailable
	}

	serviceName, providerName := "Service booking", ""
	if offering, err := s.catalog.GetByID(ctx, booking.ServiceID.String()); err == nil {
		serviceName = offering.Name
		providerName = offering.ProviderName
	} else {
		s.log.Warn("receipt rendered without offering details",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
	}

	return s.receipts.RenderBookingReceipt(ctx, booking, serviceName, providerName)
}

func (s *Service) moveStatus(ctx context.Context, id string, next domain.Status, allowed func(domain.Booking) error) (domain.Booking, error) {
	bookingID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return domain.Booking{}, err
	}
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if err := allowed(booking); err != nil {
		return domain.Booking{}, err
	}

	ok, err := s.repo.CompareAndSetStatus(ctx, s.db, bookingID, domain.GuardOf(booking), next, s.clock.Now())
	if err != nil {
		return domain.Booking{}, err
	}
	if !ok {
		return domain.Booking{}, domain.ErrConflict
	}

	s.log.Info("booking status changed",
		zap.String("booking_id", bookingID.String()),
		zap.String("from", string(booking.Status)),
		zap.String("to", string(next)),
	)
	return s.load(ctx, bookingID)
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (domain.Booking, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if item == nil {
		return domain.Booking{}, domain.ErrNotFound
	}
	return *item, nil
}

func bookingCursor(b *domain.Booking) pagination.Cursor {
	return pagination.Cursor{ID: b.ID, CreatedAt: b.CreatedAt}
}

func buildListResponse(items []*domain.Booking, pageInfo *pagination.PageInfo) domain.ListBookingResponse {
	bookings := make([]domain.Booking, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		bookings = append(bookings, *item)
	}
	resp := domain.ListBookingResponse{Bookings: bookings}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp
}

func parseID(value string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
