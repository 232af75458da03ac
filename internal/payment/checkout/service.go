package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	catalogdomain "github.com/smallbiznis/servicepoint/internal/catalog/domain"
	"github.com/smallbiznis/servicepoint/internal/config"
	obsmetrics "github.com/smallbiznis/servicepoint/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"github.com/smallbiznis/servicepoint/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sessionPlaceholder is substituted by the processor on redirect.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

type sessionGuard interface {
	Acquire(ctx context.Context, bookingID string) (func(context.Context), bool, error)
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Config      config.Config
	CheckoutCfg *config.CheckoutConfigHolder
	BookingRepo bookingdomain.Repository
	Catalog     catalogdomain.Service
	Processor   paymentdomain.Processor
	Guard       *ratelimit.CheckoutGuard `optional:"true"`
	Metrics     *obsmetrics.Metrics      `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	baseURL     string
	checkoutCfg *config.CheckoutConfigHolder
	bookingRepo bookingdomain.Repository
	catalog     catalogdomain.Service
	processor   paymentdomain.Processor
	guard       sessionGuard
	metrics     *obsmetrics.Metrics
}

func New(p Params) paymentdomain.CheckoutService {
	return newService(p)
}

func newService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.checkout"),
		baseURL:     strings.TrimRight(strings.TrimSpace(p.Config.PublicBaseURL), "/"),
		checkoutCfg: p.CheckoutCfg,
		bookingRepo: p.BookingRepo,
		catalog:     p.Catalog,
		processor:   p.Processor,
		guard:       p.Guard,
		metrics:     p.Metrics,
	}
}

// CreateSession opens a hosted checkout for the booking. It never writes the
// booking: the session id is stored only once the processor reports the
// session completed.
func (s *Service) CreateSession(ctx context.Context, bookingID string) (paymentdomain.SessionResult, error) {
	id, err := paymentdomain.ParseBookingID(bookingID)
	if err != nil {
		return paymentdomain.SessionResult{}, err
	}

	booking, err := s.bookingRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return paymentdomain.SessionResult{}, err
	}
	if booking == nil {
		return paymentdomain.SessionResult{}, bookingdomain.ErrNotFound
	}

	if err := checkPreconditions(*booking); err != nil {
		s.metrics.RecordCheckoutSession(ctx, "rejected")
		s.log.Info("checkout session rejected",
			zap.String("booking_id", id.String()),
			zap.String("payment_status", string(booking.PaymentStatus)),
			zap.Error(err),
		)
		return paymentdomain.SessionResult{}, err
	}

	release, acquired, err := s.acquire(ctx, id.String())
	if err != nil {
		s.log.Warn("checkout guard unavailable, continuing without lock",
			zap.String("booking_id", id.String()),
			zap.Error(err),
		)
	} else if !acquired {
		s.metrics.RecordCheckoutSession(ctx, "in_progress")
		return paymentdomain.SessionResult{}, paymentdomain.ErrCheckoutInProgress
	}
	defer release(context.WithoutCancel(ctx))

	result, err := s.createSession(ctx, *booking)
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, resultLabel(err))
		s.log.Warn("checkout session failed",
			zap.String("booking_id", id.String()),
			zap.Error(err),
		)
		return paymentdomain.SessionResult{}, err
	}

	s.metrics.RecordCheckoutSession(ctx, "created")
	s.log.Info("checkout session created",
		zap.String("booking_id", id.String()),
		zap.String("session_id", result.SessionID),
		zap.Int64("amount_minor", result.AmountMinor),
		zap.String("currency", result.Currency),
	)
	return result, nil
}

func (s *Service) acquire(ctx context.Context, bookingID string) (func(context.Context), bool, error) {
	noop := func(context.Context) {}
	if s.guard == nil {
		return noop, true, nil
	}
	release, ok, err := s.guard.Acquire(ctx, bookingID)
	if err != nil {
		return noop, false, err
	}
	return release, ok, nil
}

func (s *Service) createSession(ctx context.Context, booking bookingdomain.Booking) (paymentdomain.SessionResult, error) {
	amountMinor := bookingdomain.MinorUnits(booking.ChargeAmount())
	if amountMinor <= 0 {
		return paymentdomain.SessionResult{}, fmt.Errorf("%w: amount must be positive", paymentdomain.ErrPreconditionFailed)
	}

	productName, providerName := "Service booking", ""
	offering, err := s.catalog.GetByID(ctx, booking.ServiceID.String())
	switch {
	case err == nil:
		productName = offering.Name
		providerName = offering.ProviderName
	case errors.Is(err, catalogdomain.ErrNotFound):
	default:
		return paymentdomain.SessionResult{}, err
	}

	description := ""
	if providerName != "" {
		description = "Booking with " + providerName
	}

	cfg := s.checkoutCfg.Get()
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	bookingID := booking.ID.String()

	session, err := s.processor.CreateCheckoutSession(ctx, paymentdomain.CheckoutSessionRequest{
		BookingID:   booking.ID,
		CustomerID:  booking.CustomerID,
		ProviderID:  booking.ProviderID,
		AmountMinor: amountMinor,
		Currency:    currency,
		ProductName: productName,
		Description: description,
		SuccessURL:  s.baseURL + cfg.SuccessPath + "?session_id=" + sessionPlaceholder + "&booking_id=" + bookingID,
		CancelURL:   s.baseURL + cfg.CancelPath + "?booking_id=" + bookingID,
	})
	if err != nil {
		return paymentdomain.SessionResult{}, err
	}

	return paymentdomain.SessionResult{
		SessionID:   session.ID,
		RedirectURL: session.URL,
		AmountMinor: amountMinor,
		Currency:    currency,
	}, nil
}

func checkPreconditions(b bookingdomain.Booking) error {
	switch {
	case b.PaymentStatus == bookingdomain.PaymentCompleted:
		return fmt.Errorf("%w: payment already completed", paymentdomain.ErrPreconditionFailed)
	case b.PaymentStatus == bookingdomain.PaymentRefunded:
		return fmt.Errorf("%w: payment refunded", paymentdomain.ErrPreconditionFailed)
	case b.Status == bookingdomain.StatusCancelled:
		return fmt.Errorf("%w: booking cancelled", paymentdomain.ErrPreconditionFailed)
	case b.Status == bookingdomain.StatusInProgress, b.Status == bookingdomain.StatusCompleted:
		return fmt.Errorf("%w: booking already %s", paymentdomain.ErrPreconditionFailed, b.Status)
	case b.ProviderID == 0:
		return fmt.Errorf("%w: booking has no provider", paymentdomain.ErrPreconditionFailed)
	case !b.ChargeAmount().IsPositive():
		return fmt.Errorf("%w: amount must be positive", paymentdomain.ErrPreconditionFailed)
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, paymentdomain.ErrProcessorUnavailable):
		return "unavailable"
	case errors.Is(err, paymentdomain.ErrPreconditionFailed):
		return "rejected"
	default:
		return "error"
	}
}
