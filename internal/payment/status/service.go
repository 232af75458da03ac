package status

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	BookingRepo bookingdomain.Repository
	Processor   paymentdomain.Processor
	Reconciler  paymentdomain.Reconciler
}

// Service answers status polls straight from the booking row; nothing is
// cached, so a poll sees a transition as soon as it commits.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	bookingRepo bookingdomain.Repository
	processor   paymentdomain.Processor
	reconciler  paymentdomain.Reconciler
}

func New(p Params) paymentdomain.StatusService {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.status"),
		bookingRepo: p.BookingRepo,
		processor:   p.Processor,
		reconciler:  p.Reconciler,
	}
}

func (s *Service) GetStatus(ctx context.Context, bookingID string) (paymentdomain.StatusView, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return paymentdomain.StatusView{}, err
	}
	return viewOf(booking), nil
}

// VerifyAndComplete is the return-redirect fallback for a webhook that has
// not arrived yet. The processor is asked directly and a paid session is fed
// through the reconciler like any other completion.
func (s *Service) VerifyAndComplete(ctx context.Context, bookingID, sessionID string) (paymentdomain.StatusView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return paymentdomain.StatusView{}, fmt.Errorf("%w: session id is required", paymentdomain.ErrPreconditionFailed)
	}

	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return paymentdomain.StatusView{}, err
	}
	if booking.PaymentStatus == bookingdomain.PaymentCompleted {
		return viewOf(booking), nil
	}

	session, err := s.processor.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return paymentdomain.StatusView{}, err
	}
	if session.Metadata["booking_id"] != booking.ID.String() {
		s.log.Warn("checkout session belongs to another booking",
			zap.String("booking_id", booking.ID.String()),
			zap.String("session_id", sessionID),
		)
		return paymentdomain.StatusView{}, fmt.Errorf("%w: session does not belong to booking", paymentdomain.ErrPreconditionFailed)
	}
	if !session.Paid() {
		return paymentdomain.StatusView{}, fmt.Errorf("%w: session not paid (%s/%s)", paymentdomain.ErrPreconditionFailed, session.Status, session.PaymentStatus)
	}

	result, err := s.reconciler.Apply(ctx, paymentdomain.Command{
		BookingID: booking.ID,
		Signal:    bookingdomain.SignalCheckoutCompleted,
		Evidence: bookingdomain.Evidence{
			SessionID:       session.ID,
			PaymentIntentID: session.PaymentIntentID,
		},
		Source: paymentdomain.SourceReturnRedirect,
	})
	if err != nil {
		return paymentdomain.StatusView{}, notFoundIfUnknown(err)
	}
	return viewOf(result.Booking), nil
}

// Abandon records an authenticated customer giving up on an open checkout.
func (s *Service) Abandon(ctx context.Context, bookingID string) (paymentdomain.StatusView, error) {
	id, err := paymentdomain.ParseBookingID(bookingID)
	if err != nil {
		return paymentdomain.StatusView{}, err
	}
	result, err := s.reconciler.Apply(ctx, paymentdomain.Command{
		BookingID: id,
		Signal:    bookingdomain.SignalCheckoutAbandoned,
		Source:    paymentdomain.SourceCustomerAbandon,
	})
	if err != nil {
		return paymentdomain.StatusView{}, notFoundIfUnknown(err)
	}
	return viewOf(result.Booking), nil
}

func (s *Service) load(ctx context.Context, bookingID string) (bookingdomain.Booking, error) {
	id, err := paymentdomain.ParseBookingID(bookingID)
	if err != nil {
		return bookingdomain.Booking{}, err
	}
	booking, err := s.bookingRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return bookingdomain.Booking{}, err
	}
	if booking == nil {
		return bookingdomain.Booking{}, bookingdomain.ErrNotFound
	}
	return *booking, nil
}

func notFoundIfUnknown(err error) error {
	if errors.Is(err, paymentdomain.ErrUnknownBooking) {
		return bookingdomain.ErrNotFound
	}
	return err
}

func viewOf(b bookingdomain.Booking) paymentdomain.StatusView {
	return paymentdomain.StatusView{
		BookingID:     b.ID.String(),
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		PaidAt:        b.PaidAt,
	}
}
