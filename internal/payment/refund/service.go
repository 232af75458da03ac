package refund

import (
	"context"
	"errors"
	"fmt"

	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	obsmetrics "github.com/smallbiznis/servicepoint/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reasonRequestedByCustomer = "requested_by_customer"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	BookingRepo bookingdomain.Repository
	Processor   paymentdomain.Processor
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	bookingRepo bookingdomain.Repository
	processor   paymentdomain.Processor
	metrics     *obsmetrics.Metrics
}

func New(p Params) paymentdomain.RefundService {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.refund"),
		bookingRepo: p.BookingRepo,
		processor:   p.Processor,
		metrics:     p.Metrics,
	}
}

// Refund asks the processor for a full refund. The booking itself moves to
// refunded only when the signed charge.refunded notification arrives.
func (s *Service) Refund(ctx context.Context, bookingID string) (paymentdomain.RefundResult, error) {
	id, err := paymentdomain.ParseBookingID(bookingID)
	if err != nil {
		return paymentdomain.RefundResult{}, err
	}
	booking, err := s.bookingRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return paymentdomain.RefundResult{}, err
	}
	if booking == nil {
		return paymentdomain.RefundResult{}, bookingdomain.ErrNotFound
	}

	if err := bookingdomain.CanRefund(*booking); err != nil {
		s.metrics.RecordRefundRequest(ctx, "rejected")
		return paymentdomain.RefundResult{}, fmt.Errorf("%w: %w", paymentdomain.ErrPreconditionFailed, err)
	}

	refund, err := s.processor.CreateRefund(ctx, paymentdomain.RefundRequest{
		BookingID:       booking.ID,
		PaymentIntentID: *booking.PaymentIntentID,
		Reason:          reasonRequestedByCustomer,
	})
	if err != nil {
		result := "error"
		if errors.Is(err, paymentdomain.ErrProcessorUnavailable) {
			result = "unavailable"
		}
		s.metrics.RecordRefundRequest(ctx, result)
		s.log.Warn("refund request failed",
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err),
		)
		return paymentdomain.RefundResult{}, err
	}

	s.metrics.RecordRefundRequest(ctx, "requested")
	s.log.Info("refund requested",
		zap.String("booking_id", booking.ID.String()),
		zap.String("refund_id", refund.ID),
		zap.String("refund_status", refund.Status),
	)
	return paymentdomain.RefundResult{
		RefundID:      refund.ID,
		Status:        refund.Status,
		BookingID:     booking.ID.String(),
		PaymentStatus: string(booking.PaymentStatus),
	}, nil
}
