package webhook

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	"github.com/smallbiznis/servicepoint/internal/clock"
	obsmetrics "github.com/smallbiznis/servicepoint/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Verifier     paymentdomain.Verifier
	Processor    paymentdomain.Processor
	Reconciler   paymentdomain.Reconciler
	BookingRepo  bookingdomain.Repository
	DeliveryRepo paymentdomain.DeliveryRepository
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	verifier     paymentdomain.Verifier
	processor    paymentdomain.Processor
	reconciler   paymentdomain.Reconciler
	bookingRepo  bookingdomain.Repository
	deliveryRepo paymentdomain.DeliveryRepository
	metrics      *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.webhook"),
		genID:        p.GenID,
		clock:        p.Clock,
		verifier:     p.Verifier,
		processor:    p.Processor,
		reconciler:   p.Reconciler,
		bookingRepo:  p.BookingRepo,
		deliveryRepo: p.DeliveryRepo,
		metrics:      p.Metrics,
	}
}

// Ingest verifies and applies one processor delivery. A nil error means the
// delivery is settled and must not be redelivered, including unknown
// bookings and rejected transitions. Any other error asks for redelivery.
func (s *Service) Ingest(ctx context.Context, payload []byte, signatureHeader string) (paymentdomain.WebhookResult, error) {
	event, err := s.verifier.Verify(payload, signatureHeader)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, paymentdomain.ProviderStripe, "unknown", "invalid")
		s.log.Warn("webhook rejected before processing", zap.Error(err))
		return paymentdomain.WebhookResult{}, err
	}

	result := paymentdomain.WebhookResult{EventID: event.ID, Kind: event.Kind}
	delivery := s.recordDelivery(ctx, event)

	outcome, bookingID, applyErr := s.process(ctx, &event)
	result.Outcome = outcome
	if bookingID != 0 {
		result.BookingID = bookingID.String()
	}
	s.markDelivery(ctx, delivery, bookingID, outcome, applyErr)
	s.metrics.RecordWebhookEvent(ctx, paymentdomain.ProviderStripe, event.Type, outcome)

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("kind", string(event.Kind)),
		zap.String("outcome", outcome),
	}
	if bookingID != 0 {
		fields = append(fields, zap.String("booking_id", bookingID.String()))
	}

	if outcome == paymentdomain.DeliveryFailed {
		s.log.Error("webhook processing failed", append(fields, zap.Error(applyErr))...)
		return result, applyErr
	}
	if applyErr != nil {
		fields = append(fields, zap.NamedError("reason", applyErr))
	}
	s.log.Info("webhook processed", fields...)
	return result, nil
}

func (s *Service) process(ctx context.Context, event *paymentdomain.Event) (string, snowflake.ID, error) {
	signal, ok := event.Kind.Signal()
	if !ok {
		return paymentdomain.DeliveryUnhandled, event.BookingID, nil
	}

	bookingID, err := s.resolveBooking(ctx, *event)
	if err != nil {
		return paymentdomain.DeliveryFailed, 0, err
	}
	if bookingID == 0 {
		return paymentdomain.DeliveryUnknownBooking, 0, paymentdomain.ErrUnknownBooking
	}

	if event.Kind == paymentdomain.KindSessionCompleted && event.PaymentIntentID == "" && event.SessionID != "" {
		session, err := s.processor.RetrieveCheckoutSession(ctx, event.SessionID)
		if err != nil {
			if errors.Is(err, paymentdomain.ErrProcessorUnavailable) {
				return paymentdomain.DeliveryFailed, bookingID, err
			}
			s.log.Warn("could not resolve payment intent for completed session",
				zap.String("session_id", event.SessionID),
				zap.Error(err),
			)
		} else {
			event.PaymentIntentID = session.PaymentIntentID
		}
	}

	res, err := s.reconciler.Apply(ctx, paymentdomain.Command{
		BookingID: bookingID,
		Signal:    signal,
		Evidence: bookingdomain.Evidence{
			SessionID:       event.SessionID,
			PaymentIntentID: event.PaymentIntentID,
		},
		Source:  paymentdomain.SourceWebhook,
		EventID: event.ID,
	})
	switch {
	case err == nil:
		return deliveryOutcome(res.Outcome), bookingID, res.Err()
	case errors.Is(err, paymentdomain.ErrUnknownBooking):
		return paymentdomain.DeliveryUnknownBooking, bookingID, err
	case errors.Is(err, paymentdomain.ErrBookingCancelled), errors.Is(err, paymentdomain.ErrPreconditionFailed):
		return paymentdomain.DeliveryRejected, bookingID, err
	default:
		return paymentdomain.DeliveryFailed, bookingID, err
	}
}

// resolveBooking prefers the metadata booking id and falls back to the
// payment intent for objects that carry no metadata, such as charges.
func (s *Service) resolveBooking(ctx context.Context, event paymentdomain.Event) (snowflake.ID, error) {
	if event.BookingID != 0 {
		return event.BookingID, nil
	}
	if strings.TrimSpace(event.PaymentIntentID) == "" {
		return 0, nil
	}
	return s.bookingRepo.FindIDByPaymentIntent(ctx, s.db, event.PaymentIntentID)
}

func deliveryOutcome(outcome bookingdomain.Outcome) string {
	switch outcome {
	case bookingdomain.OutcomeApplied:
		return paymentdomain.DeliveryProcessed
	case bookingdomain.OutcomeDuplicate:
		return paymentdomain.DeliveryDuplicate
	case bookingdomain.OutcomeStale:
		return paymentdomain.DeliveryStale
	default:
		return paymentdomain.DeliveryRejected
	}
}

// recordDelivery appends to the audit log. Failures are logged and never
// block processing.
func (s *Service) recordDelivery(ctx context.Context, event paymentdomain.Event) *paymentdomain.DeliveryRecord {
	if s.deliveryRepo == nil || s.genID == nil {
		return nil
	}
	record := &paymentdomain.DeliveryRecord{
		ID:              s.genID.Generate(),
		Provider:        paymentdomain.ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Kind:            event.Kind,
		Payload:         datatypes.JSON(event.Raw),
		Outcome:         paymentdomain.DeliveryReceived,
		ReceivedAt:      s.clock.Now(),
	}
	if event.BookingID != 0 {
		bookingID := event.BookingID
		record.BookingID = &bookingID
	}
	if event.SessionID != "" {
		sessionID := event.SessionID
		record.SessionID = &sessionID
	}
	if err := s.deliveryRepo.Insert(ctx, s.db, record); err != nil {
		s.log.Warn("failed to record webhook delivery", zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}
	return record
}

func (s *Service) markDelivery(ctx context.Context, record *paymentdomain.DeliveryRecord, bookingID snowflake.ID, outcome string, cause error) {
	if record == nil {
		return
	}
	var bookingRef *snowflake.ID
	if bookingID != 0 {
		bookingRef = &bookingID
	}
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	if err := s.deliveryRepo.MarkOutcome(ctx, s.db, record.ID, bookingRef, outcome, errMsg, s.clock.Now()); err != nil {
		s.log.Warn("failed to mark webhook delivery", zap.String("delivery_id", record.ID.String()), zap.Error(err))
	}
}
