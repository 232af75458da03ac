package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectBooking  = "booking"
	ObjectPayment  = "payment"
	ObjectOffering = "service_offering"
)

const (
	ActionBookingCreate     = "booking.create"
	ActionBookingView       = "booking.view"
	ActionBookingList       = "booking.list"
	ActionBookingReschedule = "booking.reschedule"
	ActionBookingCancel     = "booking.cancel"
	ActionBookingStart      = "booking.start"
	ActionBookingFinish     = "booking.finish"
	ActionBookingDelete     = "booking.delete"
	ActionBookingReceipt    = "booking.receipt"
	ActionBookingRefund     = "booking.refund"

	ActionPaymentCheckout = "payment.checkout"
	ActionPaymentStatus   = "payment.status"
	ActionPaymentVerify   = "payment.verify"

	ActionOfferingView   = "service_offering.view"
	ActionOfferingCreate = "service_offering.create"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor_id", strings.TrimSpace(actor.ID)),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func roleSubject(role string) string {
	return "role:" + role
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Customers own their bookings and pay for them.
		{"role:customer", ObjectBooking, ActionBookingCreate},
		{"role:customer", ObjectBooking, ActionBookingView},
		{"role:customer", ObjectBooking, ActionBookingList},
		{"role:customer", ObjectBooking, ActionBookingReschedule},
		{"role:customer", ObjectBooking, ActionBookingCancel},
		{"role:customer", ObjectBooking, ActionBookingDelete},
		{"role:customer", ObjectBooking, ActionBookingReceipt},
		{"role:customer", ObjectPayment, ActionPaymentCheckout},
		{"role:customer", ObjectPayment, ActionPaymentStatus},
		{"role:customer", ObjectPayment, ActionPaymentVerify},
		{"role:customer", ObjectOffering, ActionOfferingView},

		// Providers run the work.
		{"role:provider", ObjectBooking, ActionBookingView},
		{"role:provider", ObjectBooking, ActionBookingList},
		{"role:provider", ObjectBooking, ActionBookingCancel},
		{"role:provider", ObjectBooking, ActionBookingStart},
		{"role:provider", ObjectBooking, ActionBookingFinish},
		{"role:provider", ObjectBooking, ActionBookingReceipt},
		{"role:provider", ObjectPayment, ActionPaymentStatus},
		{"role:provider", ObjectOffering, ActionOfferingView},
		{"role:provider", ObjectOffering, ActionOfferingCreate},

		{"role:admin", ObjectBooking, ActionBookingRefund},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{"role:admin", "role:customer"},
		{"role:admin", "role:provider"},
		{"role:system", "role:admin"},
	}
	for _, grouping := range groupings {
		if _, err := enforcer.AddGroupingPolicy(grouping); err != nil {
			return err
		}
	}
	return nil
}
