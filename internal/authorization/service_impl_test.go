package authorization

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role    string
		object  string
		action  string
		allowed bool
	}{
		{RoleCustomer, ObjectPayment, ActionPaymentCheckout, true},
		{RoleCustomer, ObjectBooking, ActionBookingCreate, true},
		{RoleCustomer, ObjectBooking, ActionBookingStart, false},
		{RoleCustomer, ObjectBooking, ActionBookingRefund, false},
		{RoleProvider, ObjectBooking, ActionBookingFinish, true},
		{RoleProvider, ObjectPayment, ActionPaymentCheckout, false},
		{RoleProvider, ObjectOffering, ActionOfferingCreate, true},
		{RoleAdmin, ObjectBooking, ActionBookingRefund, true},
		{RoleAdmin, ObjectPayment, ActionPaymentCheckout, true},
		{RoleAdmin, ObjectBooking, ActionBookingStart, true},
		{RoleSystem, ObjectBooking, ActionBookingRefund, true},
		{"guest", ObjectBooking, ActionBookingView, false},
	}
	for _, tc := range cases {
		err := svc.Authorize(ctx, Actor{ID: "1", Role: tc.role}, tc.object, tc.action)
		if tc.allowed {
			assert.NoError(t, err, "%s %s", tc.role, tc.action)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s %s", tc.role, tc.action)
		}
	}
}

func TestAuthorizeValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, Actor{}, ObjectBooking, ActionBookingView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Role: RoleCustomer}, "", ActionBookingView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Role: RoleCustomer}, ObjectBooking, " "), ErrInvalidAction)
}

func TestSeedIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = NewEnforcer(db)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 21)
}
