package authorization

import (
	"context"
	"errors"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
)

// Actor is the caller identity forwarded by the authenticating gateway.
type Actor struct {
	ID   string
	Role string
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}
