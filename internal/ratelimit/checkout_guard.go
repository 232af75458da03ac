package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/servicepoint/internal/config"
)

const (
	keyCheckoutLock        = "checkout:lock:%s"
	defaultCheckoutLockTTL = 30 * time.Second
)

// CheckoutGuard serialises checkout session creation per booking.
type CheckoutGuard struct {
	locker *Locker
	ttl    time.Duration
}

func NewCheckoutGuard(cfg config.Config, client redis.UniversalClient) *CheckoutGuard {
	ttl := cfg.RateLimit.CheckoutLockTTL
	if ttl <= 0 {
		ttl = defaultCheckoutLockTTL
	}
	return &CheckoutGuard{locker: NewLocker(client), ttl: ttl}
}

func (g *CheckoutGuard) Enabled() bool {
	return g != nil && g.locker != nil
}

// Acquire takes the booking's checkout lock. When the guard is disabled it
// always succeeds. The returned release func is safe to call once acquired.
func (g *CheckoutGuard) Acquire(ctx context.Context, bookingID string) (func(context.Context), bool, error) {
	if !g.Enabled() {
		return func(context.Context) {}, true, nil
	}
	key := fmt.Sprintf(keyCheckoutLock, strings.TrimSpace(bookingID))
	token, ok, err := g.locker.TryLock(ctx, key, g.ttl)
	if err != nil || !ok {
		return func(context.Context) {}, false, err
	}
	return func(ctx context.Context) {
		_ = g.locker.Release(ctx, key, token)
	}, true, nil
}
