package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/servicepoint/internal/config"
)

const keyStatusPoll = "status:poll:%s"

// StatusPollLimiter throttles payment status polling per client key.
type StatusPollLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewStatusPollLimiter(cfg config.Config, client redis.UniversalClient) *StatusPollLimiter {
	if !cfg.RateLimit.Enabled || client == nil {
		return nil
	}
	if cfg.RateLimit.StatusPollRate <= 0 || cfg.RateLimit.StatusPollBurst <= 0 {
		return nil
	}
	return &StatusPollLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimit.StatusPollRate,
		burst:  cfg.RateLimit.StatusPollBurst,
	}
}

func (l *StatusPollLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *StatusPollLimiter) Allow(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyStatusPoll, strings.TrimSpace(clientKey)), l.rate, l.burst)
}
