package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/servicepoint/internal/observability/logger"
	"go.uber.org/zap"
)

const rateLimitReasonStatusPoll = "status-poll"

// StatusPollRateLimit throttles status polling per caller. A redis failure
// lets the request through.
func (s *Server) StatusPollRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.pollLimiter == nil || !s.pollLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		result, err := s.pollLimiter.Allow(ctx, rateLimitClientKey(c))
		if err != nil {
			logger.FromContext(ctx).Warn("status poll rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("status poll rate limit exceeded",
				zap.String("reason", rateLimitReasonStatusPoll),
				zap.String("endpoint", endpoint),
			)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonStatusPoll)
			}
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonStatusPoll)
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func rateLimitClientKey(c *gin.Context) string {
	if actorID := strings.TrimSpace(c.GetHeader(HeaderActorID)); actorID != "" {
		return "actor:" + actorID
	}
	return "ip:" + c.ClientIP()
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
