package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/streamgate/internal/observability/logger"
	"go.uber.org/zap"
)

// StreamKeyRateLimit throttles stream key requests per client IP. Redis
// failures let the request through.
func (s *Server) StreamKeyRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.streamKeyLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		result, err := s.streamKeyLimiter.Allow(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("stream key rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			logger.FromContext(ctx).Warn("stream key rate limit exceeded", zap.String("endpoint", endpoint))
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint)

			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
