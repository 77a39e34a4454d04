package middleware

import (
	"net/http"
	"strconv"

	"github.com/mozaika228/hephaestus/services/ratelimit"
	"github.com/mozaika228/hephaestus/utils"
	"go.uber.org/zap"
)

// Limiter decides whether the request identified by key may proceed
type Limiter interface {
	CheckLimit(key string) ratelimit.RateLimitResult
}

// RateLimitObserver is told about every refused request
type RateLimitObserver interface {
	RecordRateLimited(path string)
}

// RateLimit refuses requests over the per client and path budget with 429
// and a Retry-After header. observer may be nil.
func RateLimit(limiter Limiter, observer RateLimitObserver, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := limiter.CheckLimit(ratelimit.Key(r.RemoteAddr, r.URL.Path))
			if result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfterMs := result.RetryAfterMs()
			if observer != nil {
				observer.RecordRateLimited(r.URL.Path)
			}
			logger.Warn("rate limited",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Int64("retry_after_ms", retryAfterMs),
			)

			w.Header().Set("Retry-After", strconv.FormatInt((retryAfterMs+999)/1000, 10))
			_ = utils.WriteTooManyRequests(w, "", retryAfterMs)
		})
	}
}
