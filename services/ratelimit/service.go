// Package ratelimit admits or refuses requests per client key using an
// in-process token bucket per key.
package ratelimit

import (
	"math"
	"net"
	"sync"
	"time"

	"github.com/mozaika228/hephaestus/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed           bool
	RequestsRemaining int
	RetryAfter        time.Duration
}

// RetryAfterMs is RetryAfter rounded up to whole milliseconds
func (r RateLimitResult) RetryAfterMs() int64 {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(r.RetryAfter) / float64(time.Millisecond)))
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitService keeps one token bucket per key. A bucket holds Max
// tokens and refills at Max per Window. Buckets idle for a full window are
// dropped lazily; a fresh bucket is full, so this never changes a decision.
//
// Refill is continuous, not a fixed window reset. RetryAfter (and the
// retryAfterMs field of a 429 body) is the wait until the next single token,
// about Window/Max, not the time until the whole window resets. After that
// wait one request is admitted, not Max.
type RateLimitService struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	logger    *zap.Logger
	now       func() time.Time
}

// NewRateLimitService creates a RateLimitService from configuration
func NewRateLimitService(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimitService {
	window := cfg.Window()
	if window <= 0 {
		window = time.Minute
	}
	burst := cfg.Max
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimitService{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(burst) / window.Seconds()),
		burst:   burst,
		window:  window,
		logger:  logger,
		now:     time.Now,
	}
}

// Key builds the limiter key for a client address and request path
func Key(remoteAddr, path string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return host + ":" + path
}

// CheckLimit consumes one token for key. A refused request is told how long
// until a token is available and consumes nothing.
func (s *RateLimitService) CheckLimit(key string) RateLimitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	b, exists := s.buckets[key]
	if !exists || now.Sub(b.lastSeen) >= s.window {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return RateLimitResult{Allowed: false, RetryAfter: s.window}
	}

	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		s.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Duration("retry_after", delay),
		)
		return RateLimitResult{Allowed: false, RetryAfter: delay}
	}

	remaining := int(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{Allowed: true, RequestsRemaining: remaining}
}

// Limit returns the bucket size
func (s *RateLimitService) Limit() int {
	return s.burst
}

// Size returns the number of tracked keys
func (s *RateLimitService) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// sweepLocked drops idle buckets at most once per window. Must be called
// with lock held.
func (s *RateLimitService) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.window {
		return
	}
	s.lastSweep = now
	for key, b := range s.buckets {
		if now.Sub(b.lastSeen) >= s.window {
			delete(s.buckets, key)
		}
	}
}
