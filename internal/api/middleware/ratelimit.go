package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/adsconnect/adsconnect/internal/api/response"
	"github.com/adsconnect/adsconnect/internal/cache"
	"go.uber.org/zap"
)

const (
	defaultRequestsPerMinute = 60
	rateLimitWindow          = time.Minute
)

// RateLimit caps API-key traffic per key prefix in fixed one-minute windows.
// Session and service-token requests are not counted.
type RateLimit struct {
	counter cache.Cache
	limit   int
	window  time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewRateLimit(c cache.Cache, requestsPerMin int, logger *zap.Logger) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimit{
		counter: c,
		limit:   requestsPerMin,
		window:  rateLimitWindow,
		logger:  logger.Named("ratelimit"),
		now:     time.Now,
	}
}

// Limit rejects a key's requests with 429 once its window is used up. When
// Redis is unavailable the request goes through uncounted.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		used, left, err := rl.counter.IncrWindow(r.Context(), cache.RateLimitKey(prefix), rl.window)
		if err != nil {
			rl.logger.Warn("rate limit counter unavailable", zap.String("key_prefix", prefix), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if left <= 0 {
			left = rl.window
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(rl.limit)-used, 0), 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(left).Unix(), 10))

		if used > int64(rl.limit) {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(left.Seconds()))))
			response.Error(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}
