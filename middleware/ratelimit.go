package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"shortlink-service/fingerprint"
)

// RateLimitStore is the counter backend for rate limiting.
type RateLimitStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RateLimit limits each client IP to limit requests per window, backed by
// Redis counters. When the backend is unavailable requests are allowed
// through (fail open).
func RateLimit(redisDB RateLimitStore, limit int, window time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := fingerprint.ExtractClientIP(r.Header, r.RemoteAddr)
			key := fmt.Sprintf("ratelimit:%s:%s", ip, r.URL.Path)

			ctx := r.Context()
			count, err := redisDB.Incr(ctx, key)
			if err != nil {
				logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				if err := redisDB.Expire(ctx, key, window); err != nil {
					logger.Warn().Err(err).Msg("failed to set rate limit window")
				}
			}

			if count > int64(limit) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"error":"Rate limit exceeded"}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
