package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
	redisstore "github.com/Prajanya-g/lvl.ai/internal/redis"
	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
)

// Limiter is the subset of redisstore.RateLimiter the middleware needs.
type Limiter interface {
	Allow(ctx context.Context, key string) (redisstore.Decision, error)
}

// RateLimit rejects callers over their request budget with 429. Signed-in
// callers are keyed by user id, everyone else by remote IP. A limiter failure
// lets the request through.
func RateLimit(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limitKey(r)
			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", slog.String("key", key), slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				telemetry.APIRateLimitedTotal.Inc()
				rejected := &domain.RateLimitExceededError{Key: key, Limit: d.Limit}
				logger.Info("rate limited", slog.String("error", rejected.Error()))

				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limitKey(r *http.Request) string {
	if id := IdentityFrom(r.Context()); id.User != nil {
		return "user:" + id.User.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
