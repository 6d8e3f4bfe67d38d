package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/deepgram/chorus/internal/config"
	"github.com/deepgram/chorus/internal/metrics"
	"github.com/deepgram/chorus/pkg/httpext"
	"github.com/deepgram/chorus/pkg/logger"
	"github.com/deepgram/chorus/pkg/ratelimit"
)

func RateLimit(limitKey string) func(http.Handler) http.Handler {
	cfg := config.GetRateLimitConfig(limitKey)
	limiter := ratelimit.NewLimiter(cfg.Window, cfg.MaxHits)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			allowed := limiter.Allow(ip)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxHits))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(ip)))
			if !allowed {
				metrics.RateLimitHits.WithLabelValues(limitKey).Inc()
				logger.Warn(logger.MIDDLEWARE, "Rate limit exceeded for %s on %s", ip, limitKey)
				httpext.JsonError(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP uses X-Forwarded-For if behind proxy, otherwise the remote address
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
