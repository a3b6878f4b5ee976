package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewLimiter builds an in-process limiter for rate.
func NewLimiter(rate limiter.Rate) *limiter.Limiter {
	return limiter.New(memory.NewStore(), rate)
}

// rateLimit limits requests per client IP. chi's RealIP runs first, so
// RemoteAddr already reflects X-Forwarded-For.
func rateLimit(lim *limiter.Limiter, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			ip := lim.GetIPKey(r)
			lc, err := lim.Get(r.Context(), ip)
			if err != nil {
				l.Error("rate limit check failed", "ip", ip, "err", err)
				writeErr(w, http.StatusInternalServerError, "rate limit check failed", "internal")
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
			if lc.Reached {
				l.Warn("rate limit exceeded", "ip", ip, "limit", lc.Limit)
				writeErr(w, http.StatusTooManyRequests, "too many requests", "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
