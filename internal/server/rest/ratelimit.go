package rest

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/orgdesk/internal/common"
	"github.com/dmitrijs2005/orgdesk/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultRateLimitPerMinute = 30
	retryAfterSeconds         = 60
)

// orgRateLimiter holds one token bucket per organization.
type orgRateLimiter struct {
	perMinute int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newOrgRateLimiter(perMinute int) *orgRateLimiter {
	if perMinute <= 0 {
		perMinute = defaultRateLimitPerMinute
	}
	return &orgRateLimiter{
		perMinute: perMinute,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (l *orgRateLimiter) getLimiter(org string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[org]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute)
	l.limiters[org] = lim
	return lim
}

// Middleware rejects requests over the organization's budget with 429. It
// must run behind the auth gate.
func (l *orgRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org := TenantFromRequest(r)
		if org == "" {
			org = common.AnonymousTenant
		}

		lim := l.getLimiter(org)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMinute))
		if !lim.Allow() {
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
			respondJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":      "Too many requests",
				"message":    "Rate limit exceeded. Please try again later.",
				"retryAfter": retryAfterSeconds,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
