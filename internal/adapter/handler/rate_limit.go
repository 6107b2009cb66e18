package handler

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per user.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(perMinute, burst int) *RateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *RateLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware must run after authentication.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		if !l.Allow(userID) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded", Code: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
