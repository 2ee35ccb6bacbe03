package httpapi

import (
	"net/http"
	"sync"

	"field-agent/internal/auth"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per caller. Callers are keyed by
// worker ID when authenticated and by client IP otherwise.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*rate.Limiter
	every  rate.Limit
	burst  int
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limits: make(map[string]*rate.Limiter),
		every:  rate.Limit(perSecond),
		burst:  burst,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limits[key]; ok {
		return l
	}
	l := rate.NewLimiter(rl.every, rl.burst)
	rl.limits[key] = l
	return l
}

// Allow reports whether key may make one more request now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Middleware answers 429 once a caller exceeds its budget.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := auth.WorkerID(c.Request.Context())
		if err != nil {
			key = "ip:" + c.ClientIP()
		}
		if !rl.Allow(key) {
			fail(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
