package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle: через сколько простоя лимитер клиента забывается.
const limiterIdle = 10 * time.Minute

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	lastGC  time.Time
}

func newRateLimiter(perSec float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{clients: make(map[string]*client), limit: rate.Limit(perSec), burst: burst}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.lastGC) > limiterIdle {
		for k, c := range r.clients {
			if now.Sub(c.seen) > limiterIdle {
				delete(r.clients, k)
			}
		}
		r.lastGC = now
	}
	c, ok := r.clients[key]
	if !ok {
		c = &client{lim: rate.NewLimiter(r.limit, r.burst)}
		r.clients[key] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

// RateLimit ограничивает запросы к API агента по IP (token bucket: perSec в секунду, burst подряд).
// perSec <= 0 отключает ограничение. 429 при превышении.
func RateLimit(perSec float64, burst int) func(http.Handler) http.Handler {
	if perSec <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rl := newRateLimiter(perSec, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if x := r.Header.Get("X-Real-Ip"); x != "" {
				ip = x
			} else if x := r.Header.Get("X-Forwarded-For"); x != "" {
				ip = x
			}
			if !rl.allow(ip) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
