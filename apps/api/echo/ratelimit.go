package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// ipRateLimiter keeps a token bucket per client IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*ipLimiter
	nowFunc  func() time.Time // mockable
}

type ipLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// idle buckets are dropped after limiterTTL
const limiterTTL = 10 * time.Minute

// newRateLimiter allows perMinute requests per client IP, in bursts of up to perMinute.
func newRateLimiter(perMinute int) *ipRateLimiter {
	return &ipRateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*ipLimiter),
		nowFunc:  time.Now,
	}
}

func (rl *ipRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	for k, l := range rl.limiters {
		if now.Sub(l.lastSeen) > limiterTTL {
			delete(rl.limiters, k)
		}
	}

	l, ok := rl.limiters[ip]
	if !ok {
		l = &ipLimiter{Limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = l
	}
	l.lastSeen = now
	return l.AllowN(now, 1)
}

func (rl *ipRateLimiter) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !rl.allow(ctx.RealIP()) {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// rateLimitMiddleware returns a no-op middleware when perMinute is not positive.
func rateLimitMiddleware(perMinute int) echo.MiddlewareFunc {
	if perMinute <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return newRateLimiter(perMinute).middleware()
}
