// Package middleware provides HTTP middleware functions.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kyiku/slide-textguard-back/internal/response"
)

// KeyFunc names the budget a request draws from.
type KeyFunc func(c echo.Context) string

// RouteKey gives every client its own budget per route and, on canvas
// routes, per canvas. A client polling one canvas cannot starve its
// calls to another or to the stateless solver.
func RouteKey(c echo.Context) string {
	key := c.Path() + "|" + c.RealIP()
	if id := c.Param("id"); id != "" {
		key += "|" + id
	}
	return key
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	count int
	reset time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per period.
// Expired windows are swept every period until stop is closed; a nil stop
// sweeps for the life of the process.
func NewRateLimiter(limit int, period time.Duration, stop <-chan struct{}) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
	go rl.sweep(stop)
	return rl
}

func (rl *RateLimiter) sweep(stop <-chan struct{}) {
	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, w := range rl.windows {
				if now.After(w.reset) {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Allow records a request against key. When the budget is spent it
// returns false and the time left until the window resets.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.After(w.reset) {
		rl.windows[key] = &window{count: 1, reset: now.Add(rl.period)}
		return true, 0
	}
	if w.count >= rl.limit {
		return false, w.reset.Sub(now)
	}
	w.count++
	return true, 0
}

// Len reports how many keys hold an open window.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// RateLimitMiddleware limits each RouteKey to limit requests per period.
func RateLimitMiddleware(limit int, period time.Duration) echo.MiddlewareFunc {
	return RateLimitWith(NewRateLimiter(limit, period, nil), RouteKey)
}

// RateLimitWith applies limiter using key to pick the budget.
func RateLimitWith(limiter *RateLimiter, key KeyFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, wait := limiter.Allow(key(c))
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(max(1, secs)))
				return response.ErrorWithCode(c, http.StatusTooManyRequests, response.CodeRateLimited,
					"リクエストが多すぎます。しばらく待ってから再試行してください。")
			}
			return next(c)
		}
	}
}
