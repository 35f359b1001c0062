package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RateLimiter implements a sliding-window in-memory rate limiter keyed by
// client IP. Stop must be called on shutdown to release the background
// pruning goroutine.
type RateLimiter struct {
	requests map[string][]time.Time
	mutex    sync.Mutex
	window   time.Duration
	limit    int
	stop     chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		limit:    limit,
		stop:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a request should be allowed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	var valid []time.Time
	for _, req := range rl.requests[key] {
		if req.After(cutoff) {
			valid = append(valid, req)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// Stop terminates the background pruning goroutine. Safe to call more
// than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.prune()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) prune() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := time.Now().Add(-rl.window * 2) // Keep some buffer

	for key, requests := range rl.requests {
		var valid []time.Time
		for _, req := range requests {
			if req.After(cutoff) {
				valid = append(valid, req)
			}
		}

		if len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}
}

// Handler limits requests per client IP.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := clientIP(c)

		if !rl.Allow(ip) {
			slog.Warn("Rate limit exceeded",
				slog.String("type", "api"),
				slog.String("ip", ip),
				slog.String("path", c.Path()),
				slog.String("method", c.Method()),
				slog.Int("limit", rl.limit),
				slog.Duration("window", rl.window))

			return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error": fiber.Map{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Too many requests. Please try again later.",
				},
			})
		}

		return c.Next()
	}
}

func clientIP(c *fiber.Ctx) string {
	if ip := forwardedClient(c.Get("X-Forwarded-For")); ip != "" {
		return ip
	}
	return c.IP()
}

// forwardedClient extracts the first hop of an X-Forwarded-For value: the
// client address as seen by the outermost proxy. Later hops are appended
// by intermediaries and must not be used as a rate-limit key.
func forwardedClient(xff string) string {
	if i := strings.Index(xff, ","); i >= 0 {
		xff = xff[:i]
	}
	return strings.TrimSpace(xff)
}
