package api

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	discountFailureLimit  = 10
	discountFailureWindow = 15 * time.Minute
)

// failureLimiter blocks a client after too many failed discount lookups inside a sliding
// window. A successful lookup clears the client's history.
type failureLimiter struct {
	limit  int
	window time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time
}

func newFailureLimiter(limit int, window time.Duration) *failureLimiter {
	return &failureLimiter{
		limit:    limit,
		window:   window,
		failures: make(map[string][]time.Time),
	}
}

func (limiter *failureLimiter) blocked(client string, now time.Time) bool {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	return len(limiter.activeLocked(client, now)) >= limiter.limit
}

func (limiter *failureLimiter) recordFailure(client string, now time.Time) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	limiter.failures[client] = append(limiter.activeLocked(client, now), now)
}

func (limiter *failureLimiter) clear(client string) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	delete(limiter.failures, client)
}

// activeLocked drops failures that fell out of the window and forgets idle clients.
func (limiter *failureLimiter) activeLocked(client string, now time.Time) []time.Time {
	cutoff := now.Add(-limiter.window)
	active := limiter.failures[client][:0:0]
	for _, failedAt := range limiter.failures[client] {
		if failedAt.After(cutoff) {
			active = append(active, failedAt)
		}
	}

	if len(active) == 0 {
		delete(limiter.failures, client)
		return nil
	}
	limiter.failures[client] = active
	return active
}

func requestLimiterKey(c *fiber.Ctx, scope string) string {
	return scope + ":" + clientIP(c)
}
