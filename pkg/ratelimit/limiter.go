package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	return limiter.Allow()
}

// Default rate limiter names
const (
	LimiterGraph     = "graph"
	LimiterGemini    = "gemini"
	LimiterAnthropic = "anthropic"
	LimiterRSS       = "rss"
	LimiterMedia     = "media"
)

// Limits configures the per-service budgets of NewLimiter
type Limits struct {
	GraphRequestsPerHour       int
	GeminiRequestsPerMinute    int
	AnthropicRequestsPerMinute int
}

// NewLimiter creates a limiter from configured budgets, falling back to the defaults
// for any zero value
func NewLimiter(l Limits) *MultiLimiter {
	if l.GraphRequestsPerHour <= 0 {
		l.GraphRequestsPerHour = 200
	}
	if l.GeminiRequestsPerMinute <= 0 {
		l.GeminiRequestsPerMinute = 15
	}
	if l.AnthropicRequestsPerMinute <= 0 {
		l.AnthropicRequestsPerMinute = 10
	}

	m := NewMultiLimiter()

	// Graph API: app-level budget is 200 calls per user per hour
	m.AddLimiter(LimiterGraph, float64(l.GraphRequestsPerHour)/3600, 10)

	m.AddLimiter(LimiterGemini, float64(l.GeminiRequestsPerMinute)/60, 3)
	m.AddLimiter(LimiterAnthropic, float64(l.AnthropicRequestsPerMinute)/60, 2)

	// RSS and photo downloads: no strict limit, but be polite
	m.AddLimiter(LimiterRSS, 1, 10)
	m.AddLimiter(LimiterMedia, 2, 10)

	return m
}

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	return NewLimiter(Limits{})
}

// NewUnlimited creates a limiter where every known service is unrestricted
func NewUnlimited() *MultiLimiter {
	m := NewMultiLimiter()
	for _, name := range []string{LimiterGraph, LimiterGemini, LimiterAnthropic, LimiterRSS, LimiterMedia} {
		m.AddLimiter(name, float64(rate.Inf), 1)
	}
	return m
}
