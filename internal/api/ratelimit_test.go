package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
)

func TestIPLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(config.RateRule{Requests: 3, Window: time.Minute})
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, _ := l.allow("10.0.0.1")
		assert.True(t, ok, "request %d", i)
	}

	ok, wait := l.allow("10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, float64(20*time.Second), float64(wait), float64(time.Millisecond))

	// a rejected request does not use up a token
	now = now.Add(20 * time.Second)
	ok, _ = l.allow("10.0.0.1")
	assert.True(t, ok)

	ok, _ = l.allow("10.0.0.2")
	assert.True(t, ok, "clients are limited separately")
}

func TestIPLimiterSweepsIdleClients(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(config.RateRule{Requests: 1, Window: time.Minute})
	l.now = func() time.Time { return now }

	l.allow("10.0.0.1")
	l.allow("10.0.0.2")
	assert.Len(t, l.clients, 2)

	now = now.Add(2 * time.Minute)
	l.allow("10.0.0.3")
	assert.Len(t, l.clients, 1)
}

func TestRateLimitsDisabled(t *testing.T) {
	limits := newRateLimits(config.RateLimitConfig{
		Enabled: false,
		API:     config.RateRule{Requests: 1, Window: time.Second},
	})
	assert.Nil(t, limits.api)
	assert.Nil(t, limits.auth)
	assert.Nil(t, limits.create)
}
