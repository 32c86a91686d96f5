package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
)

// ipLimiter keeps one token bucket per client address. A bucket holds
// Requests tokens and refills completely over Window.
type ipLimiter struct {
	rule  config.RateRule
	limit rate.Limit

	mu      sync.Mutex
	clients map[string]*client
	swept   time.Time
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rule config.RateRule) *ipLimiter {
	return &ipLimiter{
		rule:    rule,
		limit:   rate.Every(rule.Window / time.Duration(rule.Requests)),
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// allow takes a token for addr. When none is left it reports how long until
// the next one.
func (l *ipLimiter) allow(addr string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.clients[addr]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.rule.Requests)}
		l.clients[addr] = c
	}
	c.lastSeen = now

	r := c.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep forgets clients idle for longer than a window, whose buckets are
// full again anyway.
func (l *ipLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.rule.Window {
		return
	}
	for addr, c := range l.clients {
		if now.Sub(c.lastSeen) > l.rule.Window {
			delete(l.clients, addr)
		}
	}
	l.swept = now
}

// rateLimits holds the limiters of each route class. A nil limiter lets
// everything through.
type rateLimits struct {
	api    *ipLimiter
	auth   *ipLimiter
	create *ipLimiter
}

func newRateLimits(cfg config.RateLimitConfig) *rateLimits {
	if !cfg.Enabled {
		return &rateLimits{}
	}
	build := func(rule config.RateRule) *ipLimiter {
		if rule.Requests <= 0 || rule.Window <= 0 {
			return nil
		}
		return newIPLimiter(rule)
	}
	return &rateLimits{
		api:    build(cfg.API),
		auth:   build(cfg.Auth),
		create: build(cfg.Create),
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimit rejects requests beyond l's budget with 429. RealIP runs first,
// so RemoteAddr is the client address.
func (s *RESTServer) rateLimit(l *ipLimiter, msg string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.allow(clientAddr(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				s.respondError(w, r, &apperr.Error{Code: apperr.ETooManyRequests, Msg: msg})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
