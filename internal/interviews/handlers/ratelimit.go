package handlers

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateLimiter hands out one token bucket per client IP. Buckets are
// dropped every cleanupInterval so the map does not grow without bound.
type IPRateLimiter struct {
	limit   rate.Limit
	burst   int
	now     func() time.Time
	proxies []netip.Prefix

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

const cleanupInterval = time.Hour

// RateLimiterOption configures an IPRateLimiter.
type RateLimiterOption func(*IPRateLimiter)

// WithTrustedProxies makes the limiter honor X-Forwarded-For and X-Real-IP
// on requests whose peer address falls inside one of the prefixes.
func WithTrustedProxies(prefixes ...netip.Prefix) RateLimiterOption {
	return func(l *IPRateLimiter) {
		l.proxies = append(l.proxies, prefixes...)
	}
}

func NewIPRateLimiter(rps float64, burst int, opts ...RateLimiterOption) *IPRateLimiter {
	l := &IPRateLimiter{
		limit:       rate.Limit(rps),
		burst:       burst,
		now:         time.Now,
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes a token for ip.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > cleanupInterval {
		l.limiters = make(map[string]*rate.Limiter)
		l.lastCleanup = now
	}

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter.AllowN(now, 1)
}

// ClientIP returns the address a request is throttled under. Forwarding
// headers are only read when the peer is a trusted proxy; X-Forwarded-For is
// walked from the right and the first untrusted hop wins.
func (l *IPRateLimiter) ClientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !l.trusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !l.trusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func (l *IPRateLimiter) trusted(ip string) bool {
	if len(l.proxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
