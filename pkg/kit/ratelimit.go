package kit

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// IPRateLimiter is a token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	visitors map[string]*visitor
	swept    time.Time
	now      func() time.Time

	// X-Forwarded-For is honoured only for peers inside these prefixes.
	trusted []netip.Prefix
}

func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(l.clientIP(r)) {
			WriteError(w, r, http.StatusTooManyRequests, "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TrustProxies makes the limiter key requests arriving through the listed
// proxies by the nearest untrusted X-Forwarded-For hop. Entries are CIDRs or
// bare addresses. Without trusted proxies the header is ignored.
func (l *IPRateLimiter) TrustProxies(cidrs []string) error {
	prefixes, err := ParseTrustedProxies(cidrs)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.trusted = prefixes
	l.mu.Unlock()
	return nil
}

func ParseTrustedProxies(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", raw)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

func (l *IPRateLimiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictIdle(now)

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.seen = now
	return v.lim.AllowN(now, 1)
}

func (l *IPRateLimiter) evictIdle(now time.Time) {
	if now.Sub(l.swept) < time.Minute {
		return
	}
	l.swept = now

	cutoff := now.Add(-limiterIdleTTL)
	for ip, v := range l.visitors {
		if v.seen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

func (l *IPRateLimiter) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		peer = host
	}

	l.mu.Lock()
	trusted := l.trusted
	l.mu.Unlock()

	if !isTrusted(trusted, peer) {
		return peer
	}

	// Hops are appended left to right; the first untrusted one from the right
	// is the client as seen by our own proxies.
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(trusted, hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

func isTrusted(trusted []netip.Prefix, ip string) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
