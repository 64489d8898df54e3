package ratelimit

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/obs"
)

// DefaultRetryAfterSeconds is the default value for the Retry-After header
// when a rate limit is exceeded.
const DefaultRetryAfterSeconds = 1

// ClientIP keys requests by the connection's remote address. Forwarded
// headers are ignored; use ProxiedClientIP behind a trusted proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ParseTrustedProxies parses a comma-separated list of proxy addresses or
// CIDR prefixes, e.g. "10.0.0.0/8, 172.16.0.1".
func ParseTrustedProxies(s string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if strings.Contains(field, "/") {
			p, err := netip.ParsePrefix(field)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", field, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(field)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", field, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// ProxiedClientIP returns a key func for servers behind the given proxies.
// X-Forwarded-For is read only when the connection comes from a trusted
// proxy. Hops are walked right to left, skipping trusted proxies; the first
// untrusted hop is the client. Earlier hops are client-supplied and never
// used.
func ProxiedClientIP(trusted []netip.Prefix) func(*http.Request) string {
	isTrusted := func(s string) bool {
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
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

	return func(r *http.Request) string {
		remote := ClientIP(r)
		if !isTrusted(remote) {
			return remote
		}
		hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if _, err := netip.ParseAddr(hop); err != nil {
				// A malformed hop was not written by our proxy.
				return remote
			}
			if !isTrusted(hop) {
				return hop
			}
		}
		return remote
	}
}

// Middleware enforces limiter per client key. Requests without a key pass
// through.
//
// The middleware returns 429 Too Many Requests when the rate limit is exceeded,
// including:
//   - Retry-After header with the recommended wait time in seconds
//   - X-RateLimit-Remaining header with the approximate remaining requests
func Middleware(limiter *RateLimiter, key func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			rateLimiter := limiter.GetLimiter(k)
			if !rateLimiter.AllowN(limiter.clock.Now(), 1) {
				obs.From(r.Context()).Warn("ratelimit.rejected", "client", k, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "too many requests",
					"code":  string(errs.ResourceExhausted),
				})
				return
			}

			remaining := max(int(rateLimiter.TokensAt(limiter.clock.Now())), 0)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}
