package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/studynotes/internal/clock"
)

// clientKeyGenerator generates client keys
func clientKeyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`)
}

func configGenerator() *rapid.Generator[Config] {
	return rapid.Custom(func(t *rapid.T) Config {
		return Config{
			RPS:             rapid.Float64Range(0.01, 10.0).Draw(t, "rps"),
			Burst:           rapid.IntRange(1, 50).Draw(t, "burst"),
			CleanupInterval: time.Hour,
		}
	})
}

func newFakeLimiter(config Config) (*RateLimiter, *clock.Fake) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return newRateLimiter(config, fake), fake
}

// =============================================================================
// Property: exactly Burst requests pass when no time elapses
// =============================================================================

func testRateLimiter_BurstExact(t *rapid.T) {
	config := configGenerator().Draw(t, "config")
	rl, _ := newFakeLimiter(config)
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	for i := 0; i < config.Burst; i++ {
		if !rl.Allow(key) {
			t.Fatalf("request %d of burst %d should have been allowed", i+1, config.Burst)
		}
	}
	if rl.Allow(key) {
		t.Fatalf("request beyond burst %d should have been blocked", config.Burst)
	}
}

func TestRateLimiter_BurstExact(t *testing.T) {
	rapid.Check(t, testRateLimiter_BurstExact)
}

func FuzzRateLimiter_BurstExact(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_BurstExact))
}

// =============================================================================
// Property: Different clients have independent limits
// =============================================================================

func testRateLimiter_ClientIndependence(t *rapid.T) {
	config := configGenerator().Draw(t, "config")
	rl, _ := newFakeLimiter(config)
	defer rl.Stop()

	a := clientKeyGenerator().Draw(t, "a")
	b := clientKeyGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	for i := 0; i < config.Burst; i++ {
		rl.Allow(a)
	}
	if rl.Allow(a) {
		t.Fatalf("client a should be exhausted")
	}
	if !rl.Allow(b) {
		t.Fatalf("client b should be unaffected by client a")
	}
}

func TestRateLimiter_ClientIndependence(t *testing.T) {
	rapid.Check(t, testRateLimiter_ClientIndependence)
}

func FuzzRateLimiter_ClientIndependence(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_ClientIndependence))
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl, fake := newFakeLimiter(Config{RPS: 0.5, Burst: 2})
	defer rl.Stop()

	require.True(t, rl.Allow("c"))
	require.True(t, rl.Allow("c"))
	require.False(t, rl.Allow("c"))

	fake.Advance(time.Second)
	require.False(t, rl.Allow("c"))
	fake.Advance(time.Second)
	require.True(t, rl.Allow("c"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, fake := newFakeLimiter(Config{RPS: 1, Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	rl.Allow("idle")
	fake.Advance(45 * time.Second)
	rl.Allow("active")
	require.Equal(t, 2, rl.Len())

	fake.Advance(30 * time.Second)
	rl.Cleanup()
	require.Equal(t, 1, rl.Len(), "only the idle limiter is removed")

	fake.Advance(time.Hour)
	rl.Cleanup()
	require.Zero(t, rl.Len())
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl, _ := newFakeLimiter(Config{RPS: 0.001, Burst: 25})
	defer rl.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 25, allowed)
	require.Equal(t, 1, rl.Len())
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 1, Burst: 1, CleanupInterval: 10 * time.Millisecond})
	rl.Allow("x")

	done := make(chan struct{})
	go func() {
		rl.Stop()
		rl.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return within timeout")
	}
}

func TestDefaultConfig(t *testing.T) {
	require.Greater(t, DefaultConfig.RPS, 0.0)
	require.Greater(t, DefaultConfig.Burst, 0)
	require.Greater(t, DefaultConfig.CleanupInterval, time.Duration(0))
}

// =============================================================================
// Middleware
// =============================================================================

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	require.Equal(t, "10.0.0.7", ClientIP(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	require.Equal(t, "10.0.0.7", ClientIP(r), "forwarded header is ignored without a trusted proxy")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "pipe"
	require.Equal(t, "pipe", ClientIP(r))
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies(" 10.0.0.0/8, 172.16.0.1 ,, ::1")
	require.NoError(t, err)
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.1/32"),
		netip.MustParsePrefix("::1/128"),
	}, prefixes)

	prefixes, err = ParseTrustedProxies("")
	require.NoError(t, err)
	require.Empty(t, prefixes)

	for _, bad := range []string{"10.0.0.0/99", "proxy.internal", "10.0.0"} {
		_, err := ParseTrustedProxies(bad)
		require.Error(t, err, bad)
	}
}

func TestProxiedClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies("10.0.0.0/8")
	require.NoError(t, err)
	key := ProxiedClientIP(trusted)

	req := func(remote string, fwd ...string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		for _, v := range fwd {
			r.Header.Add("X-Forwarded-For", v)
		}
		return r
	}

	tests := []struct {
		name string
		r    *http.Request
		want string
	}{
		{"untrusted peer ignores header", req("198.51.100.4:1", "203.0.113.9"), "198.51.100.4"},
		{"trusted peer uses appended hop", req("10.0.0.2:1", "203.0.113.9"), "203.0.113.9"},
		{"spoofed left hops ignored", req("10.0.0.2:1", "1.1.1.1, 203.0.113.9"), "203.0.113.9"},
		{"proxy chain skipped", req("10.0.0.2:1", "203.0.113.9, 10.0.0.3"), "203.0.113.9"},
		{"repeated headers joined", req("10.0.0.2:1", "1.1.1.1", "203.0.113.9"), "203.0.113.9"},
		{"malformed hop falls back", req("10.0.0.2:1", "not-an-ip"), "10.0.0.2"},
		{"no header falls back", req("10.0.0.2:1"), "10.0.0.2"},
		{"all hops trusted", req("10.0.0.2:1", "10.0.0.5"), "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, key(tt.r))
		})
	}
}

func TestMiddleware_RotatingForwardedForStillLimited(t *testing.T) {
	rl, _ := newFakeLimiter(Config{RPS: 0.001, Burst: 1})
	defer rl.Stop()

	trusted, err := ParseTrustedProxies("10.0.0.0/8")
	require.NoError(t, err)

	clients := []struct {
		name   string
		remote string
		key    func(*http.Request) string
	}{
		{"direct", "198.51.100.1:1234", ClientIP},
		// Not a trusted proxy, so its forwarded header is client-supplied.
		{"proxied", "198.51.100.2:1234", ProxiedClientIP(trusted)},
	}
	for _, c := range clients {
		t.Run(c.name, func(t *testing.T) {
			h := Middleware(rl, c.key)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			codes := make([]int, 0, 3)
			for _, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
				r := httptest.NewRequest(http.MethodPost, "/ai/terms", nil)
				r.RemoteAddr = c.remote
				r.Header.Set("X-Forwarded-For", spoofed)
				w := httptest.NewRecorder()
				h.ServeHTTP(w, r)
				codes = append(codes, w.Code)
			}
			require.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
		})
	}
	require.Equal(t, 2, rl.Len())
}

func TestMiddleware(t *testing.T) {
	rl, _ := newFakeLimiter(Config{RPS: 0.001, Burst: 2})
	defer rl.Stop()

	calls := 0
	h := Middleware(rl, ClientIP)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/ai/terms", nil)
		r.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	w := do("10.0.0.1")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, http.StatusNoContent, do("10.0.0.1").Code)

	w = do("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.JSONEq(t, `{"error": "too many requests", "code": "resource_exhausted"}`, w.Body.String())

	require.Equal(t, http.StatusNoContent, do("10.0.0.2").Code)
	require.Equal(t, 3, calls)
}

func TestMiddleware_EmptyKeyPassesThrough(t *testing.T) {
	rl, _ := newFakeLimiter(Config{RPS: 0.001, Burst: 1})
	defer rl.Stop()

	h := Middleware(rl, func(*http.Request) string { return "" })(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for range 5 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Zero(t, rl.Len())
}
