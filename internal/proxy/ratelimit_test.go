package proxy

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryRateLimiterFixedWindow(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	for i := 1; i <= 30; i++ {
		d := rl.Allow("pdf:203.0.113.9", 30, time.Minute)
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if d.Count != i {
			t.Fatalf("request %d: count = %d", i, d.Count)
		}
	}
	if d := rl.Allow("pdf:203.0.113.9", 30, time.Minute); d.Allowed {
		t.Fatalf("request 31 should be rejected")
	}
}

func TestMemoryRateLimiterWindowReset(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	if d := rl.Allow("k", 1, 50*time.Millisecond); !d.Allowed {
		t.Fatalf("first request should be allowed")
	}
	if d := rl.Allow("k", 1, 50*time.Millisecond); d.Allowed {
		t.Fatalf("second request inside the window should be rejected")
	}
	time.Sleep(80 * time.Millisecond)
	d := rl.Allow("k", 1, 50*time.Millisecond)
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("window should reset after expiry, got %+v", d)
	}
}

func TestMemoryRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	rl.Allow("pdf:10.0.0.1", 1, time.Minute)
	if d := rl.Allow("pdf:10.0.0.2", 1, time.Minute); !d.Allowed {
		t.Fatalf("distinct clients must not share a window")
	}
}

func TestMemoryRateLimiterZeroLimitDisables(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	for i := 0; i < 100; i++ {
		if d := rl.Allow("k", 0, time.Minute); !d.Allowed {
			t.Fatalf("zero limit should disable limiting")
		}
	}
}

func TestMemoryRateLimiterCleanup(t *testing.T) {
	rl := NewMemoryRateLimiter().(*memoryRateLimiter)
	defer rl.Close()

	for i := 0; i < 10; i++ {
		rl.Allow(fmt.Sprintf("k%d", i), 5, 10*time.Millisecond)
	}
	rl.cleanup(time.Now().Add(time.Second))

	rl.mu.Lock()
	remaining := len(rl.entries)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected expired entries swept, %d remain", remaining)
	}
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)

	rl, err := NewRedisRateLimiter(mr.Addr(), "", 0, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rl.Close()

	if d := rl.Allow("pdf:203.0.113.9", 2, time.Minute); !d.Allowed || d.Count != 1 {
		t.Fatalf("first request: %+v", d)
	}
	if d := rl.Allow("pdf:203.0.113.9", 2, time.Minute); !d.Allowed || d.Count != 2 {
		t.Fatalf("second request: %+v", d)
	}
	if d := rl.Allow("pdf:203.0.113.9", 2, time.Minute); d.Allowed {
		t.Fatalf("third request should be rejected, got %+v", d)
	}
	if d := rl.Allow("pdf:198.51.100.7", 2, time.Minute); !d.Allowed {
		t.Fatalf("distinct clients must not share a window")
	}
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	rl, err := NewRedisRateLimiter(mr.Addr(), "", 0, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rl.Close()

	mr.Close()
	if d := rl.Allow("k", 1, time.Minute); !d.Allowed {
		t.Fatalf("limiter should fail open when the backend is unreachable")
	}
}

func TestClientIP(t *testing.T) {
	req := &http.Request{RemoteAddr: "203.0.113.9:54321", Header: http.Header{}}
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("ClientIP = %q", got)
	}
	req.RemoteAddr = "203.0.113.9"
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("ClientIP without port = %q", got)
	}
	req.RemoteAddr = ""
	if got := ClientIP(req); got != "unknown" {
		t.Fatalf("empty remote addr = %q", got)
	}

	// Behind the fronting proxy RemoteAddr is the proxy itself; the
	// forwarding headers name the real caller.
	req.RemoteAddr = "10.0.0.1:80"
	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := ClientIP(req); got != "198.51.100.7" {
		t.Fatalf("X-Real-IP ignored, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Fatalf("first X-Forwarded-For hop should win, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", " ")
	if got := ClientIP(req); got != "198.51.100.7" {
		t.Fatalf("blank X-Forwarded-For should fall through, got %q", got)
	}
}
