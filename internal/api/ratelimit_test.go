package api

import (
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	if !rl.Allow("s1") || !rl.Allow("s1") {
		t.Fatalf("requests within limit should be allowed")
	}
	if rl.Allow("s1") {
		t.Errorf("request over limit should be denied")
	}
	if !rl.Allow("s2") {
		t.Errorf("limit must be tracked per key")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 30*time.Millisecond)
	defer rl.Stop()

	if !rl.Allow("s1") {
		t.Fatalf("first request should be allowed")
	}
	if rl.Allow("s1") {
		t.Fatalf("second request inside window should be denied")
	}
	time.Sleep(50 * time.Millisecond)
	if !rl.Allow("s1") {
		t.Errorf("request after window expiry should be allowed")
	}
}

func TestRateLimiterStop(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, time.Minute)
	rl.Stop()
	rl.Stop()

	// The limiter keeps working after Stop; only eviction halts.
	if !rl.Allow("s1") {
		t.Errorf("Allow should still work after Stop")
	}
}

func TestRateLimiterEviction(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(5, 20*time.Millisecond)
	defer rl.Stop()

	rl.Allow("s1")
	time.Sleep(30 * time.Millisecond)
	rl.evictExpired()

	rl.mu.Lock()
	_, present := rl.requests["s1"]
	rl.mu.Unlock()
	if present {
		t.Errorf("expired key should have been evicted")
	}
}
