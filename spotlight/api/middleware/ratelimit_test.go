package middleware

import (
	"testing"
	"time"
)

func TestForwardedClient(t *testing.T) {
	cases := []struct {
		name string
		xff  string
		want string
	}{
		{"empty", "", ""},
		{"single hop", "203.0.113.7", "203.0.113.7"},
		{"multi hop keeps first", "203.0.113.7, 10.0.0.1, 10.0.0.2", "203.0.113.7"},
		{"padded", "  203.0.113.7 ,10.0.0.1", "203.0.113.7"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := forwardedClient(tc.xff); got != tc.want {
				t.Fatalf("forwardedClient(%q) = %q, want %q", tc.xff, got, tc.want)
			}
		})
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	defer rl.Stop()

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request within the window should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("keys are limited independently")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatal("request should pass again once the window elapses")
	}
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	rl.Stop()
	rl.Stop()
}
