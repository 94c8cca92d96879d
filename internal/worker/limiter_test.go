package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	tests := []struct {
		desc      string
		rps       float64
		burst     int
		wantBurst int
	}{
		{"explicit burst", 10, 3, 3},
		{"negative burst defaults", 10, -1, 5},
		{"zero burst defaults", 10, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			l := NewLimiter(tt.rps, tt.burst)
			if l.defaultBurst != tt.wantBurst {
				t.Errorf("burst = %d, want %d", l.defaultBurst, tt.wantBurst)
			}
		})
	}
}

func TestLimiter_AllowPerKey(t *testing.T) {
	l := NewLimiter(0.001, 2)

	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") {
		t.Fatal("expected the burst to be allowed")
	}
	if l.Allow("10.0.0.1") {
		t.Error("expected the third request to be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("another key should have its own bucket")
	}
	if l.Len() != 2 {
		t.Errorf("tracked keys = %d, want 2", l.Len())
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow("k") {
			t.Fatalf("request %d limited with rate 0 (unlimited)", i)
		}
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := NewLimiter(0.001, 1)
	ctx := context.Background()

	if err := l.Wait(ctx, "batch"); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	// rate.Limiter fails fast when the deadline is before the next token
	if err := l.Wait(ctx, "batch"); err == nil {
		t.Error("expected second wait to fail before the token refills")
	}
}

func TestLimiter_RateLimitTiming(t *testing.T) {
	l := NewLimiter(20, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx, "k"); err != nil {
			t.Fatalf("wait %d failed: %v", i, err)
		}
	}
	// Burst 1 at 20 rps: the 2nd and 3rd tokens take ~50ms each
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected throttling, finished in %v", elapsed)
	}
}

func TestLimiter_SetKeyRate(t *testing.T) {
	l := NewLimiter(0.001, 1)
	l.SetKeyRate("trusted", 0, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("trusted") {
			t.Fatalf("request %d limited for trusted key", i)
		}
	}
	if !l.Allow("other") || l.Allow("other") {
		t.Error("expected the default rate for keys without an override")
	}
}

func TestLimiter_SetKeyRateSurvivesIdleExpiry(t *testing.T) {
	l := NewLimiter(0.001, 1)
	l.idleTTL = time.Millisecond
	l.SetKeyRate("trusted", 0, 1)

	l.Allow("trusted")
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 5; i++ {
		if !l.Allow("trusted") {
			t.Fatalf("request %d limited: override fell back to the default rate", i)
		}
	}
	if got := l.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}
