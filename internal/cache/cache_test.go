package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ppiankov/riskwatch/internal/logger"
)

func TestAssessmentKey(t *testing.T) {
	tests := []struct {
		desc string
		a, b []string
		same bool
	}{
		{"identical parts", []string{"v1", "fp", "text"}, []string{"v1", "fp", "text"}, true},
		{"different version", []string{"v1", "fp", "text"}, []string{"v2", "fp", "text"}, false},
		{"shifted boundary", []string{"ab", "c"}, []string{"a", "bc"}, false},
		{"empty part matters", []string{"a", ""}, []string{"a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := AssessmentKey(tt.a...) == AssessmentKey(tt.b...); got != tt.same {
				t.Errorf("keys equal = %v, want %v", got, tt.same)
			}
		})
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if v, ok := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Errorf("Get() = %q, %v", v, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	if err := c.Set(ctx, "short", []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(ctx, "short"); ok {
		t.Error("expected expired entry to miss")
	}

	_ = c.Delete(ctx, "k")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected miss after Delete")
	}
	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Clear(ctx)
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected miss after Clear")
	}
}

func TestLayeredCache_PromotesRemoteHits(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryCache(time.Minute, time.Minute)
	remote := NewMemoryCache(time.Minute, time.Minute)
	c := NewLayeredCache(local, remote)

	_ = remote.Set(ctx, "k", []byte("v"), 0)
	if v, ok := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("Get() = %q, %v", v, ok)
	}
	if _, ok := local.Get(ctx, "k"); !ok {
		t.Error("expected remote hit to be promoted to local")
	}

	_ = c.Set(ctx, "both", []byte("x"), 0)
	if _, ok := remote.Get(ctx, "both"); !ok {
		t.Error("expected Set to reach the remote cache")
	}
	_ = c.Delete(ctx, "both")
	if _, ok := local.Get(ctx, "both"); ok {
		t.Error("expected Delete to clear the local cache")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		desc    string
		backend string
		wantErr bool
	}{
		{"default is memory", "", false},
		{"memory", BackendMemory, false},
		{"redis without client", BackendRedis, true},
		{"layered without client", BackendLayered, true},
		{"unknown", "disk", true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := New(tt.backend, time.Minute, nil, "rw:", logger.Nop())
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
		})
	}
}
