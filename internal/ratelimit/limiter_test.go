package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterAllowsUpToMax(t *testing.T) {
	l := New(Limit{MaxRequests: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := l.Allow("tenant-a:tools")
		if !allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
		if remaining != 2-i {
			t.Fatalf("request %d: remaining = %d, want %d", i, remaining, 2-i)
		}
	}

	allowed, _, retryAfter := l.Allow("tenant-a:tools")
	if allowed {
		t.Fatalf("4th request should be denied")
	}
	if retryAfter <= 0 {
		t.Fatalf("retryAfter should be positive, got %v", retryAfter)
	}
}

func TestLimiterIsolatesByKey(t *testing.T) {
	l := New(Limit{MaxRequests: 1, Window: time.Minute})

	if allowed, _, _ := l.Allow("tenant-a:tools"); !allowed {
		t.Fatalf("tenant-a:tools should be allowed")
	}
	if allowed, _, _ := l.Allow("tenant-a:tools"); allowed {
		t.Fatalf("tenant-a:tools second request should be denied")
	}
	if allowed, _, _ := l.Allow("tenant-a:health"); !allowed {
		t.Fatalf("different route family for same tenant should have its own budget")
	}
	if allowed, _, _ := l.Allow("tenant-b:tools"); !allowed {
		t.Fatalf("different tenant, same route family should have its own budget")
	}
}

func TestLimiterSlidesWindow(t *testing.T) {
	b := &bucket{}
	limit := Limit{MaxRequests: 1, Window: 10 * time.Millisecond}

	base := time.Now()
	allowed, _, _ := b.allow(base, limit)
	if !allowed {
		t.Fatalf("first request should be allowed")
	}

	allowed, _, _ = b.allow(base.Add(5*time.Millisecond), limit)
	if allowed {
		t.Fatalf("request within window should be denied")
	}

	allowed, _, _ = b.allow(base.Add(11*time.Millisecond), limit)
	if !allowed {
		t.Fatalf("request after window should be allowed")
	}
}

func TestKeyFormatsTenantAndRouteFamily(t *testing.T) {
	if got := Key("t1", "tools"); got != "t1:tools" {
		t.Fatalf("Key() = %q, want t1:tools", got)
	}
}
