package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitForDomainSpacing(t *testing.T) {
	l := New(50*time.Millisecond, 5*time.Second, time.Hour)
	defer l.Close()

	ctx := context.Background()

	start := time.Now()
	if err := l.WaitForDomain(ctx, "https://example.test/a"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	first := time.Since(start)
	if first > 10*time.Millisecond {
		t.Fatalf("first call should not block, took %v", first)
	}

	second := time.Now()
	if err := l.WaitForDomain(ctx, "https://example.test/b"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	elapsed := time.Since(second)
	if elapsed < 40*time.Millisecond {
		t.Fatalf("expected spacing >= minDelay, got %v", elapsed)
	}
}

func TestWaitForDomainIndependentPerDomain(t *testing.T) {
	l := New(100*time.Millisecond, 5*time.Second, time.Hour)
	defer l.Close()
	ctx := context.Background()

	if err := l.WaitForDomain(ctx, "https://a.test/1"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.WaitForDomain(ctx, "https://b.test/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Fatalf("different domain should not be throttled by a.test's timer")
	}
}

func TestHandleRetryAfterNumeric(t *testing.T) {
	l := New(time.Millisecond, 5*time.Second, time.Hour)
	defer l.Close()

	waited, err := l.HandleRetryAfter(context.Background(), "0")
	if err != nil {
		t.Fatal(err)
	}
	if waited != 0 {
		t.Fatalf("expected zero wait for Retry-After: 0, got %v", waited)
	}
}

func TestHandleRetryAfterClampsToMax(t *testing.T) {
	l := New(time.Millisecond, 30*time.Millisecond, time.Hour)
	defer l.Close()

	start := time.Now()
	waited, err := l.HandleRetryAfter(context.Background(), "3600")
	if err != nil {
		t.Fatal(err)
	}
	if waited != 30*time.Millisecond {
		t.Fatalf("expected clamp to 30ms, got %v", waited)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatalf("didn't actually sleep")
	}
}

func TestDomainOf(t *testing.T) {
	cases := map[string]string{
		"https://example.com/path":     "example.com",
		"http://sub.example.com:8080/": "sub.example.com",
		"not a url at all %%":          "not a url at all %%",
	}
	for in, want := range cases {
		if got := DomainOf(in); got != want {
			t.Errorf("DomainOf(%q) = %q, want %q", in, got, want)
		}
	}
}
