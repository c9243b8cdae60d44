package security

import (
	"errors"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{DispatchesPerMin: 3})
	for i := 0; i < 3; i++ {
		if err := rl.Allow(RateDispatch); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if err := rl.Allow(RateDispatch); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{DispatchesPerMin: 1})
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if err := rl.Allow(RateDispatch); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := rl.Allow(RateDispatch); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit, got %v", err)
	}

	now = now.Add(61 * time.Second)
	if err := rl.Allow(RateDispatch); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestRateLimiter_UnknownKindUnlimited(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for i := 0; i < 1000; i++ {
		if err := rl.Allow("unknown"); err != nil {
			t.Fatalf("unknown kind limited: %v", err)
		}
	}
}

func TestURLFilter_DefaultDeny(t *testing.T) {
	t.Parallel()

	f := NewURLFilter(URLFilterConfig{})
	if err := f.Check("https://example.com/x"); !errors.Is(err, ErrURLBlocked) {
		t.Fatalf("expected ErrURLBlocked, got %v", err)
	}
}

func TestURLFilter_AllowWithSubdomains(t *testing.T) {
	t.Parallel()

	f := NewURLFilter(URLFilterConfig{AllowDomains: []string{"example.com"}})
	if err := f.Check("https://api.example.com/v1"); err != nil {
		t.Fatalf("subdomain blocked: %v", err)
	}
	if err := f.Check("https://notexample.com"); !errors.Is(err, ErrURLBlocked) {
		t.Fatalf("prefix domain allowed: %v", err)
	}
}

func TestURLFilter_DenyWins(t *testing.T) {
	t.Parallel()

	f := NewURLFilter(URLFilterConfig{
		AllowDomains: []string{"example.com"},
		DenyDomains:  []string{"internal.example.com"},
	})
	if err := f.Check("https://internal.example.com"); !errors.Is(err, ErrURLBlocked) {
		t.Fatalf("deny list ignored: %v", err)
	}
}

func TestSanitizedEnv_StripsSecrets(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_zzz")
	t.Setenv("HOME_MADE", "ok")

	env := SanitizedEnv("EXTRA=1")
	for _, e := range env {
		if e == "GITHUB_TOKEN=ghp_zzz" {
			t.Fatal("sensitive variable survived sanitization")
		}
	}

	var sawExtra, sawPlain bool
	for _, e := range env {
		switch e {
		case "EXTRA=1":
			sawExtra = true
		case "HOME_MADE=ok":
			sawPlain = true
		}
	}
	if !sawExtra || !sawPlain {
		t.Fatalf("expected extra and plain vars, extra=%v plain=%v", sawExtra, sawPlain)
	}
}
