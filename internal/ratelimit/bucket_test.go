package ratelimit

import (
	"testing"
	"time"

	"github.com/nulpointcorp/llm-gateway/internal/config"
)

func credWithLimit(id int64, rps, burst int) *config.Credential {
	return &config.Credential{
		ID:        id,
		IsEnabled: true,
		RateLimit: &config.RateLimit{RequestsPerSecond: rps, Burst: burst},
	}
}

// TestAllowNoRateLimitBypasses verifies a credential with RateLimit == nil
// never gets throttled.
func TestAllowNoRateLimitBypasses(t *testing.T) {
	l := New()
	cred := &config.Credential{ID: 1, IsEnabled: true}

	for i := 0; i < 1000; i++ {
		if !l.Allow(cred) {
			t.Fatalf("call %d: expected bypass to always allow", i)
		}
	}
}

// TestAllowZeroRPSAlwaysDenies verifies the explicit-deny case: a
// configured RateLimit with RequestsPerSecond == 0 never allows a request.
func TestAllowZeroRPSAlwaysDenies(t *testing.T) {
	l := New()
	cred := credWithLimit(2, 0, 0)

	if l.Allow(cred) {
		t.Fatal("expected rate_limit == 0 to always deny")
	}
}

// TestAllowConsumesBurstThenBlocks verifies the bucket allows up to its
// burst capacity immediately, then blocks until a refill.
func TestAllowConsumesBurstThenBlocks(t *testing.T) {
	l := New()
	cred := credWithLimit(3, 1, 3) // 1 token/sec refill, burst of 3

	for i := 0; i < 3; i++ {
		if !l.Allow(cred) {
			t.Fatalf("call %d: expected burst capacity to allow", i)
		}
	}
	if l.Allow(cred) {
		t.Fatal("expected bucket to be exhausted after burst")
	}
}

// TestAllowRefillsOverTime verifies tokens accumulate at the configured
// rate and become available again after waiting.
func TestAllowRefillsOverTime(t *testing.T) {
	l := New()
	cred := credWithLimit(4, 100, 1) // 100 tokens/sec, burst of 1

	if !l.Allow(cred) {
		t.Fatal("expected first call to allow")
	}
	if l.Allow(cred) {
		t.Fatal("expected immediate second call to be denied")
	}

	time.Sleep(20 * time.Millisecond)

	if !l.Allow(cred) {
		t.Fatal("expected call after refill window to allow")
	}
}

// TestAllowIsolatesCredentials verifies one credential's exhausted bucket
// never affects another's.
func TestAllowIsolatesCredentials(t *testing.T) {
	l := New()
	a := credWithLimit(5, 60, 1)
	b := credWithLimit(6, 60, 1)

	if !l.Allow(a) {
		t.Fatal("expected a's first call to allow")
	}
	if l.Allow(a) {
		t.Fatal("expected a's second call to be denied")
	}
	if !l.Allow(b) {
		t.Fatal("expected b's first call to allow despite a being exhausted")
	}
}

// TestReset verifies Reset drops bucket state so a credential's next call
// starts fresh at full capacity.
func TestReset(t *testing.T) {
	l := New()
	cred := credWithLimit(7, 60, 1)

	if !l.Allow(cred) {
		t.Fatal("expected first call to allow")
	}
	if l.Allow(cred) {
		t.Fatal("expected second call to be denied before reset")
	}

	l.Reset()

	if !l.Allow(cred) {
		t.Fatal("expected call after reset to allow")
	}
}
