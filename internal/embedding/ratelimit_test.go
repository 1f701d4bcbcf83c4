package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimitProvider_Unlimited(t *testing.T) {
	inner := &mockProvider{name: "m"}
	p := NewRateLimitProvider(inner, nil)

	start := time.Now()
	for i := 0; i < 50; i++ {
		if _, err := p.Embed(context.Background(), []string{"x"}); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if time.Since(start) > time.Second {
		t.Error("unlimited provider should not delay calls")
	}
	if p.Requests() != 50 || inner.calls != 50 {
		t.Errorf("expected 50 calls, got %d/%d", p.Requests(), inner.calls)
	}
}

func TestRateLimitProvider_BlocksBeyondBurst(t *testing.T) {
	inner := &mockProvider{name: "m"}
	// one request per minute with burst 1: the second call must wait
	p := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 1})

	if _, err := p.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Embed(ctx, []string{"y"})
	if err == nil {
		t.Fatal("expected second call to be refused before the deadline")
	}
	if inner.calls != 1 {
		t.Errorf("inner provider should have been called once, got %d", inner.calls)
	}
}

func TestRateLimitProvider_PropagatesInnerError(t *testing.T) {
	boom := errors.New("boom")
	p := NewRateLimitProvider(&mockProvider{errors: []error{boom}}, &RateLimitConfig{RequestsPerMinute: 600, BurstSize: 5})
	if _, err := p.Embed(context.Background(), []string{"x"}); !errors.Is(err, boom) {
		t.Fatalf("expected inner error, got %v", err)
	}
}
