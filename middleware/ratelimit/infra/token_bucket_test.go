package infra

import (
	"testing"
	"time"
)

func TestTokenBucketStore_SameKeyReusesLimiter(t *testing.T) {
	s := NewTokenBucketStore(10, time.Second)

	l1 := s.limiter("k", t0)
	l2 := s.limiter("k", t0)
	if l1 != l2 {
		t.Fatalf("expected same limiter pointer for same key")
	}
}

func TestTokenBucketStore_BurstThenReject(t *testing.T) {
	s := NewTokenBucketStore(2, time.Minute)

	for i := 0; i < 2; i++ {
		if !admit(t, s, "k", t0).Allowed {
			t.Fatalf("expected request %d within burst to be allowed", i+1)
		}
	}
	dec := admit(t, s, "k", t0)
	if dec.Allowed {
		t.Fatalf("expected third immediate request to be rejected (burst=2)")
	}
	// 2 tokens/min => 1 token a cada 30s
	if dec.RetryAfter < 29*time.Second || dec.RetryAfter > 31*time.Second {
		t.Fatalf("expected RetryAfter around 30s, got %s", dec.RetryAfter)
	}
	if dec.Limit != 2 {
		t.Fatalf("expected limit=2, got %d", dec.Limit)
	}
}

func TestTokenBucketStore_RefillsOverTime(t *testing.T) {
	s := NewTokenBucketStore(2, time.Minute)

	admit(t, s, "k", t0)
	admit(t, s, "k", t0)
	if admit(t, s, "k", t0.Add(10*time.Second)).Allowed {
		t.Fatalf("expected rejection before refill")
	}
	if !admit(t, s, "k", t0.Add(31*time.Second)).Allowed {
		t.Fatalf("expected admission after one token refilled")
	}
}

func TestTokenBucketStore_RemainingCountsDown(t *testing.T) {
	s := NewTokenBucketStore(3, time.Hour)

	for _, want := range []int{2, 1, 0} {
		dec := admit(t, s, "k", t0)
		if dec.Remaining != want {
			t.Fatalf("expected remaining=%d, got %d", want, dec.Remaining)
		}
	}
}

func TestTokenBucketStore_SweepRemovesIdleEntries(t *testing.T) {
	s := NewTokenBucketStore(10, time.Second, WithIdleTTL(time.Minute), WithCleanupEvery(0))

	before := s.limiter("k", t0)
	s.limiter("recent", t0.Add(2*time.Minute))

	if n := s.Sweep(t0.Add(2 * time.Minute)); n != 1 {
		t.Fatalf("expected 1 idle entry removed, got %d", n)
	}

	after := s.limiter("k", t0.Add(2*time.Minute))
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
	if s.CleanupEvery() != 0 {
		t.Fatalf("expected cleanup interval override")
	}
}
