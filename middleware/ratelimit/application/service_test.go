package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"orchestrator-gateway/middleware/ratelimit/domain"
)

type fakeStore struct {
	dec   domain.Decision
	err   error
	calls int
}

func (s *fakeStore) Admit(context.Context, domain.Key, time.Time) (domain.Decision, error) {
	s.calls++
	return s.dec, s.err
}

func TestService_Decide_AllowsWhenNoStore(t *testing.T) {
	svc := Service{Enabled: true}
	dec, err := svc.Decide(context.Background(), "k", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_DisabledSkipsStore(t *testing.T) {
	store := &fakeStore{dec: domain.Decision{Allowed: false}}
	svc := Service{Store: store, Enabled: false}

	for i := 0; i < 5; i++ {
		dec, err := svc.Decide(context.Background(), "k", time.Now())
		if err != nil || !dec.Allowed {
			t.Fatalf("expected allowed without error, got %+v / %v", dec, err)
		}
	}
	if store.calls != 0 {
		t.Fatalf("expected store to never be consulted, got %d calls", store.calls)
	}
}

func TestService_Decide_PassesStoreDecision(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	store := &fakeStore{dec: domain.Decision{Allowed: true, Limit: 10, Remaining: 9, ResetAt: reset}}
	svc := Service{Store: store, Enabled: true}

	dec, err := svc.Decide(context.Background(), "k", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed || dec.Limit != 10 || dec.Remaining != 9 || !dec.ResetAt.Equal(reset) {
		t.Fatalf("unexpected decision %+v", dec)
	}
}

func TestService_Decide_BlocksWithRetryAfterFloor(t *testing.T) {
	store := &fakeStore{dec: domain.Decision{Allowed: false, RetryAfter: 200 * time.Millisecond}}
	svc := Service{Store: store, Enabled: true}

	dec, _ := svc.Decide(context.Background(), "k", time.Now())
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != MinRetryAfter {
		t.Fatalf("expected RetryAfter=%s, got %s", MinRetryAfter, dec.RetryAfter)
	}
}

func TestService_Decide_KeepsLongerRetryAfter(t *testing.T) {
	store := &fakeStore{dec: domain.Decision{Allowed: false, RetryAfter: 2500 * time.Millisecond}}
	svc := Service{Store: store, Enabled: true}

	dec, _ := svc.Decide(context.Background(), "k", time.Now())
	if dec.RetryAfter != 2500*time.Millisecond {
		t.Fatalf("expected RetryAfter=2.5s, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_FailsOpenOnStoreError(t *testing.T) {
	boom := errors.New("redis: connection refused")
	svc := Service{Store: &fakeStore{err: boom}, Enabled: true}

	dec, err := svc.Decide(context.Background(), "k", time.Now())
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error to be returned, got %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected fail-open admission")
	}
}
