package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/Atharva0506/farmer-ai-gateway/internal/domain"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if err := b.Allow(); err != nil {
			t.Fatalf("breaker opened after %d failures, threshold is 3", i+1)
		}
	}

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()

	if err := b.Allow(); err != nil {
		t.Error("success between failures should reset the count")
	}
}

func TestBreaker_HalfOpenProbeAndClose(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatal("expected open state")
	}

	time.Sleep(15 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatal("expected probe allowed after timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}

	b.RecordSuccess()
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Errorf("expected closed after %d successes, got %v", 2, b.State())
	}
}

func TestBreaker_OnOpenFires(t *testing.T) {
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})

	fired := make(chan struct{}, 1)
	b.OnOpen(func() { fired <- struct{}{} })

	b.RecordFailure()
	select {
	case <-fired:
		t.Fatal("callback fired before the breaker tripped")
	case <-time.After(20 * time.Millisecond):
	}

	b.RecordFailure()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire on trip")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})

	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	b.Allow()

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Errorf("failure in half-open should reopen, got %v", b.State())
	}
}
