package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return Transient(errors.New("throttled"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("auth failure")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return permanent
	})
	if errors.Cause(err) != permanent {
		t.Errorf("Do() = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestDoExhaustsCeiling(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), func() error {
		calls++
		return Transient(errors.New("throttled"))
	})
	if err == nil {
		t.Fatal("Do() = nil, want error")
	}
	if calls != 4 {
		t.Errorf("op called %d times, want 4", calls)
	}
	if !IsTransient(err) {
		t.Errorf("exhausted error %v lost its transient marker", err)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func() error {
		calls++
		return Transient(errors.New("throttled"))
	})
	if errors.Cause(err) != context.Canceled {
		t.Errorf("Do() = %v, want %v", err, context.Canceled)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(errors.New("plain")) {
		t.Error("plain error reported transient")
	}
	if !IsTransient(Transient(errors.New("throttled"))) {
		t.Error("marked error not reported transient")
	}
	wrapped := errors.Wrap(Transient(errors.New("throttled")), "fetching")
	if !IsTransient(wrapped) {
		t.Error("wrapped transient error lost its marker")
	}
	if Transient(nil) != nil {
		t.Error("Transient(nil) != nil")
	}
}
