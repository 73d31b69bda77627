package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var errRefused = errors.New("connection refused")

func fast(attempts int) *Backoff {
	return &Backoff{Attempts: attempts, Initial: time.Millisecond, Max: 4 * time.Millisecond}
}

func TestBackoff_SucceedsAfterRetries(t *testing.T) {
	var retried []int
	b := fast(5)
	b.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	calls := 0
	err := b.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return errRefused
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || len(retried) != 2 {
		t.Errorf("calls=%d retried=%v", calls, retried)
	}
}

func TestBackoff_SingleTryByDefault(t *testing.T) {
	calls := 0
	err := (&Backoff{}).Do(context.Background(), func(int) error {
		calls++
		return errRefused
	})
	if err != errRefused {
		t.Errorf("err = %v, want the bare failure", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoff_Exhausted(t *testing.T) {
	calls := 0
	err := fast(3).Do(context.Background(), func(int) error {
		calls++
		return errRefused
	})
	if !errors.Is(err, errRefused) || !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestBackoff_Stop(t *testing.T) {
	fatal := errors.New("no such host")
	calls := 0
	err := fast(5).Do(context.Background(), func(int) error {
		calls++
		return Stop(fatal)
	})
	if err != fatal {
		t.Errorf("err = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if Stop(nil) != nil {
		t.Error("Stop(nil) should be nil")
	}
}

func TestBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Backoff{Attempts: 10, Initial: time.Hour}
	b.OnRetry = func(int, time.Duration, error) { cancel() }

	err := b.Do(ctx, func(int) error { return errRefused })
	if !errors.Is(err, context.Canceled) || !errors.Is(err, errRefused) {
		t.Errorf("err = %v", err)
	}
}

func TestJitter(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		if got := jitter(d); got < 75*time.Millisecond || got > 125*time.Millisecond {
			t.Fatalf("jitter(%v) = %v", d, got)
		}
	}
	if got := jitter(1); got != 1 {
		t.Errorf("jitter(1ns) = %v", got)
	}
}
