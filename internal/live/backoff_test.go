package live

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Factor: 2, Max: time.Second, MaxAttempts: 6}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{60, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_DelayFactorBelowOne(t *testing.T) {
	b := Backoff{Base: time.Second, Factor: 0.5}
	if got := b.Delay(3); got != time.Second {
		t.Errorf("Delay(3) = %s, want 1s", got)
	}
}

func TestBackoff_Exhausted(t *testing.T) {
	b := Backoff{MaxAttempts: 3}
	for failures, want := range []bool{false, false, false, true, true} {
		if got := b.Exhausted(failures); got != want {
			t.Errorf("Exhausted(%d) = %v, want %v", failures, got, want)
		}
	}
	if (Backoff{}).Exhausted(1000) {
		t.Error("zero MaxAttempts should never exhaust")
	}
}

func TestBackoff_WaitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Backoff{Base: time.Hour}).Wait(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}
