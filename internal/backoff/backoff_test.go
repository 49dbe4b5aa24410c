package backoff

import (
	"testing"
	"time"
)

func TestPolicy_Next_Doubling(t *testing.T) {
	p := Policy{Initial: 1 * time.Second, Max: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s capped
		{6, 30 * time.Second},
		{100, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Next(tt.attempt); got != tt.want {
			t.Errorf("Next(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_Next_NonDecreasingUpToCap(t *testing.T) {
	p := DefaultPolicy()

	prev := time.Duration(0)
	for n := 0; n < 64; n++ {
		d := p.Next(n)
		if d < prev {
			t.Fatalf("Next(%d) = %v, decreased from %v", n, d, prev)
		}
		if d > p.Max {
			t.Fatalf("Next(%d) = %v exceeds max %v", n, d, p.Max)
		}
		prev = d
	}
}

func TestPolicy_Next_SaturatesOnHugeAttempt(t *testing.T) {
	p := Policy{Initial: 1 * time.Second, Max: 30 * time.Second}

	// Attempt counts far past any shift width must not wrap negative.
	for _, n := range []int{63, 64, 1 << 20, 1<<62 - 1} {
		if got := p.Next(n); got != p.Max {
			t.Errorf("Next(%d) = %v, want %v", n, got, p.Max)
		}
	}
}

func TestPolicy_Next_NegativeAttempt(t *testing.T) {
	p := DefaultPolicy()

	if got := p.Next(-1); got != p.Initial {
		t.Errorf("Next(-1) = %v, want %v", got, p.Initial)
	}
}

func TestPolicy_Next_InitialAboveMax(t *testing.T) {
	p := Policy{Initial: 40 * time.Second, Max: 30 * time.Second}

	if got := p.Next(0); got != p.Max {
		t.Errorf("Next(0) = %v, want %v", got, p.Max)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	if p.Initial != 1*time.Second {
		t.Errorf("Initial = %v, want 1s", p.Initial)
	}
	if p.Max != 30*time.Second {
		t.Errorf("Max = %v, want 30s", p.Max)
	}
}
