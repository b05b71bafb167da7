package util

import (
	"math/rand/v2"
	"testing"
	"time"
)

func TestGenerateRandomHex(t *testing.T) {
	if got := GenerateRandomHex(0); got != "" {
		t.Errorf("expected empty string for zero length, got %q", got)
	}
	got := GenerateRandomHex(32)
	if len(got) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(got))
	}
	for _, c := range got {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("unexpected character %q in hex string", c)
		}
	}
}

func TestGenerateRandomID(t *testing.T) {
	id := GenerateRandomID("w_", 16)
	if len(id) != 18 {
		t.Errorf("expected prefix plus 16 hex chars, got %q", id)
	}
	if id[:2] != "w_" {
		t.Errorf("expected w_ prefix, got %q", id)
	}
}

func TestDurationBetween(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	// Collapsed range returns min without consuming a draw.
	if got := DurationBetween(r, 5*time.Second, 5*time.Second); got != 5*time.Second {
		t.Errorf("collapsed range = %v, want 5s", got)
	}

	min, max := 2*time.Second, 10*time.Second
	for i := 0; i < 100; i++ {
		d := DurationBetween(r, min, max)
		if d < min || d > max {
			t.Fatalf("draw %v outside [%v, %v]", d, min, max)
		}
	}
}

func TestPickString(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	if got := PickString(r, nil); got != "" {
		t.Errorf("expected empty pick from empty slice, got %q", got)
	}
	items := []string{"a", "b", "c"}
	seen := map[string]bool{}
	for i := 0; i < 60; i++ {
		seen[PickString(r, items)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected at least 2 distinct picks, got %v", seen)
	}
}
