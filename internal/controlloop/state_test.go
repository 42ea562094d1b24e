package controlloop

import (
	"testing"

	"github.com/marathon-ops/autoscaler/internal/scalingmode"
)

// TestHysteresisMonotonicity covers P1: k < scale_up_factor consecutive +1
// directions never fire.
func TestHysteresisMonotonicity(t *testing.T) {
	s := &State{}
	for i := 0; i < 2; i++ {
		if fire := s.Step(scalingmode.DirectionUp, 3, 2); fire != FireNone {
			t.Fatalf("cycle %d: expected no fire before scale_up_factor reached, got %v", i, fire)
		}
	}
	if s.ScaleUpCount != 2 {
		t.Fatalf("expected scale_up_count=2, got %d", s.ScaleUpCount)
	}
}

// TestHysteresisTrigger covers P2: exactly scale_up_factor consecutive +1
// directions fires exactly once and resets the counter.
func TestHysteresisTrigger(t *testing.T) {
	s := &State{}
	s.Step(scalingmode.DirectionUp, 3, 2)
	s.Step(scalingmode.DirectionUp, 3, 2)
	fire := s.Step(scalingmode.DirectionUp, 3, 2)
	if fire != FireUp {
		t.Fatalf("expected FireUp on the 3rd consecutive +1, got %v", fire)
	}
	if s.ScaleUpCount != 0 {
		t.Fatalf("expected scale_up_count reset to 0 after firing, got %d", s.ScaleUpCount)
	}
}

// TestHysteresisDownTrigger mirrors TestHysteresisTrigger for -1/cool_down.
func TestHysteresisDownTrigger(t *testing.T) {
	s := &State{}
	s.Step(scalingmode.DirectionDown, 3, 2)
	fire := s.Step(scalingmode.DirectionDown, 3, 2)
	if fire != FireDown {
		t.Fatalf("expected FireDown on the 2nd consecutive -1, got %v", fire)
	}
	if s.CoolDownCount != 0 {
		t.Fatalf("expected cool_down_count reset to 0 after firing, got %d", s.CoolDownCount)
	}
}

// TestCounterSwap covers P4: any +1 resets cool_down and vice versa, and the
// mutual-exclusivity invariant (scale_up_count > 0 => cool_down_count == 0)
// holds after every Step call.
func TestCounterSwap(t *testing.T) {
	s := &State{}
	s.Step(scalingmode.DirectionDown, 5, 5)
	if s.CoolDownCount != 1 {
		t.Fatalf("expected cool_down_count=1, got %d", s.CoolDownCount)
	}
	s.Step(scalingmode.DirectionUp, 5, 5)
	if s.CoolDownCount != 0 || s.ScaleUpCount != 1 {
		t.Fatalf("expected swap to scale_up_count=1, cool_down_count=0, got su=%d cd=%d", s.ScaleUpCount, s.CoolDownCount)
	}
	assertMutuallyExclusive(t, s)
}

// TestWithinBandResets covers the "within-band resets" scenario: a 0
// direction resets both counters even mid-sequence.
func TestWithinBandResets(t *testing.T) {
	s := &State{}
	s.Step(scalingmode.DirectionUp, 3, 3)
	s.Step(scalingmode.DirectionUp, 3, 3)
	fire := s.Step(scalingmode.DirectionHold, 3, 3)
	if fire != FireNone {
		t.Fatalf("expected no fire on hold, got %v", fire)
	}
	if s.ScaleUpCount != 0 || s.CoolDownCount != 0 {
		t.Fatalf("expected both counters reset to 0, got su=%d cd=%d", s.ScaleUpCount, s.CoolDownCount)
	}

	s.Step(scalingmode.DirectionUp, 3, 3)
	s.Step(scalingmode.DirectionUp, 3, 3)
	if fire := s.Step(scalingmode.DirectionUp, 3, 3); fire != FireUp {
		t.Fatalf("expected the post-reset sequence to still require a full scale_up_factor count, got %v", fire)
	}
}

func assertMutuallyExclusive(t *testing.T, s *State) {
	t.Helper()
	if s.ScaleUpCount > 0 && s.CoolDownCount > 0 {
		t.Fatalf("invariant violated: both counters non-zero, su=%d cd=%d", s.ScaleUpCount, s.CoolDownCount)
	}
}
