package scalingmode

import "testing"

func TestDirectionUpOnAnyAboveHigh(t *testing.T) {
	m, err := New([]float64{10, 10}, []float64{70, 70})
	if err != nil {
		t.Fatal(err)
	}
	d, err := m.Direction([]float64{75, 50})
	if err != nil {
		t.Fatal(err)
	}
	if d != DirectionUp {
		t.Fatalf("expected DirectionUp, got %v", d)
	}
}

func TestDirectionDownOnAllBelowLow(t *testing.T) {
	m, err := New([]float64{20, 20}, []float64{70, 70})
	if err != nil {
		t.Fatal(err)
	}
	d, err := m.Direction([]float64{10, 10})
	if err != nil {
		t.Fatal(err)
	}
	if d != DirectionDown {
		t.Fatalf("expected DirectionDown, got %v", d)
	}
}

func TestDirectionHoldOnPartialSlack(t *testing.T) {
	m, err := New([]float64{20, 20}, []float64{70, 70})
	if err != nil {
		t.Fatal(err)
	}
	// One dimension has slack but not the other, and neither is over the
	// ceiling: must not be treated as downscale pressure (requires
	// unanimous slack) nor upscale pressure.
	d, err := m.Direction([]float64{10, 50})
	if err != nil {
		t.Fatal(err)
	}
	if d != DirectionHold {
		t.Fatalf("expected DirectionHold, got %v", d)
	}
}

func TestDirectionUpTakesPriorityOverDown(t *testing.T) {
	// Degenerate but possible if lo > hi in some dimension is misconfigured;
	// more realistically: one dim above hi, all dims (including that one)
	// below lo is impossible since hi > lo, so this exercises the priority
	// rule with a single dimension.
	m, err := New([]float64{80}, []float64{70})
	if err != nil {
		t.Fatal(err)
	}
	d, err := m.Direction([]float64{75})
	if err != nil {
		t.Fatal(err)
	}
	if d != DirectionUp {
		t.Fatalf("expected DirectionUp to win, got %v", d)
	}
}

func TestDirectionDimensionMismatch(t *testing.T) {
	m, err := New([]float64{10}, []float64{70})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Direction([]float64{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestNewRejectsMismatchedThresholds(t *testing.T) {
	if _, err := New([]float64{1, 2}, []float64{1}); err == nil {
		t.Fatal("expected error for mismatched lo/hi length")
	}
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for empty thresholds")
	}
}
