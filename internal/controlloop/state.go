package controlloop

import "github.com/marathon-ops/autoscaler/internal/scalingmode"

// State is the hysteresis counter pair owned exclusively by one
// ControlLoop (spec.md §3 "LoopState"). The invariant
// scale_up_count > 0 ⇒ cool_down_count == 0 (and vice versa) is maintained
// by construction: Step never leaves both counters non-zero.
type State struct {
	ScaleUpCount  int
	CoolDownCount int
}

// Fire describes what, if anything, Step decided should happen this cycle.
type Fire int

const (
	// FireNone means no ScaleAction should be invoked this cycle.
	FireNone Fire = iota
	// FireUp means ScaleAction(up=true) should be invoked, and the
	// scale-up counter has already been reset to 0.
	FireUp
	// FireDown means ScaleAction(up=false) should be invoked (the no-op
	// "scale down trigger off" path), and the cool-down counter has
	// already been reset to 0.
	FireDown
)

// Step applies spec.md §4.5 step 4's hysteresis transition table for one
// sampled Direction, mutating the receiver in place, and reports whether a
// ScaleAction should fire this cycle:
//
//	+1: scale_up_count++, cool_down_count=0; fire FireUp (and reset
//	    scale_up_count to 0) once scale_up_count >= scaleUpFactor.
//	-1: cool_down_count++, scale_up_count=0; fire FireDown (and reset
//	    cool_down_count to 0) once cool_down_count >= coolDownFactor.
//	 0: both counters reset to 0, no fire.
func (s *State) Step(dir scalingmode.Direction, scaleUpFactor, coolDownFactor int) Fire {
	switch dir {
	case scalingmode.DirectionUp:
		s.ScaleUpCount++
		s.CoolDownCount = 0
		if s.ScaleUpCount >= scaleUpFactor {
			s.ScaleUpCount = 0
			return FireUp
		}
		return FireNone

	case scalingmode.DirectionDown:
		s.CoolDownCount++
		s.ScaleUpCount = 0
		if s.CoolDownCount >= coolDownFactor {
			s.CoolDownCount = 0
			return FireDown
		}
		return FireNone

	default: // DirectionHold
		s.ScaleUpCount = 0
		s.CoolDownCount = 0
		return FireNone
	}
}
