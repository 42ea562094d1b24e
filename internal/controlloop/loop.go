// Package controlloop implements the per-application scaling state machine
// (spec.md §4.5): sample a direction on a fixed interval, apply hysteresis,
// invoke scale actions, emit alarms, and honor a cooperative stop signal.
package controlloop

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/marathon-ops/autoscaler/internal/alarm"
	"github.com/marathon-ops/autoscaler/internal/apphandle"
	"github.com/marathon-ops/autoscaler/internal/audit"
	"github.com/marathon-ops/autoscaler/internal/config"
	"github.com/marathon-ops/autoscaler/internal/observability"
	"github.com/marathon-ops/autoscaler/internal/probe"
	"github.com/marathon-ops/autoscaler/internal/scalingmode"
	"github.com/marathon-ops/autoscaler/internal/statushub"
)

// ControlLoop runs one application's scaling state machine. It owns its
// State exclusively; nothing outside this package touches it except through
// Stop.
type ControlLoop struct {
	cfg       config.AppConfig
	handle    *apphandle.Handle
	mode      *scalingmode.Mode
	probe     probe.Probe
	formatter alarm.Formatter
	sink      alarm.Sink
	ledger    audit.Ledger
	hub       *statushub.Hub
	interval  time.Duration

	state State

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a ControlLoop for one application. probe and mode must already
// be built for cfg.TriggerMode / cfg.MinRange/MaxRange; ledger and hub may be
// nil-safe shared collaborators owned by the Supervisor.
func New(
	cfg config.AppConfig,
	handle *apphandle.Handle,
	mode *scalingmode.Mode,
	p probe.Probe,
	formatter alarm.Formatter,
	sink alarm.Sink,
	ledger audit.Ledger,
	hub *statushub.Hub,
	interval time.Duration,
) *ControlLoop {
	if ledger == nil {
		ledger = audit.NoopLedger{}
	}
	return &ControlLoop{
		cfg:       cfg,
		handle:    handle,
		mode:      mode,
		probe:     p,
		formatter: formatter,
		sink:      sink,
		ledger:    ledger,
		hub:       hub,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Stop signals the loop to terminate at the next opportunity. Single-shot
// and monotonic (spec.md §5 "Cancellation"): repeated calls are harmless.
func (cl *ControlLoop) Stop() {
	cl.stopOnce.Do(func() { close(cl.stopCh) })
}

// stopped reports whether Stop has been observed, without blocking.
func (cl *ControlLoop) stopped() bool {
	select {
	case <-cl.stopCh:
		return true
	default:
		return false
	}
}

// Run executes the unbounded periodic loop described in spec.md §4.5 until
// Stop is observed. Run returns nil on a clean stop; ctx cancellation is
// treated the same as Stop for the purpose of loop termination.
func (cl *ControlLoop) Run(ctx context.Context) error {
	cl.publish("loop_started", "")
	observability.ActiveLoops.Inc()
	defer observability.ActiveLoops.Dec()
	defer cl.publish("loop_stopped", "")

	for {
		if cl.stopped() || ctx.Err() != nil {
			return nil
		}

		cl.runCycle(ctx)

		if !cl.sleepInterruptible(ctx) {
			return nil
		}
	}
}

// runCycle executes steps 2-4 of spec.md §4.5 for one sample. Step 1
// (per-loop eviction) is intentionally absent: freshness is bounded by the
// Supervisor's periodic EvictAll instead (§4.5 step 1).
func (cl *ControlLoop) runCycle(ctx context.Context) {
	if !cl.handle.Exists(ctx) {
		log.Printf("controlloop: %s%s: app not found, skipping cycle", cl.cfg.Tenant, cl.cfg.AppID)
		observability.ControlLoopCycles.WithLabelValues(cl.cfg.Tenant, cl.cfg.AppID, "skipped_absent").Inc()
		return
	}

	sample, err := cl.probe.Sample(ctx, cl.cfg.AppID)
	if err != nil {
		log.Printf("controlloop: %s%s: probe error, skipping cycle: %v", cl.cfg.Tenant, cl.cfg.AppID, err)
		observability.ControlLoopCycles.WithLabelValues(cl.cfg.Tenant, cl.cfg.AppID, "skipped_probe_error").Inc()
		return
	}

	direction, err := cl.mode.Direction(sample)
	if err != nil {
		log.Printf("controlloop: %s%s: direction error, skipping cycle: %v", cl.cfg.Tenant, cl.cfg.AppID, err)
		observability.ControlLoopCycles.WithLabelValues(cl.cfg.Tenant, cl.cfg.AppID, "skipped_probe_error").Inc()
		return
	}

	fire := cl.state.Step(direction, cl.cfg.ScaleUpFactor, cl.cfg.CoolDownFactor)
	cl.recordHysteresisGauge()

	switch fire {
	case FireUp:
		cl.scaleUp(ctx)
	case FireDown:
		cl.scaleDownSuppressed(ctx)
	}

	observability.ControlLoopCycles.WithLabelValues(cl.cfg.Tenant, cl.cfg.AppID, "ok").Inc()
}

func (cl *ControlLoop) recordHysteresisGauge() {
	v := float64(cl.state.ScaleUpCount - cl.state.CoolDownCount)
	observability.HysteresisCounter.WithLabelValues(cl.cfg.Tenant, cl.cfg.AppID).Set(v)
}

// scaleUp implements ScaleAction(up=true) exactly per spec.md §4.5.
func (cl *ControlLoop) scaleUp(ctx context.Context) {
	current := cl.handle.Instances(ctx)
	target := int(math.Ceil(float64(current) * cl.cfg.AutoscaleMultiplier))

	clamped := false
	if target > cl.cfg.MaxInstances {
		target = cl.cfg.MaxInstances
		clamped = true
		cl.emitAlarm(ctx, alarm.LevelWarning, "scale_up_clamped",
			fmt.Sprintf("target clamped to max_instances ceiling %d", cl.cfg.MaxInstances))
	}

	if target > current {
		cl.emitAlarm(ctx, alarm.LevelInfo, "scale_up",
			fmt.Sprintf("current %d, scaling to %d", current, target))
	} else {
		cl.emitAlarm(ctx, alarm.LevelWarning, "scale_up_at_ceiling",
			fmt.Sprintf("current %d already at or above ceiling, target %d", current, target))
	}

	result := "fired"
	if clamped {
		result = "clamped"
	}
	observability.ScaleActions.WithLabelValues(cl.cfg.Tenant, cl.cfg.AppID, "up", result).Inc()

	if target == current {
		cl.recordEvent(ctx, "scale_up_noop", "target equals current, no SetInstances issued", current, target)
		cl.publish("scale_action", fmt.Sprintf("up noop current=%d target=%d", current, target))
		return
	}

	if err := cl.handle.SetInstances(ctx, target); err != nil {
		log.Printf("controlloop: %s%s: SetInstances(%d) failed: %v", cl.cfg.Tenant, cl.cfg.AppID, target, err)
	}
	cl.recordEvent(ctx, "scale_up", "SetInstances issued", current, target)
	cl.publish("scale_action", fmt.Sprintf("up current=%d target=%d", current, target))
}

// scaleDownSuppressed implements ScaleAction(up=false): a deliberate no-op
// on instance count, logged at warning level, per spec.md §4.5. The
// cool-down observation is still recorded for audit (SPEC_FULL.md §4.5).
func (cl *ControlLoop) scaleDownSuppressed(ctx context.Context) {
	log.Printf("controlloop: %s%s: scale down trigger off", cl.cfg.Tenant, cl.cfg.AppID)
	observability.ScaleActions.WithLabelValues(cl.cfg.Tenant, cl.cfg.AppID, "down", "suppressed").Inc()

	current := cl.handle.Instances(ctx)
	cl.recordEvent(ctx, "scale_down_suppressed", "downscale disabled by operator policy", current, current)
	cl.publish("scale_action", "down suppressed")
}

func (cl *ControlLoop) emitAlarm(ctx context.Context, level alarm.Level, kind, detail string) {
	payload := cl.formatter.Format(cl.cfg, alarm.Event{Level: level, Kind: kind, Detail: detail})
	outcome := "ok"
	if err := cl.sink.Emit(ctx, payload, cl.cfg.AlarmKey); err != nil {
		outcome = "error"
		log.Printf("controlloop: %s%s: alarm emit failed: %v", cl.cfg.Tenant, cl.cfg.AppID, err)
	}
	observability.AlarmsEmitted.WithLabelValues(kind, outcome).Inc()
}

func (cl *ControlLoop) recordEvent(ctx context.Context, kind, detail string, from, to int) {
	audit.RecordBestEffort(ctx, cl.ledger, audit.Event{
		Tenant:        cl.cfg.Tenant,
		AppID:         cl.cfg.AppID,
		OccurredAt:    time.Now().UTC(),
		Kind:          kind,
		Detail:        detail,
		FromInstances: from,
		ToInstances:   to,
	})
}

func (cl *ControlLoop) publish(kind, detail string) {
	if cl.hub == nil {
		return
	}
	cl.hub.Publish(statushub.Event{
		Time:   time.Now().UTC(),
		Tenant: cl.cfg.Tenant,
		AppID:  cl.cfg.AppID,
		Kind:   kind,
		Detail: detail,
	})
}

// sleepInterruptible waits for cl.interval, returning false immediately (and
// without completing the wait) if Stop or ctx cancellation is observed
// first, so termination latency never exceeds a small multiple of one
// sample RTT rather than a full interval (spec.md §5 "Cancellation").
func (cl *ControlLoop) sleepInterruptible(ctx context.Context) bool {
	timer := time.NewTimer(cl.interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-cl.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
