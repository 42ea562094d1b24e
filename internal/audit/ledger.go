// Package audit implements the append-only scaling-event ledger
// (SPEC_FULL.md §3 "ScalingEvent", §2 component 10). It is write-only from
// the core's perspective: no SPEC_FULL operation reads the ledger back into
// a running control loop's decision path, so it carries none of the
// restart-state restrictions the Non-goals place on LoopState/FleetState.
package audit

import (
	"context"
	"log"
	"time"
)

// Event is one append-only audit record.
type Event struct {
	Tenant        string
	AppID         string
	OccurredAt    time.Time
	Kind          string // "scale_up", "scale_up_clamped", "scale_down_suppressed", "alarm"
	Detail        string
	FromInstances int
	ToInstances   int
}

// Ledger is the capability ControlLoop and Supervisor use to record
// ScalingEvents. Implementations must be safe for concurrent Record calls.
type Ledger interface {
	Record(ctx context.Context, ev Event) error
}

// NoopLedger discards every event. Used when no DSN is configured: the
// ledger is a diagnostic aid, never required for correctness, so its
// absence must not prevent the control plane from starting.
type NoopLedger struct{}

func (NoopLedger) Record(ctx context.Context, ev Event) error { return nil }

// LoggingLedger writes events to the standard logger. A fallback for
// environments without Postgres available, and useful in tests.
type LoggingLedger struct{}

func (LoggingLedger) Record(ctx context.Context, ev Event) error {
	log.Printf("audit: tenant=%s app=%s kind=%s detail=%q from=%d to=%d at=%s",
		ev.Tenant, ev.AppID, ev.Kind, ev.Detail, ev.FromInstances, ev.ToInstances, ev.OccurredAt.Format(time.RFC3339))
	return nil
}

// RecordBestEffort calls ledger.Record and logs (rather than propagates)
// any failure, per SPEC_FULL.md §7: "Ledger and StatusHub errors are a new,
// explicitly non-propagating error class."
func RecordBestEffort(ctx context.Context, ledger Ledger, ev Event) {
	if err := ledger.Record(ctx, ev); err != nil {
		log.Printf("audit: record failed for %s%s (%s): %v", ev.Tenant, ev.AppID, ev.Kind, err)
	}
}
