// Package probe implements the MetricProbe capability and its concrete
// providers. The core only depends on the Probe interface (spec.md §4.2);
// concrete providers are domain-stack wiring added by SPEC_FULL.md.
package probe

import (
	"context"
	"fmt"
)

// TransientError marks a probe failure the control loop should treat as
// recoverable: log, skip the cycle, leave hysteresis counters unchanged
// (§4.2, §7 MetricError).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "probe: transient error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Probe is the capability ScalingMode samples: a scalar vector in a known
// numeric domain for a given application. The vector's length must equal
// the dimension of the app's configured thresholds.
type Probe interface {
	Sample(ctx context.Context, appID string) ([]float64, error)
}

// Factory builds a Probe for one app, given its app_id and its display name
// (resolved by AppHandle from orchestrator metadata, for probes that need
// it, e.g. JVMProbe's PromQL query). Registered once per trigger_mode and
// invoked once per app by the Supervisor when it starts that app's
// ControlLoop.
type Factory func(appID, displayName string) Probe

// Registry is the closed capability table keyed by trigger_mode (§9
// "Dynamic dispatch over metric probes... a closed capability table keyed
// by the trigger_mode tag. Avoid open inheritance hierarchies."). It is not
// a reflection-based plugin registry: every supported mode is registered
// explicitly at startup.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a Factory for the given trigger_mode tag.
func (r *Registry) Register(triggerMode string, f Factory) {
	r.factories[triggerMode] = f
}

// Lookup returns the Factory registered for triggerMode, or false if none
// is registered -- the Supervisor uses this to filter the initial app list
// to entries with a registered probe factory (§4.6 step 2).
func (r *Registry) Lookup(triggerMode string) (Factory, bool) {
	f, ok := r.factories[triggerMode]
	return f, ok
}

// errf is a small helper to keep call sites in mem.go/jvm.go terse.
func errf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
