// Package observability exposes the process's own Prometheus metrics,
// grounded in control_plane/observability/metrics.go's promauto pattern.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ControlLoopCycles counts control-loop cycles by app and outcome
	// (ok, skipped_absent, skipped_probe_error).
	ControlLoopCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscaler_control_loop_cycles_total",
		Help: "Total control-loop cycles by outcome",
	}, []string{"tenant", "app_id", "outcome"})

	// ScaleActions counts invocations of ScaleAction by direction and
	// result (fired, clamped, suppressed).
	ScaleActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscaler_scale_actions_total",
		Help: "Total ScaleAction invocations by direction and result",
	}, []string{"tenant", "app_id", "direction", "result"})

	// HysteresisCounter tracks the current scale_up_count/cool_down_count
	// value for each app, signed (positive = scale_up, negative =
	// cool_down).
	HysteresisCounter = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autoscaler_hysteresis_counter",
		Help: "Current signed hysteresis counter (positive=scale_up, negative=cool_down)",
	}, []string{"tenant", "app_id"})

	// ActiveLoops tracks the number of control loops currently running.
	ActiveLoops = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autoscaler_active_loops",
		Help: "Number of control loops currently running",
	})

	// ReconciliationEvents counts supervisor reconciliation set-difference
	// outcomes (started, stopped, replaced).
	ReconciliationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscaler_reconciliation_events_total",
		Help: "Total supervisor reconciliation events by kind",
	}, []string{"kind"})

	// APIClientRequests counts outbound requests by method, status, and
	// whether the result was served from cache.
	APIClientRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscaler_apiclient_requests_total",
		Help: "Total outbound orchestrator requests",
	}, []string{"method", "status", "cached"})

	// APIClientCircuitState tracks the APIClient circuit breaker state
	// (0=closed, 1=half_open, 2=open).
	APIClientCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autoscaler_apiclient_circuit_state",
		Help: "APIClient circuit breaker state (0=closed, 1=half_open, 2=open)",
	})

	// AlarmsEmitted counts alarm emissions by kind and whether the sink
	// call succeeded.
	AlarmsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscaler_alarms_emitted_total",
		Help: "Total alarm emissions by kind and outcome",
	}, []string{"kind", "outcome"})
)

// Recorder implements apiclient.Metrics against the package-level
// registries above. A single Recorder value is stateless and safe to share;
// it exists only to keep apiclient decoupled from this package's import.
type Recorder struct{}

func (Recorder) ObserveRequest(method string, status int, cached bool) {
	APIClientRequests.WithLabelValues(method, strconv.Itoa(status), strconv.FormatBool(cached)).Inc()
}

func (Recorder) ObserveCircuitState(state string) {
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	default:
		v = 0
	}
	APIClientCircuitState.Set(v)
}
