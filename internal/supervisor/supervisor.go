// Package supervisor implements the process-level reconciler (spec.md
// §4.6): it fetches the desired application fleet on a fixed interval,
// diffs it against the live set of ControlLoops, and starts, stops, or
// replaces loops accordingly. It also drives cache eviction on the shared
// APIClient once per interval.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/marathon-ops/autoscaler/internal/alarm"
	"github.com/marathon-ops/autoscaler/internal/apiclient"
	"github.com/marathon-ops/autoscaler/internal/apphandle"
	"github.com/marathon-ops/autoscaler/internal/audit"
	"github.com/marathon-ops/autoscaler/internal/config"
	"github.com/marathon-ops/autoscaler/internal/controlloop"
	"github.com/marathon-ops/autoscaler/internal/observability"
	"github.com/marathon-ops/autoscaler/internal/probe"
	"github.com/marathon-ops/autoscaler/internal/scalingmode"
	"github.com/marathon-ops/autoscaler/internal/statushub"
)

// entry is one FleetState record: the AppConfig it was started with and a
// handle to stop its ControlLoop (spec.md §3 "FleetState").
type entry struct {
	cfg    config.AppConfig
	loop   *controlloop.ControlLoop
	cancel context.CancelFunc
}

// Builder turns freshly fetched Settings into the collaborators that
// depend on static, remotely-configured parameters: the shared APIClient
// (keyed off dcos_master), the probe Registry (keyed off prometheus_host),
// and the AlarmSink (keyed off alarm_api). The Supervisor cannot build
// these itself at construction time because spec.md §4.6 step 1 says they
// are derived from the fetched configuration, not known up front.
type Builder func(settings config.Settings) (*apiclient.Client, *probe.Registry, alarm.Sink)

// Supervisor owns FleetState and the shared APIClient, and is the sole
// writer of both. Safe for exactly one Run call; reconciliation within that
// call is serialized with itself.
type Supervisor struct {
	source config.Source
	build  Builder
	ledger audit.Ledger
	hub    *statushub.Hub

	client     *apiclient.Client
	registry   *probe.Registry
	sink       alarm.Sink
	dcosMaster string
	formatter  alarm.Formatter

	mu    sync.Mutex
	fleet map[config.Key]*entry
	wg    sync.WaitGroup
}

// New builds a Supervisor. ledger and hub are shared, read-mostly
// collaborators passed into every ControlLoop it starts (SPEC_FULL.md
// §4.6); build is invoked exactly once, at the start of Run.
func New(
	source config.Source,
	build Builder,
	ledger audit.Ledger,
	hub *statushub.Hub,
) *Supervisor {
	if ledger == nil {
		ledger = audit.NoopLedger{}
	}
	return &Supervisor{
		source: source,
		build:  build,
		ledger: ledger,
		hub:    hub,
		fleet:  make(map[config.Key]*entry),
	}
}

// Run fetches the initial configuration and app list, starts one
// ControlLoop per managed app, then reconciles on Settings.Interval until
// ctx is cancelled. Only the startup fetches are fatal (*config.ConfigError);
// every runtime reconciliation error is logged and the fleet is left
// undisturbed (spec.md §4.6, §7).
func (s *Supervisor) Run(ctx context.Context) error {
	settings, err := s.source.FetchSettings(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: fatal: %w", err)
	}
	s.dcosMaster = settings.DCOSMaster
	s.formatter = alarm.NewFormatter(settings.AlarmAPI)
	s.client, s.registry, s.sink = s.build(settings)

	apps, err := s.source.FetchApps(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: fatal: %w", err)
	}

	interval := time.Duration(settings.Interval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for _, cfg := range s.managed(apps) {
		s.startLoop(ctx, cfg, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return nil
		case <-ticker.C:
			s.reconcile(ctx, interval)
		}
	}
}

// managed filters apps to those with a registered probe factory for their
// trigger_mode (spec.md §4.6 step 2), dropping and logging the rest.
func (s *Supervisor) managed(apps []config.AppConfig) []config.AppConfig {
	out := make([]config.AppConfig, 0, len(apps))
	for _, a := range apps {
		if err := a.Validate(); err != nil {
			log.Printf("supervisor: dropping malformed app config %s%s: %v", a.Tenant, a.AppID, err)
			continue
		}
		if _, ok := s.registry.Lookup(a.TriggerMode); !ok {
			log.Printf("supervisor: dropping app %s%s: no probe registered for trigger_mode %q", a.Tenant, a.AppID, a.TriggerMode)
			continue
		}
		out = append(out, a)
	}
	return out
}

// reconcile implements spec.md §4.6's periodic reconciliation: evict the
// shared cache, re-fetch the desired app list, and diff it against the live
// FleetState by (tenant, app_id).
func (s *Supervisor) reconcile(ctx context.Context, interval time.Duration) {
	s.client.EvictAll()

	apps, err := s.source.FetchApps(ctx)
	if err != nil {
		log.Printf("supervisor: reconciliation fetch failed, fleet left unchanged: %v", err)
		return
	}
	desired := s.managed(apps)

	s.mu.Lock()
	desiredByKey := make(map[config.Key]config.AppConfig, len(desired))
	for _, cfg := range desired {
		desiredByKey[cfg.Key()] = cfg
	}

	var toStart, toReplace []config.AppConfig
	var toStop []config.Key

	for key := range s.fleet {
		if _, ok := desiredByKey[key]; !ok {
			toStop = append(toStop, key)
		}
	}
	for key, cfg := range desiredByKey {
		existing, ok := s.fleet[key]
		switch {
		case !ok:
			toStart = append(toStart, cfg)
		case !existing.cfg.Equal(cfg):
			toReplace = append(toReplace, cfg)
		}
	}
	s.mu.Unlock()

	for _, key := range toStop {
		s.stopLoop(key)
		observability.ReconciliationEvents.WithLabelValues("stopped").Inc()
	}
	for _, cfg := range toReplace {
		s.stopLoop(cfg.Key())
		s.startLoop(ctx, cfg, interval)
		observability.ReconciliationEvents.WithLabelValues("replaced").Inc()
	}
	for _, cfg := range toStart {
		s.startLoop(ctx, cfg, interval)
		observability.ReconciliationEvents.WithLabelValues("started").Inc()
	}
}

// startLoop builds the per-app collaborators (AppHandle, ScalingMode,
// Probe) and starts a new ControlLoop, recording it in FleetState. A
// replaced app always starts with fresh hysteresis counters (spec.md §4.6
// "Replacement semantics").
func (s *Supervisor) startLoop(ctx context.Context, cfg config.AppConfig, interval time.Duration) {
	factory, ok := s.registry.Lookup(cfg.TriggerMode)
	if !ok {
		log.Printf("supervisor: no probe factory for %s%s, skipping", cfg.Tenant, cfg.AppID)
		return
	}

	baseURI := cfg.BaseURI(s.dcosMaster)
	handle := apphandle.New(s.client, cfg, baseURI)
	// Resolve APP_NAME display metadata once up front so probes that need
	// it (e.g. JVMProbe's PromQL query) have it from their first cycle.
	handle.Exists(ctx)

	mode, err := scalingmode.New(cfg.MinRange, cfg.MaxRange)
	if err != nil {
		log.Printf("supervisor: invalid thresholds for %s%s, skipping: %v", cfg.Tenant, cfg.AppID, err)
		return
	}

	p := factory(cfg.AppID, handle.DisplayName())

	loop := controlloop.New(cfg, handle, mode, p, s.formatter, s.sink, s.ledger, s.hub, interval)

	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.fleet[cfg.Key()] = &entry{cfg: cfg, loop: loop, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := loop.Run(loopCtx); err != nil {
			log.Printf("supervisor: control loop for %s%s exited: %v", cfg.Tenant, cfg.AppID, err)
		}
	}()
}

// stopLoop signals Stop() on the loop for key (if any) and removes it from
// FleetState. The goroutine itself may still be winding down an in-flight
// network call when this returns; that is acceptable per spec.md §5.
func (s *Supervisor) stopLoop(key config.Key) {
	s.mu.Lock()
	e, ok := s.fleet[key]
	if ok {
		delete(s.fleet, key)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	e.loop.Stop()
	e.cancel()
}

// stopAll signals every loop to stop, for a clean process shutdown.
func (s *Supervisor) stopAll() {
	s.mu.Lock()
	keys := make([]config.Key, 0, len(s.fleet))
	for k := range s.fleet {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, k := range keys {
		s.stopLoop(k)
	}
	s.wg.Wait()
}

// FleetSize reports the number of currently managed ControlLoops, for
// diagnostics.
func (s *Supervisor) FleetSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fleet)
}
