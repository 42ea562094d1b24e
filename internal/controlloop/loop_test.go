package controlloop

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/marathon-ops/autoscaler/internal/alarm"
	"github.com/marathon-ops/autoscaler/internal/apiclient"
	"github.com/marathon-ops/autoscaler/internal/apphandle"
	"github.com/marathon-ops/autoscaler/internal/audit"
	"github.com/marathon-ops/autoscaler/internal/config"
	"github.com/marathon-ops/autoscaler/internal/scalingmode"
)

type fakeProbe struct {
	sample []float64
	err    error
}

func (f *fakeProbe) Sample(ctx context.Context, appID string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sample, nil
}

type fakeSink struct {
	mu        sync.Mutex
	payloads  []alarm.Payload
	alarmKeys []string
}

func (s *fakeSink) Emit(ctx context.Context, p alarm.Payload, alarmKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	s.alarmKeys = append(s.alarmKeys, alarmKey)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

type fakeLedger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *fakeLedger) Record(ctx context.Context, ev audit.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *fakeLedger) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

// appServer serves a fixed instance count and records PUT bodies.
type appServer struct {
	mu        sync.Mutex
	instances int
	puts      []int
}

func (s *appServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(map[string]interface{}{
			"app": map[string]interface{}{
				"id":        "/svc",
				"instances": s.instances,
			},
		})
	case http.MethodPut:
		var body struct {
			Instances int `json:"instances"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		s.puts = append(s.puts, body.Instances)
		w.WriteHeader(http.StatusOK)
	}
}

func (s *appServer) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

func newTestLoop(t *testing.T, cfg config.AppConfig, sample []float64) (*ControlLoop, *appServer, *fakeSink, *fakeLedger) {
	t.Helper()
	srv := &appServer{instances: 4}
	httpSrv := httptest.NewServer(srv)
	t.Cleanup(httpSrv.Close)

	client := apiclient.New(httpSrv.URL, "")
	handle := apphandle.New(client, cfg, httpSrv.URL)
	mode, err := scalingmode.New(cfg.MinRange, cfg.MaxRange)
	if err != nil {
		t.Fatalf("scalingmode.New: %v", err)
	}
	sink := &fakeSink{}
	ledger := &fakeLedger{}
	formatter := alarm.NewFormatter(config.AlarmAPI{Params: map[string]string{}})

	cl := New(cfg, handle, mode, &fakeProbe{sample: sample}, formatter, sink, ledger, nil, time.Hour)
	return cl, srv, sink, ledger
}

func baseCfg() config.AppConfig {
	return config.AppConfig{
		Tenant:              "team-a",
		AppID:               "/svc",
		TriggerMode:         "mem",
		AutoscaleMultiplier: 2.0,
		MinInstances:        1,
		MaxInstances:        20,
		CoolDownFactor:      2,
		ScaleUpFactor:       3,
		MinRange:            []float64{20},
		MaxRange:            []float64{70},
	}
}

// TestTriggerFiresSetInstancesOnThirdCycle covers P2: exactly scale_up_factor
// consecutive +1 directions causes exactly one SetInstances with
// target=ceil(current*multiplier).
func TestTriggerFiresSetInstancesOnThirdCycle(t *testing.T) {
	cfg := baseCfg()
	cl, srv, sink, ledger := newTestLoop(t, cfg, []float64{90})

	ctx := context.Background()
	cl.runCycle(ctx)
	cl.runCycle(ctx)
	if srv.putCount() != 0 {
		t.Fatalf("expected no SetInstances before the 3rd cycle, got %d", srv.putCount())
	}
	cl.runCycle(ctx)

	if srv.putCount() != 1 {
		t.Fatalf("expected exactly 1 SetInstances call, got %d", srv.putCount())
	}
	if srv.puts[0] != 8 {
		t.Fatalf("expected target=8 (4*2.0), got %d", srv.puts[0])
	}
	if sink.count() == 0 {
		t.Fatal("expected at least one alarm emitted")
	}
	found := false
	for _, k := range ledger.kinds() {
		if k == "scale_up" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a scale_up audit event, got %v", ledger.kinds())
	}
}

// TestTriggerClampsToMaxInstances covers the clamp branch of ScaleAction(up=true).
func TestTriggerClampsToMaxInstances(t *testing.T) {
	cfg := baseCfg()
	cfg.ScaleUpFactor = 1
	cfg.MaxInstances = 6
	cl, srv, _, _ := newTestLoop(t, cfg, []float64{90})

	cl.runCycle(context.Background())

	if srv.putCount() != 1 {
		t.Fatalf("expected exactly 1 SetInstances call, got %d", srv.putCount())
	}
	if srv.puts[0] != 6 {
		t.Fatalf("expected target clamped to max_instances=6, got %d", srv.puts[0])
	}
}

// TestDownscaleSuppressedIssuesNoSetInstances covers the downscale no-op
// ("scale down trigger off") and its audit trail, per spec.md §4.5.
func TestDownscaleSuppressedIssuesNoSetInstances(t *testing.T) {
	cfg := baseCfg()
	cl, srv, _, ledger := newTestLoop(t, cfg, []float64{10})

	ctx := context.Background()
	cl.runCycle(ctx)
	cl.runCycle(ctx)

	if srv.putCount() != 0 {
		t.Fatalf("expected zero SetInstances calls on downscale, got %d", srv.putCount())
	}
	found := false
	for _, k := range ledger.kinds() {
		if k == "scale_down_suppressed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a scale_down_suppressed audit event, got %v", ledger.kinds())
	}
}

// TestWithinBandSequenceResets covers scenario 4: probe sequence
// [80, 80, 10, 80, 80] with scale_up_factor=3 never fires, since the 10
// resets scale_up_count.
func TestWithinBandSequenceResets(t *testing.T) {
	cfg := baseCfg()
	cfg.MinRange = []float64{20}
	cfg.MaxRange = []float64{70}
	cl, srv, _, _ := newTestLoop(t, cfg, nil)

	sequence := [][]float64{{80}, {80}, {10}, {80}, {80}}
	ctx := context.Background()
	for _, s := range sequence {
		cl.probe = &fakeProbe{sample: s}
		cl.runCycle(ctx)
	}
	if srv.putCount() != 0 {
		t.Fatalf("expected no SetInstances calls, got %d", srv.putCount())
	}
}

// TestAbsentAppSkipsCycleWithoutTouchingCounters covers skip-if-absent: a
// 404 leaves hysteresis counters unchanged and never reaches the probe.
func TestAbsentAppSkipsCycleWithoutTouchingCounters(t *testing.T) {
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer httpSrv.Close()

	cfg := baseCfg()
	client := apiclient.New(httpSrv.URL, "")
	handle := apphandle.New(client, cfg, httpSrv.URL)
	mode, _ := scalingmode.New(cfg.MinRange, cfg.MaxRange)
	cl := New(cfg, handle, mode, &fakeProbe{err: context.DeadlineExceeded}, alarm.Formatter{}, &fakeSink{}, nil, nil, time.Hour)

	cl.state.ScaleUpCount = 1
	cl.runCycle(context.Background())
	if cl.state.ScaleUpCount != 1 {
		t.Fatalf("expected scale_up_count unchanged on absent app, got %d", cl.state.ScaleUpCount)
	}
}

// TestProbeErrorSkipsCycleWithoutTouchingCounters covers skip-on-probe-error.
func TestProbeErrorSkipsCycleWithoutTouchingCounters(t *testing.T) {
	cfg := baseCfg()
	cl, _, _, _ := newTestLoop(t, cfg, nil)
	cl.probe = &fakeProbe{err: context.DeadlineExceeded}

	cl.state.CoolDownCount = 1
	cl.runCycle(context.Background())
	if cl.state.CoolDownCount != 1 {
		t.Fatalf("expected cool_down_count unchanged on probe error, got %d", cl.state.CoolDownCount)
	}
}

// TestStopInterruptsSleepPromptly covers cancellation: Stop must interrupt
// the inter-cycle sleep rather than waiting a full interval.
func TestStopInterruptsSleepPromptly(t *testing.T) {
	cfg := baseCfg()
	cl, _, _, _ := newTestLoop(t, cfg, []float64{10})
	cl.interval = time.Hour

	done := make(chan struct{})
	go func() {
		cl.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cl.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after Stop")
	}
}
