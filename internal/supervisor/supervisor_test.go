package supervisor

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
	"github.com/marathon-ops/autoscaler/internal/config"
	"github.com/marathon-ops/autoscaler/internal/probe"
)

type fakeSink struct{}

func (fakeSink) Emit(ctx context.Context, p alarm.Payload, alarmKey string) error { return nil }

// fakeProbe always reports a hold-range sample so started loops never fire
// SetInstances during these reconciliation-focused tests.
type fakeProbe struct{}

func (fakeProbe) Sample(ctx context.Context, appID string) ([]float64, error) {
	return []float64{50}, nil
}

type fakeSource struct {
	mu       sync.Mutex
	settings config.Settings
	apps     []config.AppConfig
	fetchErr error
}

func (s *fakeSource) FetchSettings(ctx context.Context) (config.Settings, error) {
	return s.settings, nil
}

func (s *fakeSource) FetchApps(ctx context.Context) ([]config.AppConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := make([]config.AppConfig, len(s.apps))
	copy(out, s.apps)
	return out, nil
}

func (s *fakeSource) setApps(apps []config.AppConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps = apps
}

func testAppConfig(appID string, multiplier float64) config.AppConfig {
	return config.AppConfig{
		Tenant:              "team-a",
		AppID:               appID,
		TriggerMode:         "test",
		AutoscaleMultiplier: multiplier,
		MinInstances:        1,
		MaxInstances:        20,
		CoolDownFactor:      5,
		ScaleUpFactor:       5,
		MinRange:            []float64{10},
		MaxRange:            []float64{90},
	}
}

func newTestSupervisor(t *testing.T, source *fakeSource) *Supervisor {
	return newTestSupervisorWithInterval(t, source, 3600)
}

func newTestSupervisorWithInterval(t *testing.T, source *fakeSource, intervalSecs int) *Supervisor {
	t.Helper()
	appSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"app": map[string]interface{}{"id": "/svc", "instances": 4},
		})
	}))
	t.Cleanup(appSrv.Close)
	source.settings = config.Settings{DCOSMaster: appSrv.URL, Interval: intervalSecs}

	build := func(settings config.Settings) (*apiclient.Client, *probe.Registry, alarm.Sink) {
		client := apiclient.New(settings.DCOSMaster, "")
		reg := probe.NewRegistry()
		reg.Register("test", func(appID, displayName string) probe.Probe { return fakeProbe{} })
		return client, reg, fakeSink{}
	}
	return New(source, build, nil, nil)
}

func TestStartupStartsOneLoopPerManagedApp(t *testing.T) {
	source := &fakeSource{apps: []config.AppConfig{testAppConfig("/svc-a", 2.0), testAppConfig("/svc-b", 2.0)}}
	s := newTestSupervisor(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for s.FleetSize() != 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.FleetSize(); got != 2 {
		t.Fatalf("expected 2 loops started, got %d", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after ctx cancellation")
	}
}

func TestStartupDropsAppsWithUnregisteredTriggerMode(t *testing.T) {
	unknown := testAppConfig("/svc-a", 2.0)
	unknown.TriggerMode = "unknown-mode"
	source := &fakeSource{apps: []config.AppConfig{unknown}}
	s := newTestSupervisor(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	if got := s.FleetSize(); got != 0 {
		t.Fatalf("expected 0 loops started for an unregistered trigger_mode, got %d", got)
	}
}

// TestReconciliationAddsRemovesAndReplaces covers the added/removed/
// modified set-difference algorithm and replace-on-config-change
// (scenario 6 in spec.md §8): counters for a replaced app start at 0,
// which this test can't observe directly but the fresh loop + fleet churn
// it exercises is the same code path.
func TestReconciliationAddsRemovesAndReplaces(t *testing.T) {
	source := &fakeSource{apps: []config.AppConfig{testAppConfig("/keep", 2.0), testAppConfig("/remove", 2.0)}}
	s := newTestSupervisorWithInterval(t, source, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitForFleetSize(t, s, 2)

	source.setApps([]config.AppConfig{
		testAppConfig("/keep", 2.0),
		testAppConfig("/added", 2.0),
		testAppConfig("/replaced", 3.0),
	})
	// Prime the "replaced" key so the next reconciliation sees a modified
	// AppConfig rather than a fresh add.
	source.setApps([]config.AppConfig{
		testAppConfig("/keep", 2.0),
		testAppConfig("/added", 2.0),
		testAppConfig("/replaced", 2.0),
	})
	waitForFleetSize(t, s, 3)

	source.setApps([]config.AppConfig{
		testAppConfig("/keep", 2.0),
		testAppConfig("/added", 2.0),
		testAppConfig("/replaced", 3.0), // modified multiplier
	})
	time.Sleep(1500 * time.Millisecond)
	if got := s.FleetSize(); got != 3 {
		t.Fatalf("expected fleet size to remain 3 after a replace, got %d", got)
	}
}

func waitForFleetSize(t *testing.T, s *Supervisor, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.FleetSize() != n && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := s.FleetSize(); got != n {
		t.Fatalf("expected fleet size %d, got %d", n, got)
	}
}

func TestFatalOnStartupAppsFetchError(t *testing.T) {
	source := &fakeSource{fetchErr: context.DeadlineExceeded}
	s := New(source, func(settings config.Settings) (*apiclient.Client, *probe.Registry, alarm.Sink) {
		return apiclient.New("http://example.invalid", ""), probe.NewRegistry(), fakeSink{}
	}, nil, nil)

	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected Run to return an error when the initial FetchApps fails")
	}
}
