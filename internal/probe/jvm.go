package probe

import (
	"context"
	"fmt"
	"log"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// JVMProbe samples JVM heap utilization via Prometheus, using exactly the
// query template from spec.md §6:
//
//	sum(agent_stats_jvm_gc{application="<APP_NAME>", name="heap_used"}) /
//	sum(agent_stats_jvm_gc{application="<APP_NAME>", name="heap_max"})
//
// multiplied by 100. Grounded in
// vishakha-ramani-inferno-autoscaler/internal/collector/collector.go's use
// of promv1.API.Query against the same client library.
type JVMProbe struct {
	api         promv1.API
	displayName string
}

// NewJVMProbeFactory returns a Factory registering JVMProbe under the "jvm"
// trigger_mode. prometheusHost is the Settings.PrometheusHost value.
func NewJVMProbeFactory(prometheusHost string) (Factory, error) {
	client, err := promapi.NewClient(promapi.Config{Address: prometheusHost})
	if err != nil {
		return nil, fmt.Errorf("jvm probe: building prometheus client: %w", err)
	}
	api := promv1.NewAPI(client)

	return func(appID, displayName string) Probe {
		return &JVMProbe{api: api, displayName: displayName}
	}, nil
}

func (p *JVMProbe) query() string {
	return fmt.Sprintf(
		`sum(agent_stats_jvm_gc{application="%s",name="heap_used"}) / sum(agent_stats_jvm_gc{application="%s",name="heap_max"})`,
		p.displayName, p.displayName,
	)
}

func (p *JVMProbe) Sample(ctx context.Context, appID string) ([]float64, error) {
	if p.displayName == "" {
		return nil, &TransientError{Err: errf("jvm probe: no APP_NAME metadata resolved for %s yet", appID)}
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	val, warnings, err := p.api.Query(queryCtx, p.query(), time.Now())
	if err != nil {
		return nil, &TransientError{Err: errf("jvm probe: querying prometheus for %s: %w", appID, err)}
	}
	for _, w := range warnings {
		log.Printf("jvm probe: prometheus warning for %s: %s", appID, w)
	}

	vec, ok := val.(model.Vector)
	if !ok || len(vec) == 0 {
		return nil, &TransientError{Err: errf("jvm probe: no datapoint for %s", appID)}
	}

	heapRatio := float64(vec[0].Value)
	return []float64{heapRatio * 100}, nil
}
