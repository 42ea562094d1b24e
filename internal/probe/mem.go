package probe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marathon-ops/autoscaler/internal/apiclient"
)

// MemProbe samples memory utilization by aggregating the orchestrator's
// agent statistics for the app's running tasks (§2 component 2: "memory
// utilization from agent statistics"). The statistics endpoint's exact
// shape is an orchestrator implementation detail outside this spec's core;
// MemProbe only depends on APIClient.CachedGet and a documented response
// shape of {"percent": <float>} per app, so the underlying aggregation
// (summing per-task resident set size over per-task memory limit, however
// the orchestrator chooses to expose it) stays swappable without touching
// the control loop.
type MemProbe struct {
	client *apiclient.Client
	appID  string
}

// NewMemProbeFactory returns a Factory registering MemProbe under the
// "mem" trigger_mode. One Factory is shared by every app using that
// trigger_mode; it closes over the per-app appID at invocation time.
func NewMemProbeFactory(client *apiclient.Client) Factory {
	return func(appID, displayName string) Probe {
		return &MemProbe{client: client, appID: appID}
	}
}

type memStatsResponse struct {
	Percent float64 `json:"percent"`
}

func (p *MemProbe) Sample(ctx context.Context, appID string) ([]float64, error) {
	path := fmt.Sprintf("/system/v1/agent/stats%s", p.appID)
	body, err := p.client.CachedGet(ctx, path)
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	var stats memStatsResponse
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, &TransientError{Err: errf("mem probe: decoding agent stats for %s: %w", appID, err)}
	}
	return []float64{stats.Percent}, nil
}
