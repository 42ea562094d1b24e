package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSource fetches configuration over HTTP. This is the intended
// production path (SPEC_FULL.md Open Question #2).
type HTTPSource struct {
	SettingsURL string
	HTTPClient  *http.Client
}

// NewHTTPSource builds an HTTPSource with a bounded-timeout client. The
// client is separate from APIClient's: config fetches happen rarely and are
// not subject to the per-interval cache/coalescing rules that govern
// orchestrator reads.
func NewHTTPSource(settingsURL string) *HTTPSource {
	return &HTTPSource{
		SettingsURL: settingsURL,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPSource) FetchSettings(ctx context.Context) (Settings, error) {
	var rc RemoteConfig
	if err := s.getJSON(ctx, s.SettingsURL, &rc); err != nil {
		return Settings{}, &ConfigError{Op: "fetch settings", Err: err}
	}
	if rc.DCOSMaster == "" || rc.ScaleAPIURL == "" {
		return Settings{}, &ConfigError{Op: "fetch settings", Err: fmt.Errorf("missing dcos_master or scale_api_url in response")}
	}
	return FromRemote(rc), nil
}

func (s *HTTPSource) FetchApps(ctx context.Context) ([]AppConfig, error) {
	// The scale_api_url lives in the same document as the static settings,
	// so re-fetch the settings document each time; this keeps FetchApps
	// self-contained and lets operators rotate scale_api_url without a
	// process restart.
	var rc RemoteConfig
	if err := s.getJSON(ctx, s.SettingsURL, &rc); err != nil {
		return nil, err
	}
	var resp ScaleAPIResponse
	if err := s.getJSON(ctx, rc.ScaleAPIURL, &resp); err != nil {
		return nil, err
	}

	apps := make([]AppConfig, 0, len(resp.Data.MarathonApps))
	for _, a := range resp.Data.MarathonApps {
		apps = append(apps, a.Normalize())
	}
	return apps, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}
