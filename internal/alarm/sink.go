package alarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/marathon-ops/autoscaler/internal/config"
)

// Sink is the capability ControlLoop consumes to emit alarms (§9 "redesign
// as an explicit AlarmSink interface. Logging and alarming are orthogonal
// in the redesign."). Implementations must be safe for concurrent emission
// from many ControlLoops (§5). alarmKey is the per-app AppConfig.AlarmKey,
// carried in the request_params query string per §6 ("Query string carries
// a fixed request_params record (e.g., key=<alarm_key>)"), not in the
// payload body.
type Sink interface {
	Emit(ctx context.Context, payload Payload, alarmKey string) error
}

// HTTPSink POSTs the alarm payload to a configured host+path, with a
// request_params query string carried on every call (§6). params is the
// fixed set of query params from Settings.AlarmAPI.Params; if it sets
// "key", that value overrides the per-app alarmKey passed to Emit, matching
// the ground-truth original's global `ALARM_API_BODY_GLOBALKEY` override
// (original_source/autoscaler/autoscaler.py's alarm()).
type HTTPSink struct {
	httpClient *http.Client
	host       string
	path       string
	params     map[string]string
}

// NewHTTPSink builds an HTTPSink from Settings.AlarmAPI.
func NewHTTPSink(api config.AlarmAPI) *HTTPSink {
	return &HTTPSink{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		host:       api.Host,
		path:       api.URL,
		params:     api.Params,
	}
}

func (s *HTTPSink) Emit(ctx context.Context, payload Payload, alarmKey string) error {
	u, err := url.Parse(s.host + s.path)
	if err != nil {
		return fmt.Errorf("alarm sink: parsing url: %w", err)
	}
	q := u.Query()
	for k, v := range s.params {
		q.Set(k, v)
	}
	if q.Get("key") == "" && alarmKey != "" {
		q.Set("key", alarmKey)
	}
	u.RawQuery = q.Encode()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alarm sink: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alarm sink: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alarm sink: posting alarm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alarm sink: unexpected status %d", resp.StatusCode)
	}
	return nil
}
