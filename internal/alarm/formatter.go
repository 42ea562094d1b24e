// Package alarm builds and emits alarm payloads for scaling events and
// threshold breaches.
package alarm

import (
	"fmt"
	"time"

	"github.com/marathon-ops/autoscaler/internal/config"
)

// Level is the alarm severity tag carried in the payload's alarmLevel
// field.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Event is the per-event data an AlarmFormatter combines with an app's
// static policy knobs to build a full Payload.
type Event struct {
	Level  Level
	Kind   string // e.g. "scale_up", "scale_up_clamped", "scale_down_suppressed"
	Detail string
}

// Payload is the wire body posted to the alarm sink (§6), field names
// preserved exactly as specified.
type Payload struct {
	AlarmLevel string `json:"alarmLevel"`
	Area       string `json:"area"`
	Cluster    string `json:"cluster"`
	Detail     string `json:"detail"`
	DingAlarm  bool   `json:"dingAlarm"`
	Key        string `json:"key"`
	Project    string `json:"project"`
	Source     string `json:"source"`
	StartTime  string `json:"startTime"`
	Threshold  string `json:"threshold"`
	Type       string `json:"type"`
}

// Formatter builds alarm Payloads from a fixed template plus per-event
// fields. Cluster/Area/Project/DingAlarm come from Settings.AlarmAPI.Params
// so they are configurable without a code change, matching §9's "global
// alarm template with optional global key override... model as an
// immutable Settings value".
type Formatter struct {
	Area      string
	Cluster   string
	Project   string
	DingAlarm bool
}

// NewFormatter builds a Formatter from the alarm_api.params map in Settings
// (keys "area", "cluster", "project", "ding_alarm").
func NewFormatter(params config.AlarmAPI) Formatter {
	f := Formatter{
		Area:    params.Params["area"],
		Cluster: params.Params["cluster"],
		Project: params.Params["project"],
	}
	f.DingAlarm = params.Params["ding_alarm"] == "true"
	return f
}

// templateKey is the payload body's fixed "key" field, carried over from
// the fixed alarm body template in the ground-truth original
// (original_source/autoscaler/autoscaler.py's ALARM_API_BODY["body"]["key"]
// == "starship", never overwritten by the per-app alarm_key). The per-app
// key belongs in the request_params query string instead (see
// alarm.Sink.Emit), not in this field.
const templateKey = "starship"

// Format builds a Payload for one app and event. source = tenant + app_id
// per spec.md §6. startTime is emitted as UTC RFC3339 (SPEC_FULL.md Open
// Question #1 resolution), not the source system's naive local timestamp.
func (f Formatter) Format(cfg config.AppConfig, ev Event) Payload {
	return Payload{
		AlarmLevel: string(ev.Level),
		Area:       f.Area,
		Cluster:    f.Cluster,
		Detail:     ev.Detail,
		DingAlarm:  f.DingAlarm,
		Key:        templateKey,
		Project:    f.Project,
		Source:     cfg.Tenant + cfg.AppID,
		StartTime:  time.Now().UTC().Format(time.RFC3339),
		Threshold:  thresholdSummary(cfg),
		Type:       ev.Kind,
	}
}

// thresholdSummary renders a human-readable summary of the app's policy
// knobs, used as the Threshold field.
func thresholdSummary(cfg config.AppConfig) string {
	return fmt.Sprintf(
		"min=%d max=%d multiplier=%.2f scale_up_factor=%d cool_down_factor=%d min_range=%v max_range=%v",
		cfg.MinInstances, cfg.MaxInstances, cfg.AutoscaleMultiplier,
		cfg.ScaleUpFactor, cfg.CoolDownFactor, cfg.MinRange, cfg.MaxRange,
	)
}
