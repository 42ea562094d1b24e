// Package config holds the immutable settings this process is bootstrapped
// with and the AppConfig records that describe each application under
// autoscaler management.
package config

import (
	"fmt"
	"strings"
)

// AppConfig is the immutable per-application record fetched from the
// scale_api_url endpoint. Identity is (Tenant, AppID); two AppConfigs are
// value-equal (for replace-on-change detection) when every field matches.
type AppConfig struct {
	Tenant string `json:"tenant"`
	AppID  string `json:"app_id"`

	TriggerMode         string    `json:"trigger_mode"`
	AutoscaleMultiplier float64   `json:"autoscale_multiplier"`
	MinInstances        int       `json:"min_instances"`
	MaxInstances        int       `json:"max_instances"`
	CoolDownFactor      int       `json:"cool_down_factor"`
	ScaleUpFactor       int       `json:"scale_up_factor"`
	MinRange            []float64 `json:"min_range"`
	MaxRange            []float64 `json:"max_range"`
	LogLevel            string    `json:"log_level"`
	AlarmKey            string    `json:"alarm_key"`
}

// Key identifies an AppConfig by its (tenant, app_id) pair.
type Key struct {
	Tenant string
	AppID  string
}

// Key returns the fleet-reconciliation identity of this AppConfig.
func (c AppConfig) Key() Key {
	return Key{Tenant: c.Tenant, AppID: c.AppID}
}

// Normalize canonicalizes fields that have more than one valid textual
// representation, e.g. an app_id without a leading slash. It is applied to
// every AppConfig as it is decoded from a ConfigSource, before the value is
// ever compared or stored, so equality checks in the supervisor never have
// to account for representation differences.
func (c AppConfig) Normalize() AppConfig {
	if c.AppID != "" && !strings.HasPrefix(c.AppID, "/") {
		c.AppID = "/" + c.AppID
	}
	return c
}

// Validate reports the first structural problem found in the AppConfig, or
// nil if it is well-formed. Malformed entries are dropped by the caller
// rather than propagated as fatal errors -- a single bad app in a fleet of
// hundreds should not stop the others from being managed.
func (c AppConfig) Validate() error {
	if c.Tenant == "" {
		return fmt.Errorf("tenant must not be empty")
	}
	if c.AppID == "" {
		return fmt.Errorf("app_id must not be empty")
	}
	if c.AutoscaleMultiplier < 1.0 {
		return fmt.Errorf("autoscale_multiplier must be >= 1.0, got %v", c.AutoscaleMultiplier)
	}
	if c.MinInstances < 0 || c.MinInstances > c.MaxInstances {
		return fmt.Errorf("min_instances/max_instances out of order: %d/%d", c.MinInstances, c.MaxInstances)
	}
	if c.CoolDownFactor < 1 {
		return fmt.Errorf("cool_down_factor must be >= 1, got %d", c.CoolDownFactor)
	}
	if c.ScaleUpFactor < 1 {
		return fmt.Errorf("scale_up_factor must be >= 1, got %d", c.ScaleUpFactor)
	}
	if len(c.MinRange) == 0 || len(c.MinRange) != len(c.MaxRange) {
		return fmt.Errorf("min_range/max_range must be non-empty and equal length: %d/%d", len(c.MinRange), len(c.MaxRange))
	}
	return nil
}

// Equal reports whether two AppConfigs are value-equal for the purposes of
// supervisor replace-on-change detection (§4.6 "modified" set).
func (c AppConfig) Equal(other AppConfig) bool {
	if c.Tenant != other.Tenant || c.AppID != other.AppID ||
		c.TriggerMode != other.TriggerMode ||
		c.AutoscaleMultiplier != other.AutoscaleMultiplier ||
		c.MinInstances != other.MinInstances ||
		c.MaxInstances != other.MaxInstances ||
		c.CoolDownFactor != other.CoolDownFactor ||
		c.ScaleUpFactor != other.ScaleUpFactor ||
		c.LogLevel != other.LogLevel ||
		c.AlarmKey != other.AlarmKey {
		return false
	}
	return floatSliceEqual(c.MinRange, other.MinRange) && floatSliceEqual(c.MaxRange, other.MaxRange)
}

func floatSliceEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// BaseURI derives the orchestrator's per-tenant base URI by substitution,
// e.g. "https://marathon.example.com" + tenant "team-a" yields the prefix
// used to build "/service/team-a/v2/apps{app_id}" requests.
func (c AppConfig) BaseURI(dcosMaster string) string {
	return fmt.Sprintf("%s/service/%s", strings.TrimRight(dcosMaster, "/"), c.Tenant)
}

// AlarmAPI describes the alarm sink endpoint and its fixed query params.
type AlarmAPI struct {
	Host   string            `json:"host"`
	URL    string            `json:"url"`
	Params map[string]string `json:"params"`
}

// RemoteConfig is the JSON document returned by the configuration source's
// primary endpoint (§6).
type RemoteConfig struct {
	DCOSMaster     string   `json:"dcos_master"`
	PrometheusHost string   `json:"prometheus_host"`
	IntervalSecs   int      `json:"internal"` // sic: field name inherited from the wire format
	AlarmAPI       AlarmAPI `json:"alarm_api"`
	ScaleAPIURL    string   `json:"scale_api_url"`
	BearerToken    string   `json:"bearer_token,omitempty"`
}

// ScaleAPIResponse is the JSON document returned by RemoteConfig.ScaleAPIURL.
type ScaleAPIResponse struct {
	Data struct {
		MarathonApps []AppConfig `json:"marathon_apps"`
	} `json:"data"`
}

// Settings is the immutable, process-wide configuration value built once
// during bootstrap (§9 "Global process state... model as an immutable
// Settings value"). It is passed by reference to every component that needs
// it; nothing in this repository reads from package-level mutable state.
type Settings struct {
	DCOSMaster     string
	PrometheusHost string
	Interval       int // seconds
	AlarmAPI       AlarmAPI
	BearerToken    string
}

// FromRemote builds a Settings value from a freshly fetched RemoteConfig.
func FromRemote(rc RemoteConfig) Settings {
	return Settings{
		DCOSMaster:     rc.DCOSMaster,
		PrometheusHost: rc.PrometheusHost,
		Interval:       rc.IntervalSecs,
		AlarmAPI:       rc.AlarmAPI,
		BearerToken:    rc.BearerToken,
	}
}
