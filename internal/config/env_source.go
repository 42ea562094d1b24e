package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// EnvSource is the legacy entry point: the whole RemoteConfig document,
// pre-fetched and stored as a single environment variable. It is retained
// as a secondary ConfigSource rather than removed (SPEC_FULL.md Open
// Question #2): useful in environments where an init container or operator
// tooling already resolves configuration once and injects it, with no
// config HTTP endpoint reachable from the autoscaler process itself.
//
// Unlike HTTPSource, EnvSource's FetchApps re-reads and re-decodes the same
// environment variable on every call -- the document is static for the
// lifetime of the process, so this intentionally never reflects drift
// mid-run. Operators who need drift detection should use HTTPSource.
type EnvSource struct {
	EnvVar string
}

// NewEnvSource builds an EnvSource reading from the given environment
// variable name.
func NewEnvSource(envVar string) *EnvSource {
	return &EnvSource{EnvVar: envVar}
}

func (s *EnvSource) load() (RemoteConfig, error) {
	raw := os.Getenv(s.EnvVar)
	if raw == "" {
		return RemoteConfig{}, fmt.Errorf("environment variable %s is not set", s.EnvVar)
	}
	var rc RemoteConfig
	if err := json.Unmarshal([]byte(raw), &rc); err != nil {
		return RemoteConfig{}, fmt.Errorf("decoding %s: %w", s.EnvVar, err)
	}
	return rc, nil
}

func (s *EnvSource) FetchSettings(ctx context.Context) (Settings, error) {
	rc, err := s.load()
	if err != nil {
		return Settings{}, &ConfigError{Op: "fetch settings", Err: err}
	}
	return FromRemote(rc), nil
}

func (s *EnvSource) FetchApps(ctx context.Context) ([]AppConfig, error) {
	// EnvSource carries the marathon_apps list inline under the same
	// envelope shape as the scale_api_url response, keyed identically, so
	// operators can generate one document for both.
	var full struct {
		Data struct {
			MarathonApps []AppConfig `json:"marathon_apps"`
		} `json:"data"`
	}
	raw := os.Getenv(s.EnvVar)
	if raw == "" {
		return nil, fmt.Errorf("environment variable %s is not set", s.EnvVar)
	}
	if err := json.Unmarshal([]byte(raw), &full); err != nil {
		return nil, fmt.Errorf("decoding %s apps: %w", s.EnvVar, err)
	}
	apps := make([]AppConfig, 0, len(full.Data.MarathonApps))
	for _, a := range full.Data.MarathonApps {
		apps = append(apps, a.Normalize())
	}
	return apps, nil
}
