package config

import "context"

// ConfigError is the fatal-at-startup error kind (§7). Only raised while
// fetching the initial configuration or app list; never at runtime.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return "config: " + e.Op + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Source is the capability the Supervisor consumes to learn the process's
// static settings and the desired app fleet. Two implementations exist:
// HTTPSource (production, fetches a JSON document over HTTP) and EnvSource
// (legacy, reads a single JSON blob from an environment variable). See
// SPEC_FULL.md's "Open questions resolved" for why both are retained.
type Source interface {
	// FetchSettings returns the static process configuration. Called once
	// at startup; a failure here is fatal (ConfigError).
	FetchSettings(ctx context.Context) (Settings, error)

	// FetchApps returns the desired application fleet. Called at startup
	// and once per supervisor reconciliation interval. A failure after
	// startup is logged and the previous fleet is left undisturbed (§7);
	// only the first call's failure is fatal.
	FetchApps(ctx context.Context) ([]AppConfig, error)
}
