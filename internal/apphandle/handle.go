// Package apphandle resolves an application's orchestrator-side metadata:
// existence, current instance count, and display name.
package apphandle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/marathon-ops/autoscaler/internal/apiclient"
	"github.com/marathon-ops/autoscaler/internal/config"
)

// marathonApp mirrors the subset of the orchestrator's app JSON this
// package cares about (§6 "GET /service/{tenant}/v2/apps{app_id}").
type marathonApp struct {
	App struct {
		ID        string `json:"id"`
		Instances int    `json:"instances"`
		Tasks     []struct {
			ID string `json:"id"`
		} `json:"tasks"`
		Env map[string]string `json:"env"`
	} `json:"app"`
}

// Handle is a thin accessor over one application's orchestrator resource.
// All reads go through Client.CachedGet so multiple AppHandle calls within
// one control-loop cycle share a single upstream fetch (§4.3).
type Handle struct {
	client  *apiclient.Client
	cfg     config.AppConfig
	baseURI string

	displayName string // cached on first successful Exists()
}

// New builds a Handle for the given app, issuing requests against
// client using baseURI (the per-tenant orchestrator base, from
// AppConfig.BaseURI).
func New(client *apiclient.Client, cfg config.AppConfig, baseURI string) *Handle {
	return &Handle{client: client, cfg: cfg, baseURI: baseURI}
}

func (h *Handle) path() string {
	return fmt.Sprintf("/v2/apps%s", h.cfg.AppID)
}

func (h *Handle) fetch(ctx context.Context) (*marathonApp, error) {
	body, err := h.client.CachedGet(ctx, h.path())
	if err != nil {
		return nil, err
	}
	var app marathonApp
	if err := json.Unmarshal(body, &app); err != nil {
		return nil, fmt.Errorf("apphandle: decoding app %s: %w", h.cfg.AppID, err)
	}
	return &app, nil
}

// Exists returns true iff the orchestrator reports an application with a
// matching id. A 404 from the orchestrator is not an error here -- it is
// the defined signal that the app does not exist (§7). On first success it
// also caches the app's display name from the orchestrator's env metadata,
// if present (APP_NAME), for use by probes that need it (e.g. the JVM
// probe's PromQL query).
func (h *Handle) Exists(ctx context.Context) bool {
	app, err := h.fetch(ctx)
	if err != nil {
		if apiclient.IsNotFound(err) {
			return false
		}
		log.Printf("apphandle: exists check failed for %s%s: %v", h.cfg.Tenant, h.cfg.AppID, err)
		return false
	}
	if name, ok := app.App.Env["APP_NAME"]; ok && name != "" {
		h.displayName = name
	}
	return true
}

// DisplayName returns the cached APP_NAME metadata, or "" if none has been
// observed yet (call Exists first).
func (h *Handle) DisplayName() string {
	return h.displayName
}

// Instances returns the currently deployed instance count, or 0 with a
// warning log if the app cannot be read (§4.3).
func (h *Handle) Instances(ctx context.Context) int {
	app, err := h.fetch(ctx)
	if err != nil {
		log.Printf("apphandle: instances lookup failed for %s%s: %v", h.cfg.Tenant, h.cfg.AppID, err)
		return 0
	}
	return app.App.Instances
}

// SetInstances issues an uncached PUT writing {"instances": n} to the app's
// orchestrator resource.
func (h *Handle) SetInstances(ctx context.Context, n int) error {
	body, err := json.Marshal(struct {
		Instances int `json:"instances"`
	}{Instances: n})
	if err != nil {
		return fmt.Errorf("apphandle: marshaling instances payload: %w", err)
	}
	_, err = h.client.Request(ctx, "PUT", h.path(), body)
	return err
}
