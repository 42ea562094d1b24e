package alarm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/marathon-ops/autoscaler/internal/config"
)

func TestFormatBuildsPayload(t *testing.T) {
	f := NewFormatter(config.AlarmAPI{Params: map[string]string{
		"area": "us-east", "cluster": "prod", "project": "marathon", "ding_alarm": "true",
	}})
	cfg := config.AppConfig{Tenant: "team-a", AppID: "/svc", AlarmKey: "svc-key", MinInstances: 1, MaxInstances: 10, AutoscaleMultiplier: 2}

	p := f.Format(cfg, Event{Level: LevelWarning, Kind: "scale_up", Detail: "current 4, scaling to 8"})

	if p.Source != "team-a/svc" {
		t.Fatalf("expected source team-a/svc, got %q", p.Source)
	}
	if p.Key != templateKey {
		t.Fatalf("expected body key to stay at the fixed template value %q, got %q", templateKey, p.Key)
	}
	if !p.DingAlarm {
		t.Fatal("expected ding_alarm true")
	}
	if !strings.HasSuffix(p.StartTime, "Z") {
		t.Fatalf("expected UTC RFC3339 startTime, got %q", p.StartTime)
	}
	if p.Detail != "current 4, scaling to 8" {
		t.Fatalf("unexpected detail: %q", p.Detail)
	}
}

func TestHTTPSinkPostsWithQueryParams(t *testing.T) {
	var gotQuery string
	var gotPayload Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(config.AlarmAPI{Host: srv.URL, URL: "/alarms", Params: map[string]string{"key": "abc"}})
	p := Payload{Detail: "boom", Source: "team-a/svc"}

	// Settings.AlarmAPI.Params sets a global "key" override, so the
	// per-app alarmKey passed to Emit must not take effect.
	if err := sink.Emit(context.Background(), p, "svc-key"); err != nil {
		t.Fatal(err)
	}
	if gotQuery != "key=abc" {
		t.Fatalf("expected global override query key=abc, got %q", gotQuery)
	}
	if gotPayload.Detail != "boom" {
		t.Fatalf("expected payload roundtrip, got %+v", gotPayload)
	}
}

func TestHTTPSinkUsesPerAppAlarmKeyWithoutGlobalOverride(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(config.AlarmAPI{Host: srv.URL, URL: "/alarms"})
	if err := sink.Emit(context.Background(), Payload{}, "svc-key"); err != nil {
		t.Fatal(err)
	}
	if gotQuery != "key=svc-key" {
		t.Fatalf("expected per-app alarm key in query, got %q", gotQuery)
	}
}

func TestHTTPSinkErrorsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(config.AlarmAPI{Host: srv.URL, URL: "/alarms"})
	if err := sink.Emit(context.Background(), Payload{}, "svc-key"); err == nil {
		t.Fatal("expected error on 5xx")
	}
}
