package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marathon-ops/autoscaler/internal/alarm"
	"github.com/marathon-ops/autoscaler/internal/apiclient"
	"github.com/marathon-ops/autoscaler/internal/audit"
	"github.com/marathon-ops/autoscaler/internal/config"
	"github.com/marathon-ops/autoscaler/internal/observability"
	"github.com/marathon-ops/autoscaler/internal/probe"
	"github.com/marathon-ops/autoscaler/internal/statushub"
	"github.com/marathon-ops/autoscaler/internal/supervisor"
)

func newConfigSource() config.Source {
	if envBlob := os.Getenv("AUTOSCALER_ENV_CONFIG"); envBlob != "" {
		log.Println("config: using EnvSource (AUTOSCALER_ENV_CONFIG set)")
		return config.NewEnvSource("AUTOSCALER_ENV_CONFIG")
	}
	settingsURL := os.Getenv("AUTOSCALER_CONFIG_URL")
	if settingsURL == "" {
		log.Fatal("config: AUTOSCALER_CONFIG_URL must be set (or AUTOSCALER_ENV_CONFIG for the legacy path)")
	}
	log.Printf("config: using HTTPSource against %s", settingsURL)
	return config.NewHTTPSource(settingsURL)
}

func newAuditLedger(ctx context.Context) audit.Ledger {
	dsn := os.Getenv("AUTOSCALER_POSTGRES_DSN")
	if dsn == "" {
		log.Println("audit: AUTOSCALER_POSTGRES_DSN not set, falling back to LoggingLedger")
		return audit.LoggingLedger{}
	}
	ledger, err := audit.NewPostgresLedger(ctx, dsn)
	if err != nil {
		log.Printf("audit: failed to connect to postgres, falling back to LoggingLedger: %v", err)
		return audit.LoggingLedger{}
	}
	log.Println("audit: recording scaling events to postgres")
	return ledger
}

func newCacheStore(ctx context.Context) apiclient.CacheStore {
	addr := os.Getenv("AUTOSCALER_REDIS_ADDR")
	if addr == "" {
		return apiclient.NewMemoryCacheStore()
	}
	store, err := apiclient.NewRedisCacheStore(ctx, addr, os.Getenv("AUTOSCALER_REDIS_PASSWORD"), 0, 30*time.Second)
	if err != nil {
		log.Printf("apiclient: failed to connect to redis at %s, falling back to MemoryCacheStore: %v", addr, err)
		return apiclient.NewMemoryCacheStore()
	}
	log.Printf("apiclient: sharing response cache via redis at %s", addr)
	return store
}

// buildFromSettings wires the APIClient, probe Registry, and AlarmSink from
// freshly fetched Settings -- these three all depend on remotely-configured
// parameters (dcos_master, prometheus_host, alarm_api) unknown until the
// first FetchSettings call completes (spec.md §4.6 step 1).
func buildFromSettings(ctx context.Context) supervisor.Builder {
	return func(settings config.Settings) (*apiclient.Client, *probe.Registry, alarm.Sink) {
		client := apiclient.New(settings.DCOSMaster, settings.BearerToken,
			apiclient.WithCacheStore(newCacheStore(ctx)),
			apiclient.WithRateLimit(10, 20),
			apiclient.WithCircuitBreaker(5, 30*time.Second),
			apiclient.WithMetrics(observability.Recorder{}),
		)

		registry := probe.NewRegistry()
		registry.Register("mem", probe.NewMemProbeFactory(client))
		if settings.PrometheusHost != "" {
			jvmFactory, err := probe.NewJVMProbeFactory(settings.PrometheusHost)
			if err != nil {
				log.Printf("probe: failed to build jvm probe factory: %v", err)
			} else {
				registry.Register("jvm", jvmFactory)
			}
		} else {
			log.Println("probe: prometheus_host not configured, jvm trigger_mode unavailable")
		}

		sink := alarm.NewHTTPSink(settings.AlarmAPI)
		return client, registry, sink
	}
}

func main() {
	ctx := context.Background()

	source := newConfigSource()
	ledger := newAuditLedger(ctx)
	hub := statushub.New()

	super := supervisor.New(source, buildFromSettings(ctx), ledger, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws/status", hub.ServeHTTP)

	addr := os.Getenv("AUTOSCALER_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	diagServer := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("autoscaler: diagnostic server listening on %s", addr)
		if err := diagServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("autoscaler: diagnostic server exited: %v", err)
		}
	}()

	log.Println("autoscaler: starting supervisor")
	if err := super.Run(ctx); err != nil {
		log.Fatalf("autoscaler: fatal startup error: %v", err)
	}
}
