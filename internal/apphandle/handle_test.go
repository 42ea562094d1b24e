package apphandle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marathon-ops/autoscaler/internal/apiclient"
	"github.com/marathon-ops/autoscaler/internal/config"
)

func newTestHandle(t *testing.T, handler http.HandlerFunc) (*Handle, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := apiclient.New(srv.URL, "")
	cfg := config.AppConfig{Tenant: "team-a", AppID: "/svc"}
	h := New(c, cfg, srv.URL)
	return h, srv.Close
}

func TestExistsTrue(t *testing.T) {
	h, closeFn := newTestHandle(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"app": map[string]interface{}{
				"id":        "/svc",
				"instances": 4,
				"env":       map[string]string{"APP_NAME": "svc-display"},
			},
		})
	})
	defer closeFn()

	if !h.Exists(context.Background()) {
		t.Fatal("expected Exists to be true")
	}
	if h.DisplayName() != "svc-display" {
		t.Fatalf("expected display name cached, got %q", h.DisplayName())
	}
}

func TestExistsFalseOn404(t *testing.T) {
	h, closeFn := newTestHandle(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer closeFn()

	if h.Exists(context.Background()) {
		t.Fatal("expected Exists to be false on 404")
	}
}

func TestInstancesReturnsZeroOnError(t *testing.T) {
	h, closeFn := newTestHandle(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer closeFn()

	if got := h.Instances(context.Background()); got != 0 {
		t.Fatalf("expected 0 instances on error, got %d", got)
	}
}

func TestSetInstancesSendsPUT(t *testing.T) {
	var gotMethod string
	var gotBody map[string]int
	h, closeFn := newTestHandle(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	})
	defer closeFn()

	if err := h.SetInstances(context.Background(), 8); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("expected PUT, got %s", gotMethod)
	}
	if gotBody["instances"] != 8 {
		t.Fatalf("expected instances=8, got %v", gotBody)
	}
}
