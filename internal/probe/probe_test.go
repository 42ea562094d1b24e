package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/marathon-ops/autoscaler/internal/apiclient"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("mem", func(appID, displayName string) Probe { return nil })

	if _, ok := r.Lookup("mem"); !ok {
		t.Fatal("expected mem factory registered")
	}
	if _, ok := r.Lookup("unknown"); ok {
		t.Fatal("expected unknown trigger_mode to be absent")
	}
}

func TestMemProbeSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"percent": 42.5}`))
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, "")
	factory := NewMemProbeFactory(c)
	p := factory("/svc", "")

	v, err := p.Sample(context.Background(), "/svc")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 1 || v[0] != 42.5 {
		t.Fatalf("expected [42.5], got %v", v)
	}
}

func TestMemProbeTransientOnBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, "")
	p := NewMemProbeFactory(c)("/svc", "")

	_, err := p.Sample(context.Background(), "/svc")
	var te *TransientError
	if !asTransient(err, &te) {
		t.Fatalf("expected TransientError, got %T: %v", err, err)
	}
}

func asTransient(err error, out **TransientError) bool {
	te, ok := err.(*TransientError)
	if ok {
		*out = te
	}
	return ok
}

func TestJVMProbeQueryTemplate(t *testing.T) {
	p := &JVMProbe{displayName: "my-app"}
	q := p.query()
	if !strings.Contains(q, `application="my-app"`) || !strings.Contains(q, "heap_used") || !strings.Contains(q, "heap_max") {
		t.Fatalf("query missing expected fragments: %s", q)
	}
}

func TestJVMProbeRejectsMissingDisplayName(t *testing.T) {
	p := &JVMProbe{}
	if _, err := p.Sample(context.Background(), "/svc"); err == nil {
		t.Fatal("expected error when display name unresolved")
	}
}
