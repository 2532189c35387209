package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 201: "2xx", 429: "4xx", 503: "5xx", 0: "unknown", 700: "unknown"}
	for status, want := range cases {
		if got := StatusClass(status); got != want {
			t.Fatalf("StatusClass(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestAPIMetricsRecordRequests(t *testing.T) {
	m := API()
	before := testutil.ToFloat64(m.requests.WithLabelValues("GET /v1/pairs/", "2xx"))

	done := m.Begin()
	if got := testutil.ToFloat64(m.inflight); got < 1 {
		t.Fatalf("expected an in-flight request, got %v", got)
	}
	done("GET /v1/pairs/", 200)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET /v1/pairs/", "2xx")); got != before+1 {
		t.Fatalf("expected %v requests, got %v", before+1, got)
	}

	m.Throttled("pair.rate_limit")
	if got := testutil.ToFloat64(m.throttled.WithLabelValues("pair.rate_limit")); got < 1 {
		t.Fatalf("throttle not counted: %v", got)
	}
}

func TestNilAPIMetricsAreInert(t *testing.T) {
	var m *APIMetrics
	m.Begin()("GET /", 200)
	m.Throttled("x")
}
