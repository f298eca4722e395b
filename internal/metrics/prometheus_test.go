package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusHandler_ExposesEventsAndGauges(t *testing.T) {
	m := New()
	m.Inc(RoomJoined)
	m.Add(RelayDelivered, 2)
	if err := m.RegisterGauge("active_rooms", "Rooms with at least one member.", func() float64 { return 3 }); err != nil {
		t.Fatalf("RegisterGauge: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE simally_signaling_events_total counter",
		`simally_signaling_events_total{event="relay_delivered"} 2`,
		`simally_signaling_events_total{event="room_joined"} 1`,
		"simally_signaling_active_rooms 3",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}

	// A second handler on the same registry must not double-register collectors.
	PrometheusHandler(m).ServeHTTP(httptest.NewRecorder(), req)
}

func TestMetrics_CounterMatchesSnapshot(t *testing.T) {
	m := New()
	m.Inc(OutboundOverflow)
	m.Inc(OutboundOverflow)
	m.Add(OutboundOverflow, 0)

	if got := m.Get(OutboundOverflow); got != 2 {
		t.Fatalf("Get=%d, want 2", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(OutboundOverflow)); got != 2 {
		t.Fatalf("prometheus counter=%v, want 2", got)
	}
	if snap := m.Snapshot(); snap[OutboundOverflow] != 2 || len(snap) != 1 {
		t.Fatalf("snapshot=%v", snap)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(DispatchPanic)
	if got := m.Get(DispatchPanic); got != 0 {
		t.Fatalf("Get on nil=%d", got)
	}

	rr := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestRegisterGauge_DuplicateNameFails(t *testing.T) {
	m := New()
	fn := func() float64 { return 0 }
	if err := m.RegisterGauge("connections", "Open connections.", fn); err != nil {
		t.Fatalf("first RegisterGauge: %v", err)
	}
	if err := m.RegisterGauge("connections", "Open connections.", fn); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
