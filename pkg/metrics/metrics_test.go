package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry("lsmview")

	r.IncCounter("cursor_moves_total", nil, 1)
	r.IncCounter("cursor_moves_total", nil, 2)
	r.IncCounter("edits_replayed_total", map[string]string{"direction": "forward"}, 5)

	if v, ok := r.Value("cursor_moves_total", nil); !ok || v != 3 {
		t.Fatalf("expected 3 cursor moves, got %v (ok=%v)", v, ok)
	}
	if v, ok := r.Value("edits_replayed_total", map[string]string{"direction": "forward"}); !ok || v != 5 {
		t.Fatalf("expected 5 forward edits, got %v (ok=%v)", v, ok)
	}
	if _, ok := r.Value("edits_replayed_total", map[string]string{"direction": "backward"}); ok {
		t.Fatal("expected no backward series")
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry("lsmview")
	r.SetGauge("sessions", nil, 2)
	r.SetGauge("sessions", nil, 1)
	r.ObserveHistogram("overlap_query_seconds", map[string]string{"level": "1"}, 0.5)
	r.ObserveHistogram("overlap_query_seconds", map[string]string{"level": "1"}, 0.25)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE lsmview_sessions gauge\nlsmview_sessions 1\n",
		"# TYPE lsmview_overlap_query_seconds histogram\n",
		`lsmview_overlap_query_seconds_bucket{level="1",le="0.25"} 1`,
		`lsmview_overlap_query_seconds_bucket{level="1",le="+Inf"} 2`,
		`lsmview_overlap_query_seconds_sum{level="1"} 0.75`,
		`lsmview_overlap_query_seconds_count{level="1"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestRegistry_HistogramValue(t *testing.T) {
	r := NewRegistry("lsmview")
	r.ObserveHistogram("cursor_move_seconds", nil, 0.125)
	r.ObserveHistogram("cursor_move_seconds", nil, 0.375)

	if v, ok := r.Value("cursor_move_seconds", nil); !ok || v != 0.5 {
		t.Fatalf("expected histogram sum 0.5, got %v (ok=%v)", v, ok)
	}
}

func TestRegistry_DropsMismatchedUpdates(t *testing.T) {
	r := NewRegistry("lsmview")
	r.IncCounter("http_requests_total", map[string]string{"route": "/health"}, 1)

	// Label names are fixed by the first update, and a name keeps its kind.
	r.IncCounter("http_requests_total", map[string]string{"path": "/health"}, 1)
	r.SetGauge("http_requests_total", map[string]string{"route": "/health"}, 7)

	if v, ok := r.Value("http_requests_total", map[string]string{"route": "/health"}); !ok || v != 1 {
		t.Fatalf("expected 1 request, got %v (ok=%v)", v, ok)
	}
	if _, ok := r.Value("http_requests_total", map[string]string{"path": "/health"}); ok {
		t.Fatal("expected no series for mismatched labels")
	}
}
