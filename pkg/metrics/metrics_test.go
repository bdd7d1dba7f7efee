package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWithLabels(t *testing.T) {
	cases := []struct {
		kvs  []string
		want string
	}{
		{nil, "x_total"},
		{[]string{"code"}, "x_total"},
		{[]string{"code", "SUCCESS"}, `x_total{code="SUCCESS"}`},
		{[]string{"tier", "fuzzy", "kind", "spec"}, `x_total{tier="fuzzy",kind="spec"}`},
	}
	for _, c := range cases {
		if got := WithLabels("x_total", c.kvs...); got != c.want {
			t.Errorf("WithLabels(%v) = %s, want %s", c.kvs, got, c.want)
		}
	}
}

func TestCounter_SameSeries(t *testing.T) {
	r := New()
	a := r.Counter(WithLabels("manualkg_ingest_total", "result", "ok"), "Manuals handled")
	b := r.Counter(WithLabels("manualkg_ingest_total", "result", "ok"), "")
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Fatalf("expected shared counter at 3, got %d", a.Value())
	}
}

func TestCounter_Concurrent(t *testing.T) {
	r := New()
	c := r.Counter("hits_total", "")
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	if c.Value() != 50 {
		t.Fatalf("expected 50, got %d", c.Value())
	}
}

func TestRender_CounterFamily(t *testing.T) {
	r := New()
	r.Counter(WithLabels("manualkg_qa_responses_total", "code", "SUCCESS"), "QA responses by code").Add(2)
	r.Counter(WithLabels("manualkg_qa_responses_total", "code", "DATA_NOT_FOUND"), "").Inc()

	out := r.Render()
	want := `# HELP manualkg_qa_responses_total QA responses by code
# TYPE manualkg_qa_responses_total counter
manualkg_qa_responses_total{code="DATA_NOT_FOUND"} 1
manualkg_qa_responses_total{code="SUCCESS"} 2
`
	if out != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestRender_Histogram(t *testing.T) {
	r := New()
	h := r.Histogram(WithLabels("latency_seconds", "stage", "upsert"), "Upsert latency", []float64{1, 0.1})
	h.Observe(0.0625)
	h.Observe(0.5)
	h.Observe(3)

	out := r.Render()
	for _, line := range []string{
		"# TYPE latency_seconds histogram",
		`latency_seconds_bucket{le="0.1",stage="upsert"} 1`,
		`latency_seconds_bucket{le="1",stage="upsert"} 2`,
		`latency_seconds_bucket{le="+Inf",stage="upsert"} 3`,
		`latency_seconds_sum{stage="upsert"} 3.5625`,
		`latency_seconds_count{stage="upsert"} 3`,
	} {
		if !strings.Contains(out, line) {
			t.Errorf("missing %q in:\n%s", line, out)
		}
	}
}

func TestHistogram_DefaultBucketsAndSince(t *testing.T) {
	r := New()
	h := r.Histogram("ask_seconds", "", nil)
	h.Since(time.Now())
	if len(h.bounds) != len(DefaultBuckets) || h.count != 1 {
		t.Fatalf("bounds=%d count=%d", len(h.bounds), h.count)
	}
	if !strings.Contains(r.Render(), "ask_seconds_count 1") {
		t.Fatal("missing count line")
	}
}

func TestRender_RegistrationOrder(t *testing.T) {
	r := New()
	r.Counter("b_total", "")
	r.Counter("a_total", "")
	out := r.Render()
	if strings.Index(out, "b_total") > strings.Index(out, "a_total") {
		t.Fatalf("families should render in registration order:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("manualkg_triplets_total", "Triplets produced").Add(7)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "manualkg_triplets_total 7") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}
