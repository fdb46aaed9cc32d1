package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"logexport/internal/metrics"
)

type gateway struct {
	mu     sync.Mutex
	method string
	path   string
	body   string
}

func (g *gateway) handler(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	g.mu.Lock()
	g.method, g.path, g.body = r.Method, r.URL.Path, string(b)
	g.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func TestNewBackend_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("", "http://localhost:9091"); err == nil {
		t.Fatalf("NewBackend(empty job) err=nil, want error")
	}
}

func TestCountersAndHistograms(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("logexport", "http://unused")
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	l := metrics.Labels{"source": "hits", "step": "poll", "status": "ok"}
	b.IncCounter(metrics.StepTotal, 1, l)
	b.IncCounter(metrics.StepTotal, 2, l)
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"source": "visits", "step": "poll", "status": "error"})
	b.IncCounter(metrics.StepTotal, -1, l)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.3, l)

	if got := testutil.ToFloat64(b.counters[metrics.StepTotal].With(prometheus.Labels{"source": "hits", "step": "poll", "status": "ok"})); got != 3 {
		t.Fatalf("counter=%v, want 3", got)
	}
	if got := testutil.CollectAndCount(b.counters[metrics.StepTotal]); got != 2 {
		t.Fatalf("series=%d, want 2", got)
	}
	if got := testutil.CollectAndCount(b.histograms[metrics.StepDurationSeconds]); got != 1 {
		t.Fatalf("histogram series=%d, want 1", got)
	}
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	g := &gateway{}
	srv := httptest.NewServer(http.HandlerFunc(g.handler))
	defer srv.Close()

	b, err := NewBackend("logexport", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	b.IncCounter(metrics.RowsTotal, 10, metrics.Labels{"source": "visits"})
	b.ObserveHistogram(metrics.HTTPDurationSeconds, (120 * time.Millisecond).Seconds(),
		metrics.Labels{"target": "provider", "endpoint": "evaluate", "status": "200"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.method != http.MethodPut {
		t.Fatalf("method=%s, want PUT", g.method)
	}
	if g.path != "/metrics/job/logexport" {
		t.Fatalf("path=%q, want /metrics/job/logexport", g.path)
	}
	if !strings.Contains(g.body, metrics.RowsTotal) {
		t.Fatalf("pushed body lacks %s", metrics.RowsTotal)
	}
}

func TestFlush_GatewayError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, _ := NewBackend("logexport", srv.URL)
	b.IncCounter(metrics.StepTotal, 1, nil)
	if err := b.Flush(); err == nil {
		t.Fatalf("Flush() err=nil, want error")
	}
}
