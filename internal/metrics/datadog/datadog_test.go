package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"logexport/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(_ context.Context, body datadogV2.MetricPayload, _ ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

func quietOpts(fs *fakeSubmitter) Options {
	return Options{
		JobName:   "job1",
		submitter: fs,
		now:       func() time.Time { return time.Unix(1000, 0) },
		newTicker: func(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	}
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestKeyFor(t *testing.T) {
	t.Parallel()

	a := keyFor("logexport_step_total", metrics.Labels{"step": "poll", "source": "hits", "status": "ok"})
	b := keyFor("logexport_step_total", metrics.Labels{"status": "ok", "source": "hits", "step": "poll"})
	if a != b {
		t.Fatalf("keyFor not order independent: %v vs %v", a, b)
	}
	want := []string{"source:hits", "status:ok", "step:poll"}
	if got := a.tagList(); !reflect.DeepEqual(got, want) {
		t.Fatalf("tagList()=%v, want %v", got, want)
	}
	if got := keyFor("x", metrics.Labels{"status": ""}).tagList(); !reflect.DeepEqual(got, []string{"status:unknown"}) {
		t.Fatalf("empty label value tagList()=%v", got)
	}
	if got := keyFor("x", nil).tagList(); got != nil {
		t.Fatalf("nil labels tagList()=%v, want nil", got)
	}
}

func TestMetricName(t *testing.T) {
	t.Parallel()

	if got := metricName(metrics.StepDurationSeconds); got != "logexport.step_duration_seconds" {
		t.Fatalf("metricName()=%q", got)
	}
}

func TestWithTags(t *testing.T) {
	t.Parallel()

	base := []string{"env:test", "job:logexport"}
	got := withTags(base, "step:poll", "status:ok")
	want := []string{"env:test", "job:logexport", "step:poll", "status:ok"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("withTags()=%v, want %v", got, want)
	}
	got[0] = "env:mutated"
	if base[0] == "env:mutated" {
		t.Fatalf("withTags output aliases base slice")
	}
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{name: "empty", s: nil, p: 0.50, want: 0},
		{name: "single", s: []float64{7}, p: 0.95, want: 7},
		{name: "p_le_0", s: []float64{1, 2, 3}, p: -1, want: 1},
		{name: "p_ge_1", s: []float64{1, 2, 3}, p: 2, want: 3},
		{name: "median", s: []float64{1, 2, 3, 4, 5}, p: 0.50, want: 3},
		{name: "p90_small_n", s: []float64{1, 2, 3, 4, 5}, p: 0.90, want: 5},
	}
	for _, tc := range tests {
		if got := percentileNearestRank(tc.s, tc.p); got != tc.want {
			t.Fatalf("%s: percentileNearestRank(%v,%v)=%v, want %v", tc.name, tc.s, tc.p, got, tc.want)
		}
	}
}

func TestBuildSeries(t *testing.T) {
	t.Parallel()

	b := &Backend{baseTags: []string{"env:test", "job:logexport"}}
	snap := snapshot{
		counters: map[seriesKey]float64{
			keyFor(metrics.StepTotal, metrics.Labels{"step": "upload", "status": "ok"}): 2,
			keyFor(metrics.RowsTotal, metrics.Labels{"source": "hits"}):                 0,
		},
		samples: map[seriesKey][]float64{
			keyFor(metrics.StepDurationSeconds, metrics.Labels{"step": "upload", "status": "ok"}): {3, 1, 2},
		},
	}
	series := b.buildSeries(snap, 42)

	if len(series) != 1+6 {
		t.Fatalf("len(series)=%d, want 7", len(series))
	}
	first := series[0]
	if first.Metric != "logexport.step_total" || *first.Type != datadogV2.METRICINTAKETYPE_COUNT {
		t.Fatalf("first series=%s/%v, want count logexport.step_total", first.Metric, first.Type)
	}
	if want := []string{"env:test", "job:logexport", "status:ok", "step:upload"}; !reflect.DeepEqual(first.Tags, want) {
		t.Fatalf("tags=%v, want %v", first.Tags, want)
	}
	if *first.Points[0].Timestamp != 42 || *first.Points[0].Value != 2 {
		t.Fatalf("point=%v/%v, want 42/2", *first.Points[0].Timestamp, *first.Points[0].Value)
	}

	byName := map[string]float64{}
	for _, s := range series[1:] {
		if *s.Type != datadogV2.METRICINTAKETYPE_GAUGE {
			t.Fatalf("%s type=%v, want gauge", s.Metric, s.Type)
		}
		byName[strings.TrimPrefix(s.Metric, "logexport.step_duration_seconds.")] = *s.Points[0].Value
	}
	want := map[string]float64{"p50": 2, "p90": 3, "p95": 3, "p99": 3, "max": 3, "samples": 3}
	if !reflect.DeepEqual(byName, want) {
		t.Fatalf("percentiles=%v, want %v", byName, want)
	}
	if !reflect.DeepEqual(snap.samples[keyFor(metrics.StepDurationSeconds, metrics.Labels{"step": "upload", "status": "ok"})], []float64{3, 1, 2}) {
		t.Fatalf("buildSeries mutated samples")
	}
}

func TestNewBackend_Defaults(t *testing.T) {
	fs := &fakeSubmitter{}
	opts := quietOpts(fs)
	opts.JobName = ""
	opts.Tags = []string{"team:data"}

	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v, want nil", err)
	}
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "job:logexport") || !contains(b.baseTags, "team:data") {
		t.Fatalf("baseTags=%v, want job:logexport and team:data", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOpts(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	metrics.SetBackend(b)
	defer metrics.SetBackend(nil)

	metrics.RecordStep("visits", "poll", nil, 1500*time.Millisecond)
	metrics.RecordHTTP("provider", "evaluate", 200, 80*time.Millisecond)
	metrics.IncCounter(metrics.RowsTotal, 10, metrics.Labels{"source": "visits"})

	if err := metrics.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
	if len(b.counters) != 0 || len(b.samples) != 0 {
		t.Fatalf("buffers not reset after Flush")
	}

	payload, _ := fs.last()
	var names []string
	for _, s := range payload.Series {
		names = append(names, s.Metric)
	}
	for _, w := range []string{
		"logexport.step_total",
		"logexport.step_duration_seconds.p50",
		"logexport.http_requests_total",
		"logexport.http_request_duration_seconds.samples",
		"logexport.rows_total",
	} {
		if !contains(names, w) {
			t.Fatalf("payload missing metric %q; got=%v", w, names)
		}
	}
}

func TestFlush_NoDataAndErrors(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOpts(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v, want nil", err)
	}
	if fs.count() != 0 {
		t.Fatalf("submission count=%d, want 0", fs.count())
	}

	fs.err = errors.New("403 Forbidden")
	b.IncCounter(metrics.StepTotal, 1, nil)
	if err := b.Flush(); err == nil || !strings.Contains(err.Error(), "datadog submit") {
		t.Fatalf("Flush() err=%v, want datadog submit error", err)
	}
	if len(b.counters) != 0 {
		t.Fatalf("buffers not reset after failed Flush")
	}
}

func TestIncCounterAndObserveHistogram_IgnoreNonPositive(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOpts(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.StepTotal, 0, nil)
	b.IncCounter(metrics.StepTotal, -1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, -0.5, nil)
	if len(b.counters) != 0 || len(b.samples) != 0 {
		t.Fatalf("non-positive values were buffered")
	}
	b.ObserveHistogram(metrics.StepDurationSeconds, 0, nil)
	if len(b.samples) != 1 {
		t.Fatalf("zero histogram sample dropped")
	}
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName:    "job1",
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}

	b.IncCounter(metrics.StepTotal, 1, nil)
	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) && fs.count() < 1 {
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("expected a background Flush submission; got %d", fs.count())
	}

	b.IncCounter(metrics.StepTotal, 1, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v, want nil", err)
	}
	if fs.count() < 2 {
		t.Fatalf("expected at least 2 submissions after Close; got %d", fs.count())
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() err=%v, want nil", err)
	}
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOpts(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	workers := runtime.GOMAXPROCS(0) * 4
	iters := 1000
	labels := metrics.Labels{"step": "fetch", "status": "ok"}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				b.IncCounter(metrics.StepTotal, 1, labels)
				b.ObserveHistogram(metrics.StepDurationSeconds, 0.01, labels)
			}
		}()
	}
	wg.Wait()

	k := keyFor(metrics.StepTotal, labels)
	if got, want := b.counters[k], float64(workers*iters); got != want {
		t.Fatalf("counter=%v, want %v", got, want)
	}
	if got := len(b.samples[keyFor(metrics.StepDurationSeconds, labels)]); got != workers*iters {
		t.Fatalf("samples=%d, want %d", got, workers*iters)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"env:prod", []string{"env:prod"}},
		{" env:prod , team:data ,, ", []string{"env:prod", "team:data"}},
	}
	for _, tc := range tests {
		got := ParseTagsCSV(tc.in)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}
