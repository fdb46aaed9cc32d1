// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Metrics are buffered in memory and submitted on a ticker (default once per
// minute) and once more on Close, so long exports show up as a time series
// rather than a single point at exit.
//
// Counters are submitted as COUNT series. Histograms are reduced to
// p50/p90/p95/p99/max/samples gauges per flush window. Each label becomes a
// "key:value" tag.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"logexport/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "logexport".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "team:data"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu       sync.Mutex
	counters map[seriesKey]float64
	samples  map[seriesKey][]float64
}

// seriesKey identifies one series: metric name plus its sorted tags joined
// by "\x00".
type seriesKey struct {
	name string
	tags string
}

func keyFor(name string, labels metrics.Labels) seriesKey {
	if len(labels) == 0 {
		return seriesKey{name: name}
	}
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		if v == "" {
			v = "unknown"
		}
		tags = append(tags, k+":"+v)
	}
	sort.Strings(tags)
	return seriesKey{name: name, tags: strings.Join(tags, "\x00")}
}

func (k seriesKey) tagList() []string {
	if k.tags == "" {
		return nil
	}
	return strings.Split(k.tags, "\x00")
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client. API
// keys and site come from the DD_API_KEY / DD_SITE environment, read by the
// client context. Network errors surface from Flush.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "logexport"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}
	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counters:   make(map[seriesKey]float64),
		samples:    make(map[seriesKey][]float64),
	}
	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Later calls only
// flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k := keyFor(name, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[k] += delta
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	k := keyFor(name, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples[k] = append(b.samples[k], value)
}

type snapshot struct {
	counters map[seriesKey]float64
	samples  map[seriesKey][]float64
}

func (s snapshot) isEmpty() bool {
	return len(s.counters) == 0 && len(s.samples) == 0
}

// snapshotAndReset detaches the current buffers.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{counters: b.counters, samples: b.samples}
	b.counters = make(map[seriesKey]float64)
	b.samples = make(map[seriesKey][]float64)
	return s
}

// Flush submits buffered metrics and resets the buffers, also when the
// submission fails.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series}, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries is pure; series are ordered by metric name then tags.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.counters)+6*len(s.samples))

	for _, k := range sortedKeys(s.counters) {
		v := s.counters[k]
		if v == 0 {
			continue
		}
		series = append(series, countSeries(metricName(k.name), v, withTags(b.baseTags, k.tagList()...), nowUnix))
	}

	for _, k := range sortedKeys(s.samples) {
		vals := s.samples[k]
		if len(vals) == 0 {
			continue
		}
		cp := append([]float64(nil), vals...)
		sort.Float64s(cp)

		prefix := metricName(k.name)
		tags := withTags(b.baseTags, k.tagList()...)
		series = append(series,
			gaugeSeries(prefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
			gaugeSeries(prefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
			gaugeSeries(prefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
			gaugeSeries(prefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
			gaugeSeries(prefix+".max", cp[len(cp)-1], tags, nowUnix),
			gaugeSeries(prefix+".samples", float64(len(cp)), tags, nowUnix),
		)
	}
	return series
}

func sortedKeys[V any](m map[seriesKey]V) []seriesKey {
	keys := make([]seriesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].tags < keys[j].tags
	})
	return keys
}

// metricName turns "logexport_step_total" into "logexport.step_total".
func metricName(name string) string {
	return strings.Replace(name, "_", ".", 1)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:data".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
