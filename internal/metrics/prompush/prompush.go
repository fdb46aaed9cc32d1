// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. Collectors are created on first use; the label
// set seen first fixes a metric's label names.
package prompush

import (
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"logexport/internal/metrics"
)

// Backend buffers into a private registry and pushes it on Flush.
type Backend struct {
	pusher *push.Pusher
	reg    *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labelNames map[string][]string
}

// NewBackend pushes under job to the gateway at url.
func NewBackend(job, url string) (*Backend, error) {
	if job == "" || url == "" {
		return nil, fmt.Errorf("prompush: job and url are required")
	}
	reg := prometheus.NewRegistry()
	return &Backend{
		pusher:     push.New(url, job).Gatherer(reg),
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelNames: make(map[string][]string),
	}, nil
}

func sortedNames(labels metrics.Labels) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// values returns labels ordered by names; missing labels are empty.
func values(names []string, labels metrics.Labels) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = labels[n]
	}
	return out
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	vec, ok := b.counters[name]
	if !ok {
		names := sortedNames(labels)
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, names)
		if err := b.reg.Register(vec); err != nil {
			return
		}
		b.counters[name], b.labelNames[name] = vec, names
	}
	vec.WithLabelValues(values(b.labelNames[name], labels)...).Add(delta)
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vec, ok := b.histograms[name]
	if !ok {
		names := sortedNames(labels)
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    name,
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, names)
		if err := b.reg.Register(vec); err != nil {
			return
		}
		b.histograms[name], b.labelNames[name] = vec, names
	}
	vec.WithLabelValues(values(b.labelNames[name], labels)...).Observe(value)
}

// Flush replaces the job's metric group on the gateway.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
