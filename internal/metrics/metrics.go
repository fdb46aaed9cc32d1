// Package metrics is a small process-wide metrics facade.
//
// Pipeline code records through the package functions; the command picks a
// Backend (Datadog, Pushgateway) at startup. The default backend is a no-op.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric updates.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to counter name.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush pushes buffered metrics, if the backend buffers.
func Flush() error {
	return current().Flush()
}

// Metric names shared by the pipeline and the backends.
const (
	StepTotal           = "logexport_step_total"
	StepDurationSeconds = "logexport_step_duration_seconds"
	RowsTotal           = "logexport_rows_total"
	HTTPRequestsTotal   = "logexport_http_requests_total"
	HTTPDurationSeconds = "logexport_http_request_duration_seconds"
)

// RecordStep counts one pipeline step and observes its duration.
func RecordStep(source, step string, err error, d time.Duration) {
	l := Labels{"source": source, "step": step, "status": Status(err)}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordHTTP counts one outbound request. code 0 means no response.
func RecordHTTP(target, endpoint string, code int, d time.Duration) {
	status := "error"
	if code > 0 {
		status = strconv.Itoa(code)
	}
	l := Labels{"target": target, "endpoint": endpoint, "status": status}
	IncCounter(HTTPRequestsTotal, 1, l)
	ObserveHistogram(HTTPDurationSeconds, d.Seconds(), l)
}

// Status maps err to the "ok"/"error" status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
