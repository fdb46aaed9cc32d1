package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type captureBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
	labels   []Labels
	flushes  int
}

func newCapture() *captureBackend {
	return &captureBackend{counters: map[string]float64{}, samples: map[string][]float64{}}
}

func (c *captureBackend) IncCounter(name string, delta float64, labels Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += delta
	c.labels = append(c.labels, labels)
}

func (c *captureBackend) ObserveHistogram(name string, value float64, labels Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[name] = append(c.samples[name], value)
}

func (c *captureBackend) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes++
	return nil
}

// Not parallel: mutates the package-level backend.
func TestRecordStepAndHTTP(t *testing.T) {
	c := newCapture()
	SetBackend(c)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("hits", "submit", nil, 2*time.Second)
	RecordStep("hits", "poll", errors.New("boom"), time.Second)
	RecordHTTP("provider", "evaluate", 200, 10*time.Millisecond)
	RecordHTTP("provider", "evaluate", 0, 10*time.Millisecond)
	if err := Flush(); err != nil {
		t.Fatalf("Flush err=%v", err)
	}

	if got := c.counters[StepTotal]; got != 2 {
		t.Fatalf("step total=%v, want 2", got)
	}
	if got := c.samples[StepDurationSeconds]; len(got) != 2 || got[0] != 2 {
		t.Fatalf("step durations=%v", got)
	}
	if got := c.labels[1]["status"]; got != "error" {
		t.Fatalf("status label=%q, want error", got)
	}
	if got := c.labels[3]["status"]; got != "error" {
		t.Fatalf("http status label=%q, want error", got)
	}
	if got := c.labels[2]["status"]; got != "200" {
		t.Fatalf("http status label=%q, want 200", got)
	}
	if c.flushes != 1 {
		t.Fatalf("flushes=%d, want 1", c.flushes)
	}
}

func TestSetBackendNilRestoresNop(t *testing.T) {
	SetBackend(nil)
	IncCounter("x", 1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush err=%v", err)
	}
}
