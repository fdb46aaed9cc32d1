package logsapi

import (
	"context"
	"fmt"
	"time"

	"logexport/internal/event"
	"logexport/internal/schema"
)

// JobStatus is the provider-side state of an export job.
type JobStatus string

const (
	StatusCreated          JobStatus = "created"
	StatusProcessing       JobStatus = "processing"
	StatusProcessed        JobStatus = "processed"
	StatusProcessingFailed JobStatus = "processing_failed"
	StatusCanceled         JobStatus = "canceled"
)

// ParseJobStatus rejects statuses outside the known set.
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(s); st {
	case StatusCreated, StatusProcessing, StatusProcessed, StatusProcessingFailed, StatusCanceled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusProcessingFailed || s == StatusCanceled
}

// CanTransition reports whether from → to is a legal observation sequence.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case StatusCreated:
		return to == StatusCreated || to == StatusProcessing || to.Terminal()
	case StatusProcessing:
		return to == StatusProcessing || to.Terminal()
	}
	return false
}

// Part is one downloadable fragment of a finished job.
type Part struct {
	Number int
	Size   int64
}

// ExportJob is a submitted request and what is known about it.
type ExportJob struct {
	RequestID string
	Status    JobStatus
	Parts     []Part
}

// DefaultPollInterval and DefaultMaxWait bound Poll when unset.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxWait      = 30 * time.Minute
)

// JobClient submits export jobs and waits for them.
type JobClient struct {
	Client   *Client
	Observer event.Observer

	// Interval between status checks. <= 0 means DefaultPollInterval.
	Interval time.Duration
	// Clock defaults to the wall clock.
	Clock Clock
}

// Submit creates an export job. Fields are sent in canonical order so that
// resubmitting the same set is byte-identical on the wire.
func (j *JobClient) Submit(ctx context.Context, source schema.Source, dr DateRange, fields []schema.FieldSpec) (string, error) {
	canon := CanonicalFields(fields)
	if len(canon) == 0 {
		return "", fmt.Errorf("submit %s: no fields", source)
	}
	id, err := j.Client.CreateRequest(ctx, source, dr, canon)
	if err != nil {
		return "", err
	}
	event.OrNop(j.Observer).OnEvent(event.LevelInfo, "export job submitted",
		"source", string(source), "request_id", id, "fields", len(canon), "range", dr.String())
	return id, nil
}

// Poll waits until the job is processed, fails, or maxWait elapses.
// maxWait <= 0 means DefaultMaxWait.
func (j *JobClient) Poll(ctx context.Context, requestID string, maxWait time.Duration) (ExportJob, error) {
	interval := j.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	clock := j.Clock
	if clock == nil {
		clock = WallClock{}
	}
	status := func(ctx context.Context) (ExportJob, error) {
		return j.Client.RequestStatus(ctx, requestID)
	}
	return PollUntilDone(ctx, requestID, status, clock, interval, maxWait, j.Observer)
}
