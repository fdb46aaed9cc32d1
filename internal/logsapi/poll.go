package logsapi

import (
	"context"
	"fmt"
	"time"

	"logexport/internal/event"
)

// Clock abstracts time for the poll loop.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// WallClock is the real clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

func (WallClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StatusFunc fetches the current job state.
type StatusFunc func(ctx context.Context) (ExportJob, error)

// PollUntilDone drives the job state machine.
//
// Every iteration checks the deadline, sleeps interval, then fetches the
// status. processed returns the job; processing_failed and canceled return
// a *JobError wrapping ErrJobFailed at once. Exceeding maxWait returns a
// *JobError wrapping ErrPollTimeout. Status fetch errors are returned as-is.
func PollUntilDone(ctx context.Context, requestID string, status StatusFunc, clock Clock, interval, maxWait time.Duration, obs event.Observer) (ExportJob, error) {
	obs = event.OrNop(obs)
	start := clock.Now()
	last := StatusCreated

	for attempt := 1; ; attempt++ {
		waited := clock.Now().Sub(start)
		if waited > maxWait {
			return ExportJob{RequestID: requestID, Status: last}, &JobError{
				RequestID: requestID, Status: last, Waited: waited, Err: ErrPollTimeout,
			}
		}
		if err := clock.Sleep(ctx, interval); err != nil {
			return ExportJob{}, err
		}

		job, err := status(ctx)
		if err != nil {
			return ExportJob{}, err
		}
		if !CanTransition(last, job.Status) {
			return ExportJob{}, &ProviderError{
				Op:      "status",
				Message: fmt.Sprintf("request %s: illegal status transition %s -> %s", requestID, last, job.Status),
			}
		}
		last = job.Status

		switch job.Status {
		case StatusProcessed:
			obs.OnEvent(event.LevelInfo, "export job processed",
				"request_id", requestID, "parts", len(job.Parts), "attempts", attempt)
			return job, nil
		case StatusProcessingFailed, StatusCanceled:
			return job, &JobError{
				RequestID: requestID, Status: job.Status, Waited: clock.Now().Sub(start), Err: ErrJobFailed,
			}
		}
		obs.OnEvent(event.LevelInfo, "export job not ready",
			"request_id", requestID, "status", string(job.Status), "attempt", attempt)
	}
}
