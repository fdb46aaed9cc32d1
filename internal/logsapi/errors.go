package logsapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

var (
	// ErrJobFailed means the provider reported processing_failed or canceled.
	ErrJobFailed = errors.New("export job failed")
	// ErrPollTimeout means the job did not reach processed within the wait budget.
	ErrPollTimeout = errors.New("export job not ready before deadline")
	// ErrEmptyResult means the job completed but produced no data fragments.
	ErrEmptyResult = errors.New("export job produced no data")
)

// ProviderError is a failed or rejected call to the provider.
// StatusCode is 0 when no response was received.
type ProviderError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("provider %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("provider %s: HTTP %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("provider %s: %s", e.Op, e.Message)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Rejected reports whether the provider answered with a non-2xx status.
func (e *ProviderError) Rejected() bool { return e.StatusCode != 0 }

// PartError is a failure downloading or parsing one part of a job.
type PartError struct {
	RequestID string
	Part      int
	Err       error
}

func (e *PartError) Error() string {
	return fmt.Sprintf("request %s part %d: %v", e.RequestID, e.Part, e.Err)
}

func (e *PartError) Unwrap() error { return e.Err }

// JobError is a job that failed or ran out of time. Err is ErrJobFailed or
// ErrPollTimeout.
type JobError struct {
	RequestID string
	Status    JobStatus
	Waited    time.Duration
	Err       error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("request %s (last status %s after %s): %v", e.RequestID, e.Status, e.Waited.Round(time.Second), e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

const maxMessage = 200

// errorMessage pulls a human-readable message out of an error response body.
func errorMessage(contentType, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	if gjson.Valid(body) {
		for _, path := range []string{"message", "errors.0.message", "error.message", "exception"} {
			if v := gjson.Get(body, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	if strings.Contains(contentType, "html") || strings.HasPrefix(body, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
			text := doc.Find("title").First().Text()
			if strings.TrimSpace(text) == "" {
				text = doc.Find("body").Text()
			}
			if text = strings.Join(strings.Fields(text), " "); text != "" {
				return truncate(text)
			}
		}
	}
	return truncate(body)
}

func truncate(s string) string {
	if len(s) <= maxMessage {
		return s
	}
	return s[:maxMessage] + "..."
}
