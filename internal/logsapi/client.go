// Package logsapi talks to the provider's asynchronous Logs API: field
// evaluation, job submission and polling, and part download.
package logsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"resty.dev/v3"

	"logexport/internal/metrics"
	"logexport/internal/schema"
)

// DefaultBaseURL is the public provider endpoint.
const DefaultBaseURL = "https://api-metrika.yandex.ru"

// Options configures a Client.
type Options struct {
	BaseURL    string
	CounterID  string
	Token      string
	AuthScheme string // default "OAuth"

	// RequestsPerSecond caps outbound calls. <= 0 means 10/s.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client is an authenticated, rate-limited provider client scoped to one
// counter.
type Client struct {
	r       *resty.Client
	counter string
	limiter *rate.Limiter
}

// DateRange is an inclusive pair of YYYY-MM-DD dates.
type DateRange struct {
	Start string
	End   string
}

func (d DateRange) String() string { return d.Start + ".." + d.End }

// New builds a Client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.CounterID) == "" {
		return nil, errors.New("logsapi: counter id is required")
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("logsapi: token is required")
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	scheme := opts.AuthScheme
	if scheme == "" {
		scheme = "OAuth"
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	r := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetAuthScheme(scheme).
		SetAuthToken(opts.Token).
		SetTimeout(timeout).
		SetHeader("User-Agent", "logexport")

	return &Client{
		r:       r,
		counter: opts.CounterID,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error { return c.r.Close() }

// CounterID returns the counter the client is scoped to.
func (c *Client) CounterID() string { return c.counter }

func (c *Client) counterPath(suffix string) string {
	return "/management/v1/counter/" + url.PathEscape(c.counter) + suffix
}

// do performs one call. A non-nil error is always a *ProviderError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, result any) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{Op: op, Err: err}
	}

	req := c.r.NewRequest().WithContext(ctx)
	if query != nil {
		req.SetQueryString(query.Encode())
	}
	if result != nil {
		req.SetHeader("Accept", "application/json").SetResult(result)
	}

	start := time.Now()
	got, err := req.Execute(method, path)
	code := 0
	if got != nil && err == nil {
		code = got.StatusCode()
	}
	metrics.RecordHTTP("provider", op, code, time.Since(start))

	if err != nil {
		return nil, &ProviderError{Op: op, Err: err}
	}
	if !got.IsSuccess() {
		return got, &ProviderError{
			Op:         op,
			StatusCode: got.StatusCode(),
			Message:    errorMessage(got.Header().Get("Content-Type"), got.String()),
		}
	}
	return got, nil
}

// CounterInfo identifies a counter the token can read.
type CounterInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Site string `json:"site"`
}

// Counter fetches the counter metadata. Used as an access check.
func (c *Client) Counter(ctx context.Context) (CounterInfo, error) {
	var res struct {
		Counter CounterInfo `json:"counter"`
	}
	if _, err := c.do(ctx, "counter", "GET", c.counterPath(""), nil, &res); err != nil {
		return CounterInfo{}, err
	}
	return res.Counter, nil
}

// Evaluation is the provider's answer to "can this request be served".
type Evaluation struct {
	Possible     bool  `json:"possible"`
	ExpectedSize int64 `json:"expected_size"`
}

// Evaluate asks whether fields can be exported for source over dr.
func (c *Client) Evaluate(ctx context.Context, source schema.Source, dr DateRange, fields []schema.FieldSpec) (Evaluation, error) {
	var res struct {
		Evaluation Evaluation `json:"log_request_evaluation"`
	}
	if _, err := c.do(ctx, "evaluate", "GET", c.counterPath("/logrequests/evaluate"), requestQuery(source, dr, fields), &res); err != nil {
		return Evaluation{}, err
	}
	return res.Evaluation, nil
}

func requestQuery(source schema.Source, dr DateRange, fields []schema.FieldSpec) url.Values {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return url.Values{
		"date1":  {dr.Start},
		"date2":  {dr.End},
		"source": {string(source)},
		"fields": {strings.Join(names, ",")},
	}
}

type logRequest struct {
	RequestID json.Number `json:"request_id"`
	Status    string      `json:"status"`
	Parts     []struct {
		PartNumber int   `json:"part_number"`
		Size       int64 `json:"size"`
	} `json:"parts"`
}

func (lr logRequest) job() (ExportJob, error) {
	st, err := ParseJobStatus(lr.Status)
	if err != nil {
		return ExportJob{}, err
	}
	job := ExportJob{RequestID: lr.RequestID.String(), Status: st}
	for _, p := range lr.Parts {
		job.Parts = append(job.Parts, Part{Number: p.PartNumber, Size: p.Size})
	}
	return job, nil
}

// CreateRequest submits an export job and returns the provider's request id.
// fields are sent in the given order.
func (c *Client) CreateRequest(ctx context.Context, source schema.Source, dr DateRange, fields []schema.FieldSpec) (string, error) {
	var res struct {
		LogRequest logRequest `json:"log_request"`
	}
	if _, err := c.do(ctx, "submit", "POST", c.counterPath("/logrequests"), requestQuery(source, dr, fields), &res); err != nil {
		return "", err
	}
	id := res.LogRequest.RequestID.String()
	if id == "" {
		return "", &ProviderError{Op: "submit", Message: "response has no request_id"}
	}
	return id, nil
}

// RequestStatus fetches the current state of a job.
func (c *Client) RequestStatus(ctx context.Context, requestID string) (ExportJob, error) {
	var res struct {
		LogRequest logRequest `json:"log_request"`
	}
	if _, err := c.do(ctx, "status", "GET", c.counterPath("/logrequest/"+url.PathEscape(requestID)), nil, &res); err != nil {
		return ExportJob{}, err
	}
	job, err := res.LogRequest.job()
	if err != nil {
		return ExportJob{}, &ProviderError{Op: "status", Message: err.Error(), Err: err}
	}
	if job.RequestID == "" {
		job.RequestID = requestID
	}
	return job, nil
}

// DownloadPart returns the raw body of one part.
func (c *Client) DownloadPart(ctx context.Context, requestID string, part int) (string, error) {
	path := c.counterPath(fmt.Sprintf("/logrequest/%s/part/%d/download", url.PathEscape(requestID), part))
	got, err := c.do(ctx, "download", "GET", path, nil, nil)
	if err != nil {
		return "", err
	}
	return got.String(), nil
}

// Clean asks the provider to discard a finished job's prepared data.
func (c *Client) Clean(ctx context.Context, requestID string) error {
	_, err := c.do(ctx, "clean", "POST", c.counterPath("/logrequest/"+url.PathEscape(requestID)+"/clean"), nil, nil)
	return err
}
