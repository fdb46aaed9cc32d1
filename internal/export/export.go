// Package export runs the end-to-end export of each configured source:
// probe fields, submit, poll, fetch, derive the schema, recreate the table
// and upload.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"logexport/internal/dataset"
	"logexport/internal/event"
	"logexport/internal/logsapi"
	"logexport/internal/metrics"
	"logexport/internal/schema"
)

// ErrNoAvailableFields fails a source whose requested fields are all
// unavailable.
var ErrNoAvailableFields = errors.New("no requested field is available")

// Dependencies, declared where they are used.
type (
	Prober interface {
		Probe(ctx context.Context, source schema.Source, dr logsapi.DateRange, fields []schema.FieldSpec) (logsapi.Availability, error)
	}
	Jobs interface {
		Submit(ctx context.Context, source schema.Source, dr logsapi.DateRange, fields []schema.FieldSpec) (string, error)
		Poll(ctx context.Context, requestID string, maxWait time.Duration) (logsapi.ExportJob, error)
	}
	Fetcher interface {
		Fetch(ctx context.Context, requestID string, parts []logsapi.Part) (*dataset.Table, error)
	}
	Mapper interface {
		Derive(available []schema.FieldSpec, source schema.Source, obs event.Observer) (schema.DestinationSchema, error)
	}
	Provisioner interface {
		Provision(ctx context.Context, table string, s schema.DestinationSchema) error
	}
	Uploader interface {
		Upload(ctx context.Context, table string, ds *dataset.Table, s schema.DestinationSchema) (int64, error)
	}
	// Cleaner discards a job's prepared data on the provider.
	Cleaner interface {
		Clean(ctx context.Context, requestID string) error
	}
)

// SourcePlan is one source to export into one table.
type SourcePlan struct {
	Source schema.Source
	Fields []schema.FieldSpec
	Table  string
}

// Plan is a full run.
type Plan struct {
	DateRange logsapi.DateRange
	Sources   []SourcePlan
}

// SourceResult is the outcome for one source.
type SourceResult struct {
	Source      schema.Source
	Table       string
	OK          bool
	Err         error
	Available   []schema.FieldSpec
	Unavailable []schema.FieldSpec
	RequestID   string
	Columns     int
	Rows        int64
	Duration    time.Duration
}

// Report collects per-source results in plan order.
type Report struct {
	Results []SourceResult
}

// OK is true only when every source succeeded.
func (r Report) OK() bool {
	for _, res := range r.Results {
		if !res.OK {
			return false
		}
	}
	return true
}

// Runner wires the pipeline stages.
type Runner struct {
	Probe       Prober
	Jobs        Jobs
	Parts       Fetcher
	Mapper      Mapper
	Provisioner Provisioner
	Uploader    Uploader
	// Cleaner is optional; when set, finished jobs are cleaned after upload.
	Cleaner  Cleaner
	Observer event.Observer
	// MaxWait bounds polling per source. <= 0 means the poller default.
	MaxWait time.Duration

	now func() time.Time
}

// Run exports every source in plan order. A failing source does not stop
// the others.
func (r *Runner) Run(ctx context.Context, plan Plan) Report {
	var rep Report
	for _, sp := range plan.Sources {
		if err := ctx.Err(); err != nil {
			rep.Results = append(rep.Results, SourceResult{Source: sp.Source, Table: sp.Table, Err: err})
			continue
		}
		rep.Results = append(rep.Results, r.runSource(ctx, plan.DateRange, sp))
	}
	return rep
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// step times fn and records it.
func (r *Runner) step(source schema.Source, name string, fn func() error) error {
	start := r.clock()
	err := fn()
	metrics.RecordStep(string(source), name, err, r.clock().Sub(start))
	return err
}

func (r *Runner) runSource(ctx context.Context, dr logsapi.DateRange, sp SourcePlan) (res SourceResult) {
	obs := event.With(r.Observer, "source", string(sp.Source))
	res = SourceResult{Source: sp.Source, Table: sp.Table}
	start := r.clock()
	defer func() {
		res.Duration = r.clock().Sub(start)
		res.OK = res.Err == nil
		if res.Err != nil {
			obs.OnEvent(event.LevelError, "export failed", "kind", Classify(res.Err).String(), "err", res.Err)
		} else {
			obs.OnEvent(event.LevelInfo, "export finished", "table", sp.Table, "rows", res.Rows, "columns", res.Columns)
		}
	}()

	obs.OnEvent(event.LevelInfo, "export started", "range", dr.String(), "fields", len(sp.Fields), "table", sp.Table)

	var avail logsapi.Availability
	if res.Err = r.step(sp.Source, "probe", func() (err error) {
		avail, err = r.Probe.Probe(ctx, sp.Source, dr, sp.Fields)
		if err == nil && len(avail.Available) == 0 {
			err = fmt.Errorf("%s: %w", sp.Source, ErrNoAvailableFields)
		}
		return err
	}); res.Err != nil {
		res.Unavailable = avail.Unavailable
		return res
	}
	res.Available, res.Unavailable = avail.Available, avail.Unavailable
	obs.OnEvent(event.LevelInfo, "fields evaluated",
		"available", len(avail.Available), "unavailable", len(avail.Unavailable), "expected_size", avail.ExpectedSize)

	if res.Err = r.step(sp.Source, "submit", func() (err error) {
		res.RequestID, err = r.Jobs.Submit(ctx, sp.Source, dr, avail.Available)
		return err
	}); res.Err != nil {
		return res
	}

	var job logsapi.ExportJob
	if res.Err = r.step(sp.Source, "poll", func() (err error) {
		job, err = r.Jobs.Poll(ctx, res.RequestID, r.MaxWait)
		return err
	}); res.Err != nil {
		return res
	}

	var ds *dataset.Table
	if res.Err = r.step(sp.Source, "fetch", func() (err error) {
		ds, err = r.Parts.Fetch(ctx, res.RequestID, job.Parts)
		return err
	}); res.Err != nil {
		return res
	}

	var dst schema.DestinationSchema
	if res.Err = r.step(sp.Source, "derive", func() (err error) {
		dst, err = r.Mapper.Derive(avail.Available, sp.Source, obs)
		if err == nil && len(dst.Columns) == 0 {
			err = fmt.Errorf("%s: none of the available fields has a column mapping", sp.Source)
		}
		return err
	}); res.Err != nil {
		return res
	}
	res.Columns = len(dst.Columns)

	if res.Err = r.step(sp.Source, "provision", func() error {
		return r.Provisioner.Provision(ctx, sp.Table, dst)
	}); res.Err != nil {
		return res
	}

	if res.Err = r.step(sp.Source, "upload", func() (err error) {
		res.Rows, err = r.Uploader.Upload(ctx, sp.Table, ds, dst)
		return err
	}); res.Err != nil {
		return res
	}

	if r.Cleaner != nil {
		if err := r.Cleaner.Clean(ctx, res.RequestID); err != nil {
			obs.OnEvent(event.LevelWarn, "clean export job failed", "request_id", res.RequestID, "err", err)
		}
	}
	return res
}
