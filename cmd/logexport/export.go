package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"logexport/internal/archive"
	"logexport/internal/config"
	"logexport/internal/event"
	"logexport/internal/export"
	"logexport/internal/load"
	applog "logexport/internal/log"
	"logexport/internal/logsapi"
	"logexport/internal/metrics"
	"logexport/internal/schema"
)

type RunOptions struct {
	GlobalOptions

	MetricsBackend string
}

func NewCmdRun(d deps) *cobra.Command {
	o := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Export the configured sources into the destination.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.Run(cmd.Context(), d)
		},
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *RunOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVar(&o.MetricsBackend, "metrics-backend", o.MetricsBackend, "Metrics backend: none, datadog or pushgateway. Overrides the configuration.")
}

func (o *RunOptions) Run(ctx context.Context, d deps) error {
	cfg, err := o.Load(d.Now())
	if err != nil {
		return err
	}
	if o.MetricsBackend != "" {
		cfg.Metrics.Backend = o.MetricsBackend
	}

	runID := uuid.NewString()
	logger := d.NewLogger(applog.ParseLevel(cfg.LogLevel))
	defer func() { _ = logger.Sync() }()
	obs := event.With(applog.NewObserver(logger), "run_id", runID)

	mb, err := d.BackendFactory(ctx, cfg.Metrics)
	if err != nil {
		obs.OnEvent(event.LevelWarn, "metrics backend disabled", "backend", cfg.Metrics.Backend, "err", err)
	} else if mb != nil {
		metrics.SetBackend(mb)
		defer func() {
			if err := mb.Close(); err != nil {
				obs.OnEvent(event.LevelWarn, "metrics flush failed", "err", err)
			}
			metrics.SetBackend(nil)
		}()
	}

	dest, err := d.OpenDestination(ctx, destinationConfig(cfg))
	if err != nil {
		return err
	}
	defer dest.Close()
	version, err := dest.Version(ctx)
	if err != nil {
		return fmt.Errorf("destination check: %w", err)
	}
	obs.OnEvent(event.LevelInfo, "destination reachable", "kind", dest.Kind(), "version", version)

	client, err := logsapi.New(logsapi.Options{
		BaseURL:           cfg.APIURL,
		CounterID:         cfg.CounterID,
		Token:             cfg.Token,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	fetcher := &logsapi.PartFetcher{Client: client, Observer: obs}
	if cfg.Archive.Enabled() {
		store, err := archive.New(
			archive.WithEndpoint(cfg.Archive.Endpoint),
			archive.WithBucket(cfg.Archive.Bucket),
			archive.WithPrefix(cfg.Archive.Prefix),
			archive.WithAccessKey(cfg.Archive.AccessKey),
			archive.WithSecretKey(cfg.Archive.SecretKey),
			archive.WithSSL(cfg.Archive.Secure),
			archive.WithRunID(runID),
		)
		if err != nil {
			return err
		}
		fetcher.Archive = store
	}

	reg := schema.Default()
	runner := &export.Runner{
		Probe:       &logsapi.FieldProbe{Client: client, Observer: obs},
		Jobs:        &logsapi.JobClient{Client: client, Observer: obs, Interval: cfg.Polling.Interval.D()},
		Parts:       fetcher,
		Mapper:      reg,
		Provisioner: &load.Provisioner{Dest: dest, Observer: obs},
		Uploader:    &load.Uploader{Dest: dest, Observer: obs},
		Observer:    obs,
		MaxWait:     cfg.Polling.MaxWait.D(),
	}
	if cfg.Polling.Clean {
		runner.Cleaner = client
	}

	plan := buildPlan(cfg, reg)
	rep := runner.Run(ctx, plan)
	writeSummary(d.Stdout, plan, rep)

	if !rep.OK() {
		failed := make([]string, 0, len(rep.Results))
		for _, r := range rep.Results {
			if !r.OK {
				failed = append(failed, string(r.Source))
			}
		}
		return &exitError{code: exitFailure, err: fmt.Errorf("export failed for %s", strings.Join(failed, ", "))}
	}
	return nil
}

func buildPlan(cfg *config.Config, reg *schema.Registry) export.Plan {
	plan := export.Plan{DateRange: logsapi.DateRange{Start: cfg.StartDate, End: cfg.EndDate}}
	for _, src := range cfg.Sources() {
		plan.Sources = append(plan.Sources, export.SourcePlan{
			Source: src,
			Fields: cfg.Fields(src, reg),
			Table:  cfg.Table(src),
		})
	}
	return plan
}

func writeSummary(w io.Writer, plan export.Plan, rep export.Report) {
	fmt.Fprintf(w, "Export summary for %s\n", plan.DateRange)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tTABLE\tSTATUS\tCOLUMNS\tROWS\tUNAVAILABLE\tDURATION")
	for _, r := range rep.Results {
		status := "ok"
		if !r.OK {
			status = "failed (" + export.Classify(r.Err).String() + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.Source, r.Table, status, r.Columns, r.Rows, len(r.Unavailable), r.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
	for _, r := range rep.Results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s: %v\n", r.Source, r.Err)
		}
	}
}
