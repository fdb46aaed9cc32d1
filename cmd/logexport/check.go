package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"logexport/internal/config"
	"logexport/internal/logsapi"
	"logexport/internal/schema"
)

// minimalVisitFields is the smallest request the provider should always accept.
var minimalVisitFields = []schema.FieldSpec{"ym:s:visitID", "ym:s:date", "ym:s:clientID"}

const (
	minTokenLength = 20
	maxQuietDays   = 90
)

func NewCmdCheck(d deps) *cobra.Command {
	o := &GlobalOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check credentials, counter access, dates and the destination without exporting.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.Load(d.Now())
			if err != nil {
				return err
			}
			c := &checker{w: d.Stdout}
			c.run(cmd.Context(), cfg, d)
			if c.failed > 0 {
				return &exitError{code: exitFailure, err: fmt.Errorf("%d check(s) failed", c.failed)}
			}
			return nil
		},
	}
	o.Bind(cmd.Flags())
	return cmd
}

type checker struct {
	w      io.Writer
	failed int
}

func (c *checker) ok(format string, args ...any) {
	fmt.Fprintf(c.w, "[ OK ] "+format+"\n", args...)
}

func (c *checker) warn(format string, args ...any) {
	fmt.Fprintf(c.w, "[WARN] "+format+"\n", args...)
}

func (c *checker) fail(format string, args ...any) {
	c.failed++
	fmt.Fprintf(c.w, "[FAIL] "+format+"\n", args...)
}

func (c *checker) run(ctx context.Context, cfg *config.Config, d deps) {
	if len(cfg.Token) < minTokenLength {
		c.warn("token is only %d characters long; it may be truncated", len(cfg.Token))
	} else {
		c.ok("token is set")
	}

	if days := cfg.Days(); days > maxQuietDays {
		c.warn("date range %s..%s spans %d days; large ranges may exceed provider quotas", cfg.StartDate, cfg.EndDate, days)
	} else {
		c.ok("date range %s..%s (%d days)", cfg.StartDate, cfg.EndDate, days)
	}

	client, err := logsapi.New(logsapi.Options{
		BaseURL:           cfg.APIURL,
		CounterID:         cfg.CounterID,
		Token:             cfg.Token,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		c.fail("provider client: %v", err)
		return
	}
	defer client.Close()

	if c.counter(ctx, client) {
		dr := logsapi.DateRange{Start: cfg.StartDate, End: cfg.EndDate}
		c.evaluate(ctx, client, dr)
		probe := &logsapi.FieldProbe{Client: client}
		reg := schema.Default()
		for _, src := range cfg.Sources() {
			fields := cfg.Fields(src, reg)
			a, err := probe.Probe(ctx, src, dr, fields)
			switch {
			case err != nil:
				c.fail("%s fields: %v", src, err)
			case len(a.Available) == 0:
				c.fail("%s: none of %d fields is available", src, len(fields))
			case len(a.Unavailable) > 0:
				c.warn("%s: %d of %d fields available; unavailable: %v", src, len(a.Available), len(fields), a.Unavailable)
			default:
				c.ok("%s: all %d fields available", src, len(fields))
			}
		}
	}

	dest, err := d.OpenDestination(ctx, destinationConfig(cfg))
	if err != nil {
		c.fail("destination %s: %v", cfg.Destination.Kind, err)
		return
	}
	defer dest.Close()
	if v, err := dest.Version(ctx); err != nil {
		c.fail("destination %s: %v", cfg.Destination.Kind, err)
	} else {
		c.ok("destination %s reachable, version %s", dest.Kind(), v)
	}
}

// counter reports whether the counter is readable with the token.
func (c *checker) counter(ctx context.Context, client *logsapi.Client) bool {
	info, err := client.Counter(ctx)
	if err == nil {
		c.ok("counter %s (%s) is accessible", client.CounterID(), info.Name)
		return true
	}
	var pe *logsapi.ProviderError
	switch {
	case errors.As(err, &pe) && pe.StatusCode == http.StatusForbidden:
		c.fail("access to counter %s denied; check the token and its permissions", client.CounterID())
	case errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound:
		c.fail("counter %s not found", client.CounterID())
	default:
		c.fail("counter %s: %v", client.CounterID(), err)
	}
	return false
}

func (c *checker) evaluate(ctx context.Context, client *logsapi.Client, dr logsapi.DateRange) {
	ev, err := client.Evaluate(ctx, schema.SourceVisits, dr, minimalVisitFields)
	switch {
	case err != nil:
		c.fail("minimal visits request: %v", err)
	case !ev.Possible:
		c.fail("minimal visits request is not possible for %s", dr)
	default:
		c.ok("minimal visits request possible, expected size %d bytes", ev.ExpectedSize)
	}
}
