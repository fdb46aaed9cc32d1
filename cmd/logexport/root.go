package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"logexport/internal/config"
	applog "logexport/internal/log"
	"logexport/internal/metrics"
	"logexport/internal/metrics/datadog"
	"logexport/internal/metrics/prompush"
	"logexport/internal/storage"
	_ "logexport/internal/storage/all"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitBadInput = 2
)

// backendCloser is a metrics backend the command must close on exit.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are the external seams of the command.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	Now             func() time.Time
	NewLogger       func(lvl zap.AtomicLevel) *zap.Logger
	OpenDestination func(ctx context.Context, cfg storage.Config) (storage.Destination, error)
	BackendFactory  func(ctx context.Context, cfg config.Metrics) (backendCloser, error)
}

func defaultDeps() deps {
	return deps{
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
		Now:             time.Now,
		NewLogger:       applog.InitLog,
		OpenDestination: storage.Open,
		BackendFactory:  newMetricsBackend,
	}
}

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func run(ctx context.Context, args []string, d deps) int {
	root := NewRootCommand(d)
	root.SetArgs(args)
	root.SetOut(d.Stdout)
	root.SetErr(d.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(d.Stderr, "Error:", err)

	var ee *exitError
	var ve *config.ValidationError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case errors.As(err, &ve):
		return exitBadInput
	}
	return exitFailure
}

// NewRootCommand builds the logexport command tree.
func NewRootCommand(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "logexport",
		Short:         "Export raw analytics logs into a database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return &exitError{code: exitBadInput, err: errors.New("a command is required")}
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: exitBadInput, err: err}
	})

	cmd.AddCommand(NewCmdRun(d))
	cmd.AddCommand(NewCmdCheck(d))
	cmd.AddCommand(NewCmdValidate(d))
	cmd.AddCommand(NewCmdVersion(d))
	return cmd
}

// GlobalOptions are the flags every config-reading command shares.
type GlobalOptions struct {
	ConfigFile string
	HitsOnly   bool
	VisitsOnly bool
	LogLevel   string
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFile, "config", "c", o.ConfigFile, "Path to a YAML or JSON configuration file. Without it, settings come from the environment.")
	fs.BoolVar(&o.HitsOnly, "hits-only", o.HitsOnly, "Export only hits.")
	fs.BoolVar(&o.VisitsOnly, "visits-only", o.VisitsOnly, "Export only visits.")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level: debug, info, warn or error. Overrides the configuration.")
}

func (o *GlobalOptions) Validate() error {
	if o.HitsOnly && o.VisitsOnly {
		return &exitError{code: exitBadInput, err: errors.New("--hits-only and --visits-only are mutually exclusive")}
	}
	return nil
}

// Load reads and validates the configuration with the flag overrides applied.
func (o *GlobalOptions) Load(now time.Time) (*config.Config, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.Only(o.HitsOnly, o.VisitsOnly)
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if err := cfg.Validate(now); err != nil {
		return nil, err
	}
	return cfg, nil
}

// destinationConfig maps the exporter configuration onto storage settings.
func destinationConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Kind:     cfg.Destination.Kind,
		DSN:      cfg.Destination.DSN,
		URL:      cfg.Host,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		CACert:   cfg.CACert,
	}
}

// flushOnClose gives a push backend the Close the command expects.
type flushOnClose struct {
	*prompush.Backend
}

func (f flushOnClose) Close() error { return f.Flush() }

// newMetricsBackend returns nil for "" and "none".
func newMetricsBackend(ctx context.Context, cfg config.Metrics) (backendCloser, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{JobName: cfg.Job, Tags: cfg.Tags})
		if err != nil {
			return nil, err
		}
		return b, nil
	case "pushgateway":
		b, err := prompush.NewBackend(cfg.Job, cfg.PushgatewayURL)
		if err != nil {
			return nil, err
		}
		return flushOnClose{b}, nil
	}
	return nil, fmt.Errorf("unknown metrics backend %q", cfg.Backend)
}
