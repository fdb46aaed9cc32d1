// Package config loads exporter settings from a YAML/JSON file or from the
// environment, and validates them.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"sigs.k8s.io/yaml"

	"logexport/internal/schema"
)

// Config is the full exporter configuration. The embedded sections keep the
// flat keys of existing config files (ym_token, ch_host, ...).
type Config struct {
	Provider
	Period
	ClickHouse
	Selection

	Destination Destination `json:"destination"`
	Polling     Polling     `json:"polling"`
	Archive     Archive     `json:"archive"`
	Metrics     Metrics     `json:"metrics"`

	LogLevel string `json:"log_level" envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// Provider is the analytics API account.
type Provider struct {
	Token     string `json:"ym_token" envconfig:"YM_TOKEN" validate:"required"`
	CounterID string `json:"ym_counter_id" envconfig:"YM_COUNTER_ID" validate:"required,numeric"`
	// APIURL overrides the provider endpoint.
	APIURL            string  `json:"ym_api_url" envconfig:"YM_API_URL"`
	RequestsPerSecond float64 `json:"ym_requests_per_second" envconfig:"YM_REQUESTS_PER_SECOND" default:"10" validate:"gte=0"`
}

// Period is the inclusive export date range, YYYY-MM-DD.
type Period struct {
	StartDate string `json:"start_date" envconfig:"YM_START_DATE" validate:"required"`
	EndDate   string `json:"end_date" envconfig:"YM_END_DATE" validate:"required"`
}

// ClickHouse holds the ClickHouse connection settings.
type ClickHouse struct {
	Host     string `json:"ch_host" envconfig:"CH_HOST"`
	User     string `json:"ch_user" envconfig:"CH_USER"`
	Password string `json:"ch_pass" envconfig:"CH_PASS"`
	CACert   string `json:"ch_cacert" envconfig:"CH_CACERT" default:"YandexInternalRootCA.crt"`
	Database string `json:"ch_database" envconfig:"CH_DATABASE" default:"default"`
}

// Selection picks which sources run and with which fields.
type Selection struct {
	ExportHits   bool `json:"export_hits" envconfig:"EXPORT_HITS" default:"true"`
	ExportVisits bool `json:"export_visits" envconfig:"EXPORT_VISITS" default:"true"`
	// HitsFields and VisitsFields replace the curated field lists.
	HitsFields   []string `json:"hits_fields" envconfig:"HITS_FIELDS"`
	VisitsFields []string `json:"visits_fields" envconfig:"VISITS_FIELDS"`
}

// Destination selects the store. Kind other than clickhouse reads DSN.
type Destination struct {
	Kind        string `json:"kind" envconfig:"DEST_KIND" default:"clickhouse" validate:"required,oneof=clickhouse postgres sqlite mssql mysql duckdb"`
	DSN         string `json:"dsn" envconfig:"DEST_DSN"`
	HitsTable   string `json:"hits_table" envconfig:"HITS_TABLE"`
	VisitsTable string `json:"visits_table" envconfig:"VISITS_TABLE"`
}

// Polling bounds the wait for export jobs.
type Polling struct {
	Interval Duration `json:"interval" envconfig:"POLL_INTERVAL" default:"10s"`
	MaxWait  Duration `json:"max_wait" envconfig:"POLL_MAX_WAIT" default:"30m"`
	// Clean removes prepared job data from the provider after a successful load.
	Clean bool `json:"clean" envconfig:"YM_CLEAN_REQUESTS"`
}

// Archive optionally keeps raw part bodies in S3-compatible storage.
type Archive struct {
	Endpoint  string `json:"endpoint" envconfig:"ARCHIVE_ENDPOINT"`
	Bucket    string `json:"bucket" envconfig:"ARCHIVE_BUCKET" validate:"required_with=Endpoint"`
	Prefix    string `json:"prefix" envconfig:"ARCHIVE_PREFIX" default:"logexport"`
	AccessKey string `json:"access_key" envconfig:"ARCHIVE_ACCESS_KEY"`
	SecretKey string `json:"secret_key" envconfig:"ARCHIVE_SECRET_KEY"`
	Secure    bool   `json:"secure" envconfig:"ARCHIVE_SECURE" default:"true"`
}

// Enabled reports whether an archive endpoint is configured.
func (a Archive) Enabled() bool { return a.Endpoint != "" }

// Metrics selects the metrics backend.
type Metrics struct {
	Backend        string   `json:"backend" envconfig:"METRICS_BACKEND" validate:"omitempty,oneof=none datadog pushgateway"`
	PushgatewayURL string   `json:"pushgateway_url" envconfig:"PUSHGATEWAY_URL" default:"http://localhost:9091"`
	Job            string   `json:"job" envconfig:"METRICS_JOB" default:"logexport"`
	Tags           []string `json:"tags" envconfig:"METRICS_TAGS"`
}

// Duration is a time.Duration written as "10s", "30m" in files and env.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Defaults returns the configuration with every default applied and no
// credentials set.
func Defaults() Config {
	return Config{
		Provider:   Provider{RequestsPerSecond: 10},
		ClickHouse: ClickHouse{CACert: "YandexInternalRootCA.crt", Database: "default"},
		Selection:  Selection{ExportHits: true, ExportVisits: true},
		Destination: Destination{
			Kind: "clickhouse",
		},
		Polling: Polling{
			Interval: Duration(10 * time.Second),
			MaxWait:  Duration(30 * time.Minute),
		},
		Archive:  Archive{Prefix: "logexport", Secure: true},
		Metrics:  Metrics{PushgatewayURL: "http://localhost:9091", Job: "logexport"},
		LogLevel: "info",
	}
}

// LoadFile reads a YAML or JSON file over Defaults.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, &ValidationError{Issues: []string{fmt.Sprintf("parse %s: %v", path, err)}}
	}
	return &cfg, nil
}

// LoadEnv reads the configuration from environment variables.
func LoadEnv() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, &ValidationError{Issues: []string{err.Error()}}
	}
	return cfg, nil
}

// Load reads path when set, the environment otherwise.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	return LoadEnv()
}

// Only restricts the run to one source. Both false leaves the selection as is.
func (c *Config) Only(hits, visits bool) {
	switch {
	case hits && !visits:
		c.ExportHits, c.ExportVisits = true, false
	case visits && !hits:
		c.ExportHits, c.ExportVisits = false, true
	}
}

// Sources lists the enabled sources in export order.
func (c *Config) Sources() []schema.Source {
	var out []schema.Source
	if c.ExportHits {
		out = append(out, schema.SourceHits)
	}
	if c.ExportVisits {
		out = append(out, schema.SourceVisits)
	}
	return out
}

// Table is the destination table for source. ClickHouse tables live in
// ch_database; other stores use the bare name unless overridden.
func (c *Config) Table(source schema.Source) string {
	name := string(source) + "_complete"
	switch source {
	case schema.SourceHits:
		if c.Destination.HitsTable != "" {
			return c.Destination.HitsTable
		}
	case schema.SourceVisits:
		if c.Destination.VisitsTable != "" {
			return c.Destination.VisitsTable
		}
	}
	if c.Destination.Kind == "clickhouse" && c.Database != "" {
		return c.Database + "." + name
	}
	return name
}

// Fields returns the configured field list for source, or the curated list
// from reg.
func (c *Config) Fields(source schema.Source, reg *schema.Registry) []schema.FieldSpec {
	var override []string
	switch source {
	case schema.SourceHits:
		override = c.HitsFields
	case schema.SourceVisits:
		override = c.VisitsFields
	}
	if len(override) > 0 {
		out := make([]schema.FieldSpec, 0, len(override))
		for _, f := range override {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, schema.FieldSpec(f))
			}
		}
		return out
	}
	if m, ok := reg.Mapping(source); ok {
		return m.Fields()
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.Token = mask(c.Token)
	c.Password = mask(c.Password)
	c.Archive.SecretKey = mask(c.Archive.SecretKey)
	if c.Destination.DSN != "" && c.Destination.Kind != "sqlite" && c.Destination.Kind != "duckdb" {
		c.Destination.DSN = "***"
	}
	return c
}
