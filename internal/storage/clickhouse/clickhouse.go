// Package clickhouse registers the "clickhouse" destination, which talks to
// the ClickHouse HTTP interface.
//
// Rows are sent unchanged as gzip-compressed TabSeparatedWithNames, so cell
// escapes from the provider reach the server intact.
package clickhouse

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/gjson"
	"resty.dev/v3"

	"logexport/internal/dataset"
	"logexport/internal/metrics"
	"logexport/internal/schema"
	"logexport/internal/storage"
)

func init() {
	storage.Register("clickhouse", New)
}

// Destination is a ClickHouse server reached over HTTP(S).
type Destination struct {
	r        *resty.Client
	database string
}

// New builds a client for cfg.URL (e.g. "https://host:8443"). A bare host
// gets https:// and port 8443. cfg.CACert, when set, is the only trusted root
// for https URLs; plain http ignores it.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	base, err := baseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CACert != "" && strings.HasPrefix(base, "https://") {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA certificate %s: no PEM certificates found", cfg.CACert)
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	r := resty.NewWithClient(&http.Client{Transport: tr}).
		SetBaseURL(base).
		SetTimeout(10 * time.Minute)
	if cfg.User != "" {
		r.SetHeader("X-ClickHouse-User", cfg.User)
	}
	if cfg.Password != "" {
		r.SetHeader("X-ClickHouse-Key", cfg.Password)
	}

	return &Destination{r: r, database: cfg.Database}, nil
}

func baseURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", errors.New("clickhouse: URL is required")
	}
	if strings.Contains(raw, "://") {
		return raw, nil
	}
	if !strings.Contains(raw, ":") {
		raw += ":8443"
	}
	return "https://" + raw, nil
}

func (d *Destination) Kind() string { return "clickhouse" }

func (d *Destination) Dialect() storage.Dialect { return Dialect{} }

func (d *Destination) Close() error { return d.r.Close() }

// query posts body as the statement, or as data for the statement in q.
func (d *Destination) query(ctx context.Context, op string, params map[string]string, body any, headers map[string]string) (*resty.Response, error) {
	req := d.r.NewRequest().WithContext(ctx).SetBody(body)
	if d.database != "" {
		req.SetQueryParam("database", d.database)
	}
	req.SetQueryParams(params)
	req.SetHeaders(headers)

	start := time.Now()
	got, err := req.Post("/")
	code := 0
	if err == nil {
		code = got.StatusCode()
	}
	metrics.RecordHTTP("clickhouse", op, code, time.Since(start))
	if err != nil {
		return nil, err
	}
	if !got.IsSuccess() {
		return nil, fmt.Errorf("HTTP %d: %s", got.StatusCode(), serverMessage(got.String()))
	}
	return got, nil
}

func (d *Destination) Version(ctx context.Context) (string, error) {
	got, err := d.query(ctx, "version", nil, "SELECT version()", nil)
	if err != nil {
		return "", storage.Wrap("clickhouse", "version", "", err)
	}
	return strings.TrimSpace(got.String()), nil
}

func (d *Destination) Exec(ctx context.Context, stmt string) error {
	_, err := d.query(ctx, "exec", nil, stmt, nil)
	return storage.Wrap("clickhouse", "exec", "", err)
}

// BulkLoad streams data as TabSeparatedWithNames. Empty cells load as the
// column default.
func (d *Destination) BulkLoad(ctx context.Context, table string, cols []storage.Column, data *dataset.Table) (int64, error) {
	if data.Rows() == 0 {
		return 0, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := data.WriteTSV(zw); err != nil {
		return 0, storage.Wrap("clickhouse", "encode", table, err)
	}
	if err := zw.Close(); err != nil {
		return 0, storage.Wrap("clickhouse", "encode", table, err)
	}

	params := map[string]string{
		"query":                             InsertSQL(table, cols),
		"input_format_tsv_empty_as_default": "1",
	}
	got, err := d.query(ctx, "insert", params, buf.Bytes(), map[string]string{
		"Content-Encoding": "gzip",
		"Content-Type":     "text/tab-separated-values",
	})
	if err != nil {
		return 0, storage.Wrap("clickhouse", "insert", table, err)
	}
	if n, ok := writtenRows(got.Header().Get("X-ClickHouse-Summary")); ok {
		return n, nil
	}
	return int64(data.Rows()), nil
}

func writtenRows(summary string) (int64, bool) {
	v := gjson.Get(summary, "written_rows")
	if !v.Exists() {
		return 0, false
	}
	n, err := strconv.ParseInt(v.String(), 10, 64)
	return n, err == nil
}

// serverMessage trims a ClickHouse error body to its first line.
func serverMessage(body string) string {
	body = strings.TrimSpace(body)
	if v := gjson.Get(body, "exception"); gjson.Valid(body) && v.Exists() {
		body = v.String()
	}
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[:i]
	}
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return body
}

// InsertSQL is the INSERT statement BulkLoad sends.
func InsertSQL(table string, cols []storage.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = chIdent(c.Name)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) FORMAT TabSeparatedWithNames", chTable(table), strings.Join(names, ", "))
}

// Dialect renders ClickHouse DDL.
type Dialect struct{}

func (Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + chTable(table)
}

// CreateTableSQL builds a MergeTree table ordered by the hashed sort key and
// the date column. Without a sort key there is no SAMPLE BY; without either
// hint the table is ordered by tuple().
func (Dialect) CreateTableSQL(spec storage.TableSpec) []string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s\n(\n", chTable(spec.Name))
	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "    %s %s", chIdent(c.Name), columnType(c.Type))
	}
	b.WriteString("\n)\nENGINE = MergeTree()\n")

	var order []string
	if spec.SortKey != "" {
		order = append(order, "intHash32("+chIdent(spec.SortKey)+")")
	}
	if spec.DateColumn != "" {
		order = append(order, chIdent(spec.DateColumn))
	}
	if len(order) == 0 {
		b.WriteString("ORDER BY tuple()\n")
	} else {
		fmt.Fprintf(&b, "ORDER BY (%s)\n", strings.Join(order, ", "))
	}
	if spec.SortKey != "" {
		fmt.Fprintf(&b, "SAMPLE BY intHash32(%s)\n", chIdent(spec.SortKey))
	}
	b.WriteString("SETTINGS index_granularity=8192")
	return []string{b.String()}
}

func columnType(t schema.ScalarType) string {
	if t == "" {
		return string(schema.String)
	}
	return string(t)
}

var bareIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func chIdent(id string) string {
	if bareIdent.MatchString(id) {
		return id
	}
	return "`" + strings.NewReplacer(`\`, `\\`, "`", "\\`").Replace(id) + "`"
}

func chTable(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = chIdent(parts[i])
	}
	return strings.Join(parts, ".")
}

var _ storage.Destination = (*Destination)(nil)
