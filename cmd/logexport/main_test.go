package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"logexport/internal/config"
	"logexport/internal/export"
	"logexport/internal/logsapi/logsapitest"
	"logexport/internal/schema"
	"logexport/internal/storage"
	"logexport/internal/storage/sqldb"
	"logexport/internal/storage/sqlite"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func testDeps(stdout, stderr *bytes.Buffer) deps {
	return deps{
		Stdout:          stdout,
		Stderr:          stderr,
		Now:             func() time.Time { return fixedNow },
		NewLogger:       func(zap.AtomicLevel) *zap.Logger { return zap.NewNop() },
		OpenDestination: storage.Open,
		BackendFactory: func(context.Context, config.Metrics) (backendCloser, error) {
			return nil, nil
		},
	}
}

func writeConfig(t *testing.T, srv *logsapitest.Server, dsn string, extra string) string {
	t.Helper()
	body := fmt.Sprintf(`
ym_token: %s
ym_counter_id: "%s"
ym_api_url: %s
start_date: "2024-04-01"
end_date: "2024-04-02"
hits_fields: ["ym:pv:clientID", "ym:pv:date", "ym:pv:URL"]
visits_fields: ["ym:s:visitID", "ym:s:clientID", "ym:s:date"]
destination:
  kind: sqlite
  dsn: %s
polling:
  interval: 1ms
  max_wait: 5s
%s`, srv.Token, srv.Counter, srv.URL, dsn, extra)
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func sqliteDSN(t *testing.T) string {
	return "file:" + filepath.Join(t.TempDir(), "export.db")
}

func TestRun_Version(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"version"}, testDeps(&out, &errOut))
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "logexport dev\n", out.String())
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "a command is required"},
		{"bad flag", []string{"run", "--no-such-flag"}, "unknown flag"},
		{"exclusive switches", []string{"run", "--hits-only", "--visits-only"}, "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out, errOut bytes.Buffer
			code := run(context.Background(), tt.args, testDeps(&out, &errOut))
			assert.Equal(t, exitBadInput, code)
			assert.Contains(t, errOut.String(), tt.want)
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"ym_counter_id": "x", "start_date": "2024-06-01", "end_date": "2024-06-02", "destination": {"kind": "sqlite", "dsn": "file:x.db"}}`), 0o600))

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"validate", "--config", p}, testDeps(&out, &errOut))
	assert.Equal(t, exitBadInput, code)
	for _, issue := range []string{"ym_token is required", "ym_counter_id must be numeric", "must not be in the future"} {
		assert.Contains(t, errOut.String(), issue)
	}
}

func TestRun_ValidatePrintsRedacted(t *testing.T) {
	t.Parallel()

	srv := logsapitest.New(t)
	p := writeConfig(t, srv, sqliteDSN(t), "")

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"validate", "-c", p}, testDeps(&out, &errOut))
	require.Equal(t, exitOK, code, errOut.String())
	assert.Contains(t, out.String(), "***")
	assert.NotContains(t, out.String(), "ym_token: tok")
	assert.Contains(t, out.String(), "configuration OK")
}

func TestRun_ExportHitsOnly(t *testing.T) {
	t.Parallel()

	srv := logsapitest.New(t)
	srv.Statuses = []string{"created", "processing", "processed"}
	srv.Parts = map[int]string{
		0: "ym:pv:clientID\tym:pv:date\tym:pv:URL\n1\t2024-04-01\thttps://a/\n2\t2024-04-02\thttps://b/\n",
	}
	dsn := sqliteDSN(t)
	p := writeConfig(t, srv, dsn, "")

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"run", "--config", p, "--hits-only"}, testDeps(&out, &errOut))
	require.Equal(t, exitOK, code, "stderr: %s\nstdout: %s", errOut.String(), out.String())

	assert.Contains(t, out.String(), "Export summary for 2024-04-01..2024-04-02")
	assert.Contains(t, out.String(), "hits_complete")
	assert.NotContains(t, out.String(), "visits_complete")
	assert.Len(t, srv.Submissions(), 1)

	dest, err := sqlite.New(context.Background(), storage.Config{DSN: dsn})
	require.NoError(t, err)
	defer dest.Close()
	var n int
	require.NoError(t, dest.(*sqldb.DB).SQL().QueryRow(`SELECT COUNT(*) FROM hits_complete`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestRun_ExportFailureExitsNonZero(t *testing.T) {
	t.Parallel()

	srv := logsapitest.New(t)
	srv.Statuses = []string{"processing_failed"}
	p := writeConfig(t, srv, sqliteDSN(t), "")

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"run", "-c", p}, testDeps(&out, &errOut))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out.String(), "failed (provider_job_failure)")
	assert.Contains(t, errOut.String(), "export failed for hits, visits")
	assert.Len(t, srv.Submissions(), 2, "a failing source does not stop the next")
}

type brokenDest struct{ storage.Destination }

func (brokenDest) Version(context.Context) (string, error) {
	return "", storage.Wrap("sqlite", "version", "", errors.New("connection refused"))
}
func (brokenDest) Close() error { return nil }

func TestRun_DestinationCheckedFirst(t *testing.T) {
	t.Parallel()

	srv := logsapitest.New(t)
	p := writeConfig(t, srv, sqliteDSN(t), "")

	var out, errOut bytes.Buffer
	d := testDeps(&out, &errOut)
	d.OpenDestination = func(context.Context, storage.Config) (storage.Destination, error) {
		return brokenDest{}, nil
	}
	code := run(context.Background(), []string{"run", "-c", p}, d)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut.String(), "connection refused")
	assert.Empty(t, srv.Evaluations())
}

func TestRun_Check(t *testing.T) {
	t.Parallel()

	srv := logsapitest.New(t)
	p := writeConfig(t, srv, sqliteDSN(t), "")

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"check", "-c", p}, testDeps(&out, &errOut))
	require.Equal(t, exitOK, code, "stderr: %s\nstdout: %s", errOut.String(), out.String())

	got := out.String()
	assert.Contains(t, got, "[WARN] token is only 3 characters long")
	assert.Contains(t, got, "[ OK ] counter 42 (test counter) is accessible")
	assert.Contains(t, got, "expected size 3072 bytes")
	assert.Contains(t, got, "[ OK ] hits: all 3 fields available")
	assert.Contains(t, got, "[ OK ] destination sqlite reachable")
	assert.Empty(t, srv.Submissions(), "check never submits jobs")
}

func TestRun_CheckAccessDenied(t *testing.T) {
	t.Parallel()

	srv := logsapitest.New(t)
	p := writeConfig(t, srv, sqliteDSN(t), "")
	srv.Token = "rotated"

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"check", "-c", p}, testDeps(&out, &errOut))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out.String(), "[FAIL] access to counter 42 denied")
	assert.Contains(t, errOut.String(), "1 check(s) failed")
}

func TestWriteSummary_Columns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := writeConfig(t, logsapitest.New(t), sqliteDSN(t), "")
	cfg, err := config.LoadFile(p)
	require.NoError(t, err)
	plan := buildPlan(cfg, schema.Default())
	require.Len(t, plan.Sources, 2)
	assert.Equal(t, "hits_complete", plan.Sources[0].Table)
	assert.Len(t, plan.Sources[1].Fields, 3)

	writeSummary(&buf, plan, exportReportFixture())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[1], "SOURCE"))
	assert.Contains(t, lines[2], "ok")
	assert.Contains(t, lines[3], "failed (other)")
	assert.Equal(t, "visits: provider status: HTTP 500", lines[4])
}

func exportReportFixture() export.Report {
	return export.Report{Results: []export.SourceResult{
		{Source: schema.SourceHits, Table: "hits_complete", OK: true, Columns: 3, Rows: 10, Duration: 1500 * time.Millisecond},
		{Source: schema.SourceVisits, Table: "visits_complete", Err: errors.New("provider status: HTTP 500")},
	}}
}
