package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"logexport/internal/dataset"
	"logexport/internal/schema"
	"logexport/internal/storage"
	"logexport/internal/storage/sqldb"
)

func hitsSpec() storage.TableSpec {
	return storage.TableSpec{
		Name: "hits_complete",
		Columns: []storage.Column{
			{Name: "ClientID", Type: schema.UInt64},
			{Name: "EventDate", Type: schema.Date},
			{Name: "URL", Type: schema.String},
		},
		SortKey:    "ClientID",
		DateColumn: "EventDate",
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	stmts := Flavor.CreateTableSQL(hitsSpec())
	if len(stmts) != 2 {
		t.Fatalf("stmts=%d, want 2", len(stmts))
	}
	for _, want := range []string{`CREATE TABLE "hits_complete"`, `"ClientID" TEXT NULL`, `"URL" TEXT NULL`} {
		if !strings.Contains(stmts[0], want) {
			t.Fatalf("create missing %q:\n%s", want, stmts[0])
		}
	}
	if want := `CREATE INDEX "ix_hits_complete_layout" ON "hits_complete" ("ClientID", "EventDate")`; stmts[1] != want {
		t.Fatalf("index=%q, want %q", stmts[1], want)
	}
	if got := Flavor.DropTableSQL("main.t"); got != `DROP TABLE IF EXISTS "main"."t"` {
		t.Fatalf("drop=%q", got)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	got := Flavor.BuildInsertSQL("t", []storage.Column{{Name: "a"}, {Name: "b"}}, 2)
	want := `INSERT INTO "t" ("a", "b") VALUES (?, ?), (?, ?)`
	if got != want {
		t.Fatalf("sql=%q, want %q", got, want)
	}
	if n := Flavor.BatchRows(41); n != 999/41 {
		t.Fatalf("batch=%d, want %d", n, 999/41)
	}
}

func TestBulkLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d, err := New(ctx, storage.Config{Kind: "sqlite", DSN: "file:" + t.TempDir() + "/t.db"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	spec := hitsSpec()
	if err := d.Exec(ctx, d.Dialect().DropTableSQL(spec.Name)); err != nil {
		t.Fatalf("drop: %v", err)
	}
	for _, s := range d.Dialect().CreateTableSQL(spec) {
		if err := d.Exec(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	data := dataset.New("ClientID", "EventDate", "URL")
	_ = data.AppendRow([]string{"18446744073709551615", "2024-04-01", `https://a/?x\ty`})
	_ = data.AppendRow([]string{"", "2024-04-02", ""})

	n, err := d.BulkLoad(ctx, spec.Name, spec.Columns, data)
	if err != nil {
		t.Fatalf("BulkLoad: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows=%d, want 2", n)
	}

	var id, url, day string
	row := d.(*sqldb.DB).SQL().QueryRowContext(ctx, `SELECT "ClientID", "EventDate", "URL" FROM hits_complete WHERE "EventDate" = '2024-04-01'`)
	if err := row.Scan(&id, &day, &url); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if id != "18446744073709551615" || url != "https://a/?x\ty" {
		t.Fatalf("row=(%q,%q), want unescaped max uint64 and url", id, url)
	}

	if _, err := d.Version(ctx); err != nil {
		t.Fatalf("Version: %v", err)
	}
}

func TestAdapt(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	if got := adapt(schema.Date, ts); got != "2024-04-01" {
		t.Fatalf("date=%v", got)
	}
	if got := adapt(schema.DateTime, ts); got != "2024-04-01 10:00:00" {
		t.Fatalf("datetime=%v", got)
	}
	if got := adapt(schema.UInt32, int64(5)); got != int64(5) {
		t.Fatalf("uint32=%v", got)
	}
}
