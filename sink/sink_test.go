package sink

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/rules"
)

func sampleResult(withDescription bool) *cl.Result {
	r := cl.NewResult("dosageForm", "3f0c2a8e-0000-4000-8000-000000000001")
	r.Columns = []string{"Code", "Title"}
	if withDescription {
		r.Columns = append(r.Columns, "Description")
	}
	r.Records = []cl.Record{
		{Code: "APPFUL", Title: "Applicatorful", Description: "Amount, as \"held\"", HasDescription: true},
		{Code: "SPRY", Title: "Spray"},
	}
	return r
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResult(true)))

	want := "Code,Title,Description\n" +
		"APPFUL,Applicatorful,\"Amount, as \"\"held\"\"\"\n" +
		"SPRY,Spray,\n"
	assert.Equal(t, want, buf.String())

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, sampleResult(false)))
	assert.Equal(t, "Code,Title\nAPPFUL,Applicatorful\nSPRY,Spray\n", buf.String())
}

func TestCSV_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s := NewCSV(dir)
	list := &rules.Codelist{Name: "dosageForm", File: "dosageForm.csv"}

	assert.Equal(t, "csv", s.Name())
	assert.Equal(t, filepath.Join(dir, "dosageForm.csv"), s.Path(list))

	require.NoError(t, s.Write(context.Background(), list, sampleResult(true)))
	first, err := os.ReadFile(s.Path(list))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(first), "Code,Title,Description\n"))

	// A second run replaces the file instead of appending.
	result := sampleResult(true)
	result.Records = result.Records[:1]
	require.NoError(t, s.Write(context.Background(), list, result))
	second, err := os.ReadFile(s.Path(list))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(second), "\n"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestCSV_DefaultDir(t *testing.T) {
	s := NewCSV("")
	assert.Equal(t, filepath.Join(DefaultDir, "x.csv"), s.Path(&rules.Codelist{Name: "x"}))
}

// fakeTx records statements; the embedded pgx.Tx is nil and must not be reached.
type fakeTx struct {
	pgx.Tx
	execs      []string
	args       [][]any
	copied     [][]any
	failOn     string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.args = append(f.args, args)
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("exec failed")
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		f.copied = append(f.copied, values)
	}
	return int64(len(f.copied)), src.Err()
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeDB struct {
	tx  *fakeTx
	err error
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return f.tx.Exec(ctx, sql, args...)
}

func TestPostgres_Write(t *testing.T) {
	tx := &fakeTx{}
	s := NewPostgres(&fakeDB{tx: tx})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	list := &rules.Codelist{Name: "dosageForm"}
	require.NoError(t, s.Write(context.Background(), list, sampleResult(true)))

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	require.Len(t, tx.execs, 2)
	assert.Contains(t, tx.execs[0], "DELETE FROM codelist_records")
	assert.Equal(t, []any{"dosageForm"}, tx.args[0])
	assert.Contains(t, tx.execs[1], "INSERT INTO codelist_runs")
	assert.Equal(t, fixed, tx.args[1][5])

	require.Len(t, tx.copied, 2)
	assert.Equal(t, []any{"dosageForm", 0, "APPFUL", "Applicatorful", "Amount, as \"held\""}, tx.copied[0])
	assert.Nil(t, tx.copied[1][4], "absent description is stored as NULL")
}

func TestPostgres_WriteRollsBack(t *testing.T) {
	tx := &fakeTx{failOn: "INSERT INTO codelist_runs"}
	s := NewPostgres(&fakeDB{tx: tx})

	err := s.Write(context.Background(), &rules.Codelist{Name: "container"}, sampleResult(false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "container")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestPostgres_BeginFails(t *testing.T) {
	s := NewPostgres(&fakeDB{err: errors.New("no connection")})
	err := s.Write(context.Background(), &rules.Codelist{Name: "container"}, sampleResult(false))
	assert.ErrorContains(t, err, "begin transaction")
}

func TestMigrate(t *testing.T) {
	tx := &fakeTx{}
	require.NoError(t, Migrate(context.Background(), &fakeDB{tx: tx}))
	require.Len(t, tx.execs, 1)
	assert.Contains(t, tx.execs[0], "CREATE TABLE IF NOT EXISTS codelist_records")
	assert.Contains(t, MigrationCodelists, "codelist_runs")

	tx.failOn = "CREATE TABLE"
	assert.Error(t, Migrate(context.Background(), &fakeDB{tx: tx}))
}

type recordingSink struct {
	name  string
	err   error
	calls int
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Write(ctx context.Context, list *rules.Codelist, result *cl.Result) error {
	r.calls++
	return r.err
}

func TestMulti(t *testing.T) {
	failing := &recordingSink{name: "a", err: errors.New("disk full")}
	ok := &recordingSink{name: "b"}

	m := Multi{failing, ok}
	err := m.Write(context.Background(), &rules.Codelist{Name: "x"}, sampleResult(false))

	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls, "a failing sink must not stop the others")
	assert.Equal(t, "multi", m.Name())
}
