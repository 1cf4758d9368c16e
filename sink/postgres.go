package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/rules"
)

// MigrationCodelists is the SQL DDL for the codelist tables. It is safe to
// execute multiple times (uses IF NOT EXISTS).
const MigrationCodelists = `
CREATE TABLE IF NOT EXISTS codelist_records (
    codelist    TEXT    NOT NULL,
    position    INTEGER NOT NULL,
    code        TEXT    NOT NULL,
    title       TEXT    NOT NULL,
    description TEXT,
    PRIMARY KEY (codelist, code)
);

CREATE INDEX IF NOT EXISTS idx_codelist_records_position
    ON codelist_records (codelist, position);

CREATE TABLE IF NOT EXISTS codelist_runs (
    codelist      TEXT PRIMARY KEY,
    run_id        TEXT        NOT NULL,
    columns       TEXT[]      NOT NULL,
    record_count  INTEGER     NOT NULL,
    warning_count INTEGER     NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Execer runs a statement. Both *pgxpool.Pool and pgx.Tx implement it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TxBeginner starts a transaction. *pgxpool.Pool implements it; tests pass
// a fake.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrate creates the codelist tables.
func Migrate(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, MigrationCodelists); err != nil {
		return fmt.Errorf("migrate codelist tables: %w", err)
	}
	return nil
}

// NewPool opens a connection pool and checks it with a ping.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Postgres replaces a codelist's rows in one transaction.
type Postgres struct {
	db  TxBeginner
	now func() time.Time
}

// NewPostgres creates a Postgres sink.
func NewPostgres(db TxBeginner) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Name returns the sink name.
func (s *Postgres) Name() string {
	return "postgres"
}

var recordColumns = []string{"codelist", "position", "code", "title", "description"}

// Write deletes the stored rows of the codelist, copies the new records in
// and records the run. Either all of it is committed or none.
func (s *Postgres) Write(ctx context.Context, list *rules.Codelist, result *cl.Result) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM codelist_records WHERE codelist = $1`, list.Name); err != nil {
		return fmt.Errorf("delete %s records: %w", list.Name, err)
	}

	rows := make([][]any, len(result.Records))
	for i, rec := range result.Records {
		var description any
		if rec.HasDescription {
			description = rec.Description
		}
		rows[i] = []any{list.Name, i, rec.Code, rec.Title, description}
	}

	if _, err = tx.CopyFrom(ctx, pgx.Identifier{"codelist_records"}, recordColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy %s records: %w", list.Name, err)
	}

	const upsertRun = `INSERT INTO codelist_runs (codelist, run_id, columns, record_count, warning_count, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (codelist) DO UPDATE SET run_id        = EXCLUDED.run_id,
                                     columns       = EXCLUDED.columns,
                                     record_count  = EXCLUDED.record_count,
                                     warning_count = EXCLUDED.warning_count,
                                     updated_at    = EXCLUDED.updated_at`

	if _, err = tx.Exec(ctx, upsertRun,
		list.Name, result.RunID, result.Columns, len(result.Records), result.WarningCount(), s.now(),
	); err != nil {
		return fmt.Errorf("record %s run: %w", list.Name, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", list.Name, err)
	}
	return nil
}
