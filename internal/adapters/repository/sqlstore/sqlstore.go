// Package sqlstore implements repository.Store on PostgreSQL (lib/pq) and
// SQLite (mattn/go-sqlite3). Array fields of the document model live in
// ordered join tables.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type dialect struct {
	driver    string
	schema    string
	forUpdate string
	pragmas   []string
}

var dialects = map[string]dialect{
	DriverPostgres: {
		driver:    DriverPostgres,
		schema:    "schema/postgres.sql",
		forUpdate: " FOR UPDATE",
	},
	DriverSQLite: {
		driver: DriverSQLite,
		schema: "schema/sqlite.sql",
		pragmas: []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
		},
	},
}

// Store is a SQL-backed repository.Store.
type Store struct {
	db *sql.DB
	d  dialect
}

var _ repository.Store = (*Store)(nil)

// Open connects to dsn with the given driver ("postgres" or "sqlite3"),
// applies pragmas and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver == "sqlite" {
		driver = DriverSQLite
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("sql driver %q: %w", driver, repository.ErrInvalidArgument)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if d.driver == DriverSQLite {
		// single writer avoids SQLITE_BUSY and serializes read-modify-write
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	for _, p := range d.pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}

	ddl, err := schemaFS.ReadFile(d.schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, d: d}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// q rewrites ? placeholders into $N for postgres.
func (s *Store) q(query string) string {
	if s.d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing on nil error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// exists reports whether a row keyed by id exists in table. table and col
// are never caller input.
func (s *Store) exists(ctx context.Context, db querier, table, col, id string, lock bool) (bool, error) {
	query := "SELECT 1 FROM " + table + " WHERE " + col + " = ?"
	if lock {
		query += s.d.forUpdate
	}
	var one int
	err := db.QueryRowContext(ctx, s.q(query), id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup %s %s: %w", table, id, err)
	}
	return true, nil
}

func (s *Store) nextSeq(ctx context.Context, db querier, query string, args ...any) (int64, error) {
	var seq int64
	if err := db.QueryRowContext(ctx, s.q(query), args...).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
