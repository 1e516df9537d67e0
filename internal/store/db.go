// Package store persists anchors, seeds, rounds, bets and balances through
// database/sql. PostgreSQL and SQLite are both supported; queries use $N
// placeholders numbered in order of first appearance so either driver binds
// them positionally.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/fairplay/roundhouse/internal/models"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database named by driver and dsn and applies the
// schema. driver is "postgres" or "sqlite3".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect := Dialect(driver)
	switch dialect {
	case Postgres:
	case SQLite:
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	if dialect == Postgres {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

var sqliteParams = []struct{ key, value string }{
	{"_txlock", "immediate"},
	{"_busy_timeout", "5000"},
	{"_journal_mode", "WAL"},
	{"_foreign_keys", "on"},
}

// sqliteDSN adds immediate write transactions, WAL, a busy timeout and
// foreign keys to dsn. Parameters the caller already set are kept.
func sqliteDSN(dsn string) string {
	path, query, _ := strings.Cut(dsn, "?")
	set := make(map[string]bool)
	for _, kv := range strings.Split(query, "&") {
		if k, _, _ := strings.Cut(kv, "="); k != "" {
			set[k] = true
		}
	}

	params := []string{}
	if query != "" {
		params = append(params, query)
	}
	for _, p := range sqliteParams {
		if !set[p.key] {
			params = append(params, p.key+"="+p.value)
		}
	}
	return path + "?" + strings.Join(params, "&")
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in one transaction. The transaction commits only when fn
// returns nil; an error or a panic rolls it back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// forUpdate returns the row lock clause. SQLite write transactions are
// already exclusive.
func (s *Store) forUpdate() string {
	if s.dialect == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// classify tags driver errors with the sentinel callers branch on.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%v: %w", err, models.ErrConflict)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%v: %w", err, models.ErrTransient)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%v: %w", err, models.ErrConflict)
		case liteErr.Code == sqlite3.ErrBusy, liteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%v: %w", err, models.ErrTransient)
		}
	}
	return err
}

// now is the persisted clock: UTC, microsecond precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
