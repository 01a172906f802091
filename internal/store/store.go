package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

var (
	// ErrVersionConflict means an account row changed since it was read.
	ErrVersionConflict = errors.New("store: account version conflict")
	// ErrNotPending means a bet was already settled or voided.
	ErrNotPending = errors.New("store: bet is not pending")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed persistence for accounts, the bet log and audit rows.
type Store struct {
	db *sql.DB
	q  querier
}

// Open opens/creates a SQLite database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, q: db}
	if _, err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB opens the database without migrating.
func OpenDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	return db, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Provider returns a goose provider over the embedded migrations.
func Provider(db *sql.DB) (*goose.Provider, error) {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectSQLite3, db, migrations)
}

// Migrate applies every pending migration and returns the resulting version.
func (s *Store) Migrate(ctx context.Context) (int64, error) {
	provider, err := Provider(s.db)
	if err != nil {
		return 0, fmt.Errorf("migration setup failed: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return 0, fmt.Errorf("migration failed: %w", err)
	}
	return provider.GetDBVersion(ctx)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx is a Store bound to one transaction.
type Tx struct {
	Store
}

// WithTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Tx{Store: Store{db: s.db, q: sqlTx}}); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isConstraintErr(err error) bool {
	// modernc sqlite reports "constraint failed" or "UNIQUE constraint failed".
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "unique constraint")
}

func isImmutableErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "immutable") || strings.Contains(msg, "append-only")
}
