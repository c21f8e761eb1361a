package backend

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Siddarth2230/asset-labels/internal/counter"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLite is the embedded single-file engine. The connection string opens
// every transaction with BEGIN IMMEDIATE, which takes the database write lock
// up front; the wait for it is bounded by busy_timeout.
type SQLite struct {
	core
	path string
}

// OpenSQLite opens (or creates) the database file named by cfg.URL.
func OpenSQLite(ctx context.Context, cfg Config) (*SQLite, error) {
	cfg = cfg.withDefaults()
	path := SQLitePath(cfg.URL)
	if path == "" {
		return nil, fmt.Errorf("sqlite URL %q names no file", cfg.URL)
	}

	db, err := sql.Open("sqlite", SQLiteDSN(path, cfg.LockTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: sqlite open %s: %w", counter.ErrStoreUnavailable, path, err)
	}

	s := &SQLite{path: path}
	s.core = core{
		db:       db,
		counter:  counter.NewStore(counter.Dialect{}),
		maxHold:  cfg.MaxHold,
		classify: classifySQLite,
	}
	return s, nil
}

// SQLitePath extracts the file path from sqlite://PATH or file:PATH,
// dropping any query string.
func SQLitePath(raw string) string {
	path := raw
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = strings.TrimPrefix(path, "sqlite://")
	case strings.HasPrefix(path, "file:"):
		path = strings.TrimPrefix(path, "file:")
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

// SQLiteDSN builds the modernc connection string for path.
func SQLiteDSN(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		path, busyTimeout.Milliseconds(),
	)
}

func (s *SQLite) Name() string { return "sqlite" }

// Path is the database file.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Rebind(query string) string { return query }

// Migrate holds a lock file next to the database while it runs, the SQLite
// counterpart of the advisory lock taken on PostgreSQL.
func (s *SQLite) Migrate(ctx context.Context) error {
	lock := flock.New(s.path + ".migrate.lock")
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !locked {
		return errors.New("failed to acquire migration lock")
	}
	defer func() { _ = lock.Unlock() }()

	return s.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
			return fmt.Errorf("failed to create items table: %w", err)
		}
		return s.counter.Setup(ctx, tx)
	})
}

// WithExclusiveCounterAccess needs no explicit lock: BEGIN IMMEDIATE already
// excludes every other writer.
func (s *SQLite) WithExclusiveCounterAccess(ctx context.Context, fn TxFunc) error {
	return s.exclusive(ctx, nil, fn)
}

// IsUniqueViolation reports a clash on items.label only; other unique keys
// are ordinary errors.
func (s *SQLite) IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE constraint failed: items.label")
	}
	return false
}

// classifySQLite treats BUSY and LOCKED as contention, and failures to open or
// read the file as unavailability.
func classifySQLite(err error) error {
	if err == nil || errors.Is(err, ErrLockTimeout) || errors.Is(err, counter.ErrStoreUnavailable) {
		return err
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", ErrLockTimeout, err)
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_NOTADB:
			return fmt.Errorf("%w: %w", counter.ErrStoreUnavailable, err)
		}
		return err
	}
	return counter.Classify(err)
}
