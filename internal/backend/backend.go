// Package backend hides the two supported relational engines behind one
// "run this with exclusive access to the counter row" operation.
//
// PostgreSQL takes a row lock on the counter inside an ordinary transaction.
// SQLite relies on the engine serializing writers: every transaction is opened
// as BEGIN IMMEDIATE, so holding one is holding the counter.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Siddarth2230/asset-labels/internal/counter"
)

// ErrLockTimeout reports that exclusive counter access could not be obtained,
// or was held longer than allowed. It is safe to retry.
var ErrLockTimeout = errors.New("exclusive counter access timed out")

var errHoldExceeded = errors.New("exclusive counter access held too long")

// TxFunc is a unit of work run inside a transaction.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// Backend is a relational store able to serialize counter reservations.
type Backend interface {
	// Name is "postgres" or "sqlite".
	Name() string
	DB() *sql.DB
	// Counter returns the counter store spelled for this engine.
	Counter() *counter.Store
	// Migrate creates the counter and item tables when missing.
	Migrate(ctx context.Context) error
	// WithExclusiveCounterAccess runs fn in a transaction that no other
	// reservation can interleave with. Any error or panic from fn rolls the
	// transaction back.
	WithExclusiveCounterAccess(ctx context.Context, fn TxFunc) error
	// WithTx runs fn in an ordinary transaction.
	WithTx(ctx context.Context, fn TxFunc) error
	// Rebind rewrites ? placeholders into the engine's style.
	Rebind(query string) string
	IsUniqueViolation(err error) bool
	// IsRetryable reports lock contention and transient unavailability.
	IsRetryable(err error) bool
	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	// URL is postgres://, postgresql://, sqlite:// or file:.
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	// LockTimeout bounds how long a transaction waits for the counter:
	// lock_timeout on PostgreSQL, busy_timeout on SQLite.
	LockTimeout time.Duration
	// MaxHold bounds how long exclusive access may be held once granted.
	MaxHold time.Duration
}

func (c Config) withDefaults() Config {
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	if c.MaxHold <= 0 {
		c.MaxHold = 2 * time.Second
	}
	return c
}

// Open connects to the backend named by cfg.URL.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	cfg = cfg.withDefaults()
	switch {
	case strings.HasPrefix(cfg.URL, "postgres://"), strings.HasPrefix(cfg.URL, "postgresql://"):
		return OpenPostgres(ctx, cfg)
	case strings.HasPrefix(cfg.URL, "sqlite://"), strings.HasPrefix(cfg.URL, "file:"):
		return OpenSQLite(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database URL %q: must start with postgres:// or sqlite://", redact(cfg.URL))
	}
}

// Exclusive is WithExclusiveCounterAccess for units of work that produce a value.
func Exclusive[T any](ctx context.Context, b Backend, fn func(ctx context.Context, tx *sql.Tx) (T, error)) (T, error) {
	var out T
	err := b.WithExclusiveCounterAccess(ctx, func(ctx context.Context, tx *sql.Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// core carries what both engines share.
type core struct {
	db       *sql.DB
	counter  *counter.Store
	maxHold  time.Duration
	classify func(error) error
}

func (c *core) DB() *sql.DB             { return c.db }
func (c *core) Counter() *counter.Store { return c.counter }
func (c *core) Close() error            { return c.db.Close() }

func (c *core) IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, counter.ErrStoreUnavailable)
}

func (c *core) WithTx(ctx context.Context, fn TxFunc) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", c.classify(err))
	}
	return c.classify(finish(ctx, tx, fn, true))
}

// exclusive opens a transaction, runs prepare to take the counter, then fn.
// Waiting in prepare is bounded by the engine's lock timeout only; the hold
// timer starts once prepare has returned. When it fires the context is
// cancelled and database/sql rolls the transaction back.
func (c *core) exclusive(ctx context.Context, prepare, fn TxFunc) error {
	holdCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	tx, err := c.db.BeginTx(holdCtx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin exclusive transaction: %w", c.classify(err))
	}
	if prepare != nil {
		if err := finish(holdCtx, tx, prepare, false); err != nil {
			return c.classify(err)
		}
	}

	timer := time.AfterFunc(c.maxHold, func() { cancel(errHoldExceeded) })
	defer timer.Stop()

	err = finish(holdCtx, tx, fn, true)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(holdCtx), errHoldExceeded) {
		return fmt.Errorf("%w: held longer than %s: %w", ErrLockTimeout, c.maxHold, err)
	}
	return c.classify(err)
}

// finish runs fn on tx, rolling back on error or panic. With commit set it
// commits afterwards; otherwise tx stays open for the next step.
func finish(ctx context.Context, tx *sql.Tx, fn TxFunc, commit bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if !commit {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rebindNumbered turns ? placeholders into $1, $2, ... outside quoted text.
func rebindNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// redact hides the password of a connection URL for error messages.
func redact(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	creds := raw[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		return raw[:scheme+3] + creds[:colon] + ":xxxxx" + raw[at:]
	}
	return raw
}
