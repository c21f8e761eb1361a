// Package counter owns the singleton label counter row.
//
// Every mutation happens inside a transaction handed in by the backend
// adapter; the store never opens transactions of its own.
package counter

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
)

var (
	ErrAllocationExhausted = errors.New("label counter exhausted")
	ErrStoreUnavailable    = errors.New("label counter store unavailable")
)

// ID is the fixed primary key of the counter row.
const ID = 1

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect describes how a backend spells the counter queries.
type Dialect struct {
	// LockClause is appended to the counter read inside a reservation,
	// e.g. "FOR UPDATE". Empty when the engine serializes writers itself.
	LockClause string
	// Numbered selects $1-style placeholders instead of ?.
	Numbered bool
}

// Store reads and advances the counter row.
type Store struct {
	lockedRead string
	plainRead  string
	advance    string
}

// NewStore builds a Store for the given dialect.
func NewStore(d Dialect) *Store {
	p1, p2, p3 := "?", "?", "?"
	if d.Numbered {
		p1, p2, p3 = "$1", "$2", "$3"
	}
	plain := "SELECT current_value FROM label_counter WHERE id = " + p1
	locked := plain
	if d.LockClause != "" {
		locked += " " + d.LockClause
	}
	return &Store{
		lockedRead: locked,
		plainRead:  plain,
		advance:    "UPDATE label_counter SET current_value = " + p1 + " WHERE id = " + p2 + " AND current_value = " + p3,
	}
}

// Setup creates the counter table and its single row if they are missing.
// Both statements are idempotent.
func (s *Store) Setup(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS label_counter (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		current_value BIGINT NOT NULL CHECK (current_value >= 0)
	)`); err != nil {
		return fmt.Errorf("failed to create label_counter table: %w", Classify(err))
	}
	if _, err := q.ExecContext(ctx,
		"INSERT INTO label_counter (id, current_value) VALUES ("+strconv.Itoa(ID)+", 0) ON CONFLICT (id) DO NOTHING",
	); err != nil {
		return fmt.Errorf("failed to seed label_counter row: %w", Classify(err))
	}
	return nil
}

// ReserveNext advances the counter by one and returns the new value.
// tx must hold exclusive access to the counter row.
func (s *Store) ReserveNext(ctx context.Context, tx Querier) (int64, error) {
	_, last, err := s.ReserveN(ctx, tx, 1)
	return last, err
}

// ReserveN advances the counter by n and returns the first and last values
// of the reserved block.
func (s *Store) ReserveN(ctx context.Context, tx Querier, n int64) (first, last int64, err error) {
	if n < 1 {
		return 0, 0, fmt.Errorf("reservation size must be positive: given %d", n)
	}

	var current int64
	if err := tx.QueryRowContext(ctx, s.lockedRead, ID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, errors.New("label_counter row is missing; run migrations")
		}
		return 0, 0, fmt.Errorf("failed to read label counter: %w", Classify(err))
	}

	if current > math.MaxInt64-n {
		return 0, 0, fmt.Errorf("%w: current value %d cannot advance by %d", ErrAllocationExhausted, current, n)
	}
	next := current + n

	res, err := tx.ExecContext(ctx, s.advance, next, ID, current)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to advance label counter: %w", Classify(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to confirm label counter update: %w", Classify(err))
	}
	if affected != 1 {
		// Only possible when the caller did not actually hold the row exclusively.
		return 0, 0, fmt.Errorf("label counter moved concurrently from %d", current)
	}
	return current + 1, next, nil
}

// Current returns the last reserved value without locking the row.
func (s *Store) Current(ctx context.Context, q Querier) (int64, error) {
	var current int64
	if err := q.QueryRowContext(ctx, s.plainRead, ID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.New("label_counter row is missing; run migrations")
		}
		return 0, fmt.Errorf("failed to read label counter: %w", Classify(err))
	}
	return current, nil
}

// Classify marks driver-independent connectivity failures with
// ErrStoreUnavailable. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if isConnectivity(err) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

func isConnectivity(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "broken pipe")
}
