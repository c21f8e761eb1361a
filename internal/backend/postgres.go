package backend

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Siddarth2230/asset-labels/internal/counter"
)

//go:embed schema/postgres.sql
var postgresSchema string

// migrateLockID serializes concurrent migrations across processes.
const migrateLockID int64 = 0x4c41424c // "LABL"

// Postgres is the multi-writer engine: exclusive access is a row lock on the
// counter, bounded by lock_timeout.
type Postgres struct {
	core
	lockTimeout time.Duration
}

// OpenPostgres connects through lib/pq and pings the server.
func OpenPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	cfg = cfg.withDefaults()
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: postgres ping failed: %w", counter.ErrStoreUnavailable, err)
	}

	p := &Postgres{lockTimeout: cfg.LockTimeout}
	p.core = core{
		db:       db,
		counter:  counter.NewStore(counter.Dialect{LockClause: "FOR UPDATE", Numbered: true}),
		maxHold:  cfg.MaxHold,
		classify: classifyPostgres,
	}
	return p, nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Rebind(query string) string { return rebindNumbered(query) }

func (p *Postgres) Migrate(ctx context.Context) error {
	return p.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrateLockID); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if _, err := tx.ExecContext(ctx, postgresSchema); err != nil {
			return fmt.Errorf("failed to create items table: %w", err)
		}
		return p.counter.Setup(ctx, tx)
	})
}

func (p *Postgres) WithExclusiveCounterAccess(ctx context.Context, fn TxFunc) error {
	return p.exclusive(ctx, p.lockCounter, fn)
}

// lockCounter bounds the wait and takes the counter row lock up front, so fn
// starts with the row already held.
func (p *Postgres) lockCounter(ctx context.Context, tx *sql.Tx) error {
	if p.lockTimeout > 0 {
		// SET does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set lock_timeout: %w", err)
		}
	}
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM label_counter WHERE id = $1 FOR UPDATE", counter.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.New("label_counter row is missing; run migrations")
	}
	if err != nil {
		return fmt.Errorf("failed to lock label counter: %w", err)
	}
	return nil
}

// labelConstraint is the unique constraint on items.label in postgres.sql.
const labelConstraint = "items_label_key"

// IsUniqueViolation reports a clash on items.label only; other unique keys
// are ordinary errors.
func (p *Postgres) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == labelConstraint
}

// classifyPostgres tags SQLSTATEs: lock_not_available, serialization_failure
// and deadlock_detected are contention; connection exceptions, admin
// shutdown and too_many_connections are unavailability.
func classifyPostgres(err error) error {
	if err == nil || errors.Is(err, ErrLockTimeout) || errors.Is(err, counter.ErrStoreUnavailable) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "55P03", pqErr.Code == "40001", pqErr.Code == "40P01":
			return fmt.Errorf("%w: %w", ErrLockTimeout, err)
		case pqErr.Code.Class() == "08", pqErr.Code == "57P01", pqErr.Code == "57P03", pqErr.Code == "53300":
			return fmt.Errorf("%w: %w", counter.ErrStoreUnavailable, err)
		}
		return err
	}
	return counter.Classify(err)
}
