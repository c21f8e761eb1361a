// Package allocator hands out unique labels for asset tags.
//
// Each attempt runs in one exclusive counter transaction: reserve the next
// value, encode it, and (optionally) insert the owning entity behind a
// savepoint. A unique violation on the label rolls back to the savepoint only,
// so the counter advance still commits and the colliding value is skipped for
// good. Lock contention and transient store failures roll back everything and
// are retried with jittered backoff.
package allocator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Siddarth2230/asset-labels/internal/backend"
	"github.com/Siddarth2230/asset-labels/internal/counter"
	"github.com/Siddarth2230/asset-labels/pkg/idgen"
	"github.com/Siddarth2230/asset-labels/pkg/metrics"
)

// ErrAllocationConflict means every attempt collided or was contended. The
// caller may retry the whole request.
var ErrAllocationConflict = errors.New("label allocation conflict")

// InsertFunc writes the entity owning label inside the allocation transaction.
type InsertFunc func(ctx context.Context, tx *sql.Tx, label string) error

// Options tunes an Allocator. Zero values select defaults.
type Options struct {
	Encoder  idgen.Encoder
	Policy   RetryPolicy
	Logger   *slog.Logger
	Observer Observer
}

// Allocator coordinates reservations against one backend. It holds no
// in-process lock; the backend transaction is the only mutual exclusion.
type Allocator struct {
	backend  backend.Backend
	store    *counter.Store
	encoder  idgen.Encoder
	policy   RetryPolicy
	logger   *slog.Logger
	observer Observer
	gaugeMu  sync.Mutex
	highest  int64 // largest counter value returned so far
}

var _ idgen.Generator = (*Allocator)(nil)

// New returns an Allocator over b.
func New(b backend.Backend, opts Options) (*Allocator, error) {
	if opts.Encoder.Width < 1 {
		opts.Encoder = idgen.NewEncoder(idgen.DefaultWidth)
	}
	if opts.Policy == (RetryPolicy{}) {
		opts.Policy = DefaultRetryPolicy()
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Allocator{
		backend:  b,
		store:    b.Counter(),
		encoder:  opts.Encoder,
		policy:   opts.Policy,
		logger:   opts.Logger.With("component", "allocator", "backend", b.Name()),
		observer: opts.Observer,
	}, nil
}

// Encoder returns the label encoder in use.
func (a *Allocator) Encoder() idgen.Encoder { return a.encoder }

// Current returns the last committed counter value.
func (a *Allocator) Current(ctx context.Context) (int64, error) {
	return a.store.Current(ctx, a.backend.DB())
}

// Generate implements idgen.Generator.
func (a *Allocator) Generate(ctx context.Context) (string, error) {
	return a.AllocateLabel(ctx)
}

// AllocateLabel reserves the next value and returns its label once the
// reservation has committed. The caller owns writing it somewhere; a label
// that is never written becomes a gap.
func (a *Allocator) AllocateLabel(ctx context.Context) (string, error) {
	return a.AllocateWith(ctx, nil)
}

// AllocateWith reserves a label and runs insert with it in the same
// transaction. A nil insert behaves like AllocateLabel.
func (a *Allocator) AllocateWith(ctx context.Context, insert InsertFunc) (string, error) {
	labels, err := a.loop(ctx, func(ctx context.Context, r *run) ([]string, bool, error) {
		return a.attempt(ctx, r, insert)
	})
	if err != nil {
		return "", err
	}
	return labels[0], nil
}

// ReserveBatch reserves n consecutive values in one transaction and returns
// their labels in order. Used for pre-printing tag sheets.
func (a *Allocator) ReserveBatch(ctx context.Context, n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("batch size must be positive: given %d", n)
	}
	return a.loop(ctx, func(ctx context.Context, r *run) ([]string, bool, error) {
		var labels []string
		err := a.backend.WithExclusiveCounterAccess(ctx, func(ctx context.Context, tx *sql.Tx) error {
			first, last, err := a.store.ReserveN(ctx, tx, int64(n))
			if err != nil {
				return err
			}
			r.to(StateEncoding)
			labels = make([]string, 0, n)
			for v := first; v <= last && v > 0; v++ {
				labels = append(labels, a.encoder.Encode(v))
			}
			return nil
		})
		if err != nil {
			return nil, false, err
		}
		return labels, false, nil
	})
}

type attemptFunc func(ctx context.Context, r *run) (labels []string, collided bool, err error)

// loop drives the state machine: attempt, classify the outcome, back off,
// try again until the policy runs out.
func (a *Allocator) loop(ctx context.Context, try attemptFunc) ([]string, error) {
	r := &run{state: StateIdle, observer: a.observer}
	name := a.backend.Name()

	var lastErr error
	for attempt := 1; attempt <= a.policy.MaxAttempts; attempt++ {
		r.attempt = attempt
		if attempt > 1 {
			r.to(StateRetrying)
			if err := a.policy.wait(ctx, attempt-1); err != nil {
				r.to(StateFailed)
				metrics.AllocationsTotal.WithLabelValues(name, "error").Inc()
				return nil, err
			}
		}
		r.label = ""
		r.to(StateReserving)

		start := time.Now()
		labels, collided, err := try(ctx, r)
		metrics.ReservationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		switch {
		case err != nil && a.backend.IsRetryable(err):
			lastErr = err
			metrics.AllocationRetries.WithLabelValues(name, "contention").Inc()
			a.logger.Debug("reservation contended", "attempt", attempt, "error", err)

		case err != nil:
			r.to(StateFailed)
			metrics.AllocationsTotal.WithLabelValues(name, outcome(err)).Inc()
			if errors.Is(err, counter.ErrAllocationExhausted) {
				a.logger.Error("label counter exhausted", "error", err)
			}
			return nil, err

		case collided:
			// The counter advance committed; this value is gone.
			lastErr = fmt.Errorf("label %s is already in use", r.label)
			metrics.AllocationGaps.WithLabelValues(name).Inc()
			metrics.AllocationRetries.WithLabelValues(name, "collision").Inc()
			a.logger.Warn("label collision, value skipped", "label", r.label, "attempt", attempt)

		default:
			r.to(StateDone)
			metrics.AllocationsTotal.WithLabelValues(name, "ok").Inc()
			metrics.AllocationAttempts.WithLabelValues(name).Observe(float64(attempt))
			if v, err := a.encoder.Decode(labels[len(labels)-1]); err == nil {
				a.observeCounter(name, v)
			}
			return labels, nil
		}
	}

	r.to(StateFailed)
	metrics.AllocationAttempts.WithLabelValues(name).Observe(float64(a.policy.MaxAttempts))
	if errors.Is(lastErr, counter.ErrStoreUnavailable) {
		metrics.AllocationsTotal.WithLabelValues(name, "unavailable").Inc()
		return nil, lastErr
	}
	metrics.AllocationsTotal.WithLabelValues(name, "conflict").Inc()
	a.logger.Warn("label allocation gave up", "attempts", a.policy.MaxAttempts, "error", lastErr)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrAllocationConflict, a.policy.MaxAttempts, lastErr)
}

const savepoint = "label_insert"

// attempt is one exclusive transaction of AllocateWith.
func (a *Allocator) attempt(ctx context.Context, r *run, insert InsertFunc) ([]string, bool, error) {
	collided := false
	err := a.backend.WithExclusiveCounterAccess(ctx, func(ctx context.Context, tx *sql.Tx) error {
		n, err := a.store.ReserveNext(ctx, tx)
		if err != nil {
			return err
		}
		r.to(StateEncoding)
		r.label = a.encoder.Encode(n)
		if insert == nil {
			return nil
		}

		r.to(StateInsertingEntity)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return fmt.Errorf("failed to create savepoint: %w", err)
		}
		err = insert(ctx, tx, r.label)
		if err == nil {
			return nil
		}
		if !a.backend.IsUniqueViolation(err) {
			return err
		}
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return fmt.Errorf("failed to roll back to savepoint after %v: %w", err, rbErr)
		}
		collided = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return []string{r.label}, collided, nil
}

// observeCounter raises the counter gauge to v. Allocations return out of
// commit order, so a smaller v is ignored.
func (a *Allocator) observeCounter(name string, v int64) {
	a.gaugeMu.Lock()
	defer a.gaugeMu.Unlock()
	if v <= a.highest {
		return
	}
	a.highest = v
	metrics.CounterValue.WithLabelValues(name).Set(float64(v))
}

func outcome(err error) string {
	switch {
	case errors.Is(err, counter.ErrAllocationExhausted):
		return "exhausted"
	case errors.Is(err, counter.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
