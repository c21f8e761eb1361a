package backend

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openHoldTestSQLite(t *testing.T, maxHold time.Duration) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), Config{
		URL:         "sqlite://" + filepath.Join(t.TempDir(), "hold.db"),
		LockTimeout: 5 * time.Second,
		MaxHold:     maxHold,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// waitFor returns a prepare step that is granted after d.
func waitFor(d time.Duration) TxFunc {
	return func(ctx context.Context, _ *sql.Tx) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestExclusiveLockWaitIsNotHoldTime(t *testing.T) {
	s := openHoldTestSQLite(t, 50*time.Millisecond)
	ctx := context.Background()

	ran := false
	err := s.exclusive(ctx, waitFor(150*time.Millisecond), func(ctx context.Context, tx *sql.Tx) error {
		ran = true
		_, err := s.counter.ReserveNext(ctx, tx)
		return err
	})
	require.NoError(t, err)
	assert.True(t, ran)

	current, err := s.counter.Current(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
}

func TestExclusiveHoldStartsAfterPrepare(t *testing.T) {
	s := openHoldTestSQLite(t, 50*time.Millisecond)
	ctx := context.Background()

	err := s.exclusive(ctx, waitFor(10*time.Millisecond), func(ctx context.Context, tx *sql.Tx) error {
		if _, err := s.counter.ReserveNext(ctx, tx); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrLockTimeout)

	current, err := s.counter.Current(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, int64(0), current)
}

func TestExclusivePrepareFailureSkipsFn(t *testing.T) {
	s := openHoldTestSQLite(t, time.Second)
	errDenied := errors.New("denied")

	ran := false
	err := s.exclusive(context.Background(), func(context.Context, *sql.Tx) error {
		return errDenied
	}, func(context.Context, *sql.Tx) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, errDenied)
	assert.False(t, ran)

	// The connection went back to the pool with the transaction closed.
	require.NoError(t, s.WithTx(context.Background(), func(context.Context, *sql.Tx) error { return nil }))
}
