package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Siddarth2230/asset-labels/internal/backend"
	"github.com/Siddarth2230/asset-labels/internal/models"
	"github.com/Siddarth2230/asset-labels/pkg/metrics"
)

var ErrNoRecord = errors.New("no record found")

// Execer is satisfied by *sql.DB and *sql.Tx, so inserts can join the
// allocation transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type ItemRepository struct {
	db     backend.Backend
	logger *slog.Logger
}

func NewItemRepository(db backend.Backend, logger *slog.Logger) *ItemRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemRepository{db: db, logger: logger.With("component", "item_repository")}
}

const itemColumns = `id, name, label, model_number, remarks, storage_location, created_at, updated_at`

func observe(operation string, start time.Time) {
	metrics.DatabaseQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Insert writes item through q. Unique violations are returned as-is so the
// caller can tell them apart with Backend.IsUniqueViolation.
func (r *ItemRepository) Insert(ctx context.Context, q Execer, item *models.Item) error {
	defer observe("insert_item", time.Now())
	query := r.db.Rebind(`
        INSERT INTO items (` + itemColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `)
	_, err := q.ExecContext(ctx, query,
		item.ID, item.Name, item.Label, item.ModelNumber, item.Remarks, item.StorageLocation,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil && !r.db.IsUniqueViolation(err) {
		r.logger.Error("error saving item", "label", item.Label, "error", err)
	}
	return err
}

func (r *ItemRepository) FindByLabel(ctx context.Context, label string) (*models.Item, error) {
	defer observe("find_item", time.Now())
	query := r.db.Rebind(`SELECT ` + itemColumns + ` FROM items WHERE label = ?`)

	var item models.Item
	row := r.db.DB().QueryRowContext(ctx, query, label)
	if err := row.Scan(&item.ID, &item.Name, &item.Label, &item.ModelNumber, &item.Remarks,
		&item.StorageLocation, &item.CreatedAt, &item.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		r.logger.Error("error finding item by label", "label", label, "error", err)
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepository) DeleteByLabel(ctx context.Context, label string) error {
	defer observe("delete_item", time.Now())
	result, err := r.db.DB().ExecContext(ctx, r.db.Rebind(`DELETE FROM items WHERE label = ?`), label)
	if err != nil {
		r.logger.Error("error deleting item", "label", label, "error", err)
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w for label %s", ErrNoRecord, label)
	}

	r.logger.Info("deleted item", "label", label)
	return nil
}

// NamesByLabel maps each used label among labels to its item name.
func (r *ItemRepository) NamesByLabel(ctx context.Context, labels []string) (map[string]string, error) {
	out := make(map[string]string, len(labels))
	if len(labels) == 0 {
		return out, nil
	}
	defer observe("names_by_label", time.Now())

	args := make([]any, len(labels))
	for i, l := range labels {
		args[i] = l
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(labels)), ", ")
	query := r.db.Rebind(`SELECT label, name FROM items WHERE label IN (` + placeholders + `)`)

	rows, err := r.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("error looking up labels", "count", len(labels), "error", err)
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var label, name string
		if err := rows.Scan(&label, &name); err != nil {
			return nil, err
		}
		out[label] = name
	}
	return out, rows.Err()
}

func (r *ItemRepository) Count(ctx context.Context) (int64, error) {
	defer observe("count_items", time.Now())
	var n int64
	if err := r.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
