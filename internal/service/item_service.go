package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Siddarth2230/asset-labels/internal/allocator"
	"github.com/Siddarth2230/asset-labels/internal/backend"
	"github.com/Siddarth2230/asset-labels/internal/models"
	"github.com/Siddarth2230/asset-labels/internal/repository"
	"github.com/Siddarth2230/asset-labels/pkg/cache"
	"github.com/Siddarth2230/asset-labels/pkg/idgen"
	"github.com/Siddarth2230/asset-labels/pkg/metrics"
)

var (
	ErrItemNotFound    = errors.New("item not found")
	ErrLabelTaken      = errors.New("label already in use")
	ErrLabelNotIssued  = errors.New("label was never issued")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 1000")
	ErrInvalidRange    = errors.New("invalid label range")
	ErrInvalidRecord   = errors.New("record_type must be qr, barcode or nothing")
)

// ItemService creates items under freshly allocated or pre-printed labels and
// looks them up by label.
type ItemService struct {
	backend backend.Backend
	repo    *repository.ItemRepository
	alloc   *allocator.Allocator
	l1      *cache.LRUCache[*models.Item]
	l2      *cache.RedisCache[*models.Item] // optional
	logger  *slog.Logger
}

// NewItemService constructor. l2 may be nil.
func NewItemService(b backend.Backend, repo *repository.ItemRepository, alloc *allocator.Allocator,
	l1 *cache.LRUCache[*models.Item], l2 *cache.RedisCache[*models.Item], logger *slog.Logger) *ItemService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemService{
		backend: b,
		repo:    repo,
		alloc:   alloc,
		l1:      l1,
		l2:      l2,
		logger:  logger.With("component", "item_service"),
	}
}

// CreateItem stores a new item. Without a label in the request the label is
// allocated inside the insert transaction; with one, the pre-printed label
// must have been issued and must still be free.
func (s *ItemService) CreateItem(ctx context.Context, req models.CreateItemRequest) (*models.Item, error) {
	now := time.Now().UTC()
	item := &models.Item{
		ID:              uuid.NewString(),
		Name:            req.Name,
		ModelNumber:     req.ModelNumber,
		Remarks:         req.Remarks,
		StorageLocation: req.StorageLocation,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if req.Label != "" {
		return s.createWithPrintedLabel(ctx, item, req.Label)
	}

	label, err := s.alloc.AllocateWith(ctx, func(ctx context.Context, tx *sql.Tx, label string) error {
		item.Label = label
		return s.repo.Insert(ctx, tx, item)
	})
	if err != nil {
		s.logger.Error("label allocation failed", "name", req.Name, "error", err)
		return nil, err
	}
	item.Label = label
	s.logger.Info("item created", "label", label, "id", item.ID)
	s.remember(ctx, item)
	return item, nil
}

func (s *ItemService) createWithPrintedLabel(ctx context.Context, item *models.Item, raw string) (*models.Item, error) {
	label, value, err := s.canonical(raw)
	if err != nil {
		return nil, err
	}
	current, err := s.alloc.Current(ctx)
	if err != nil {
		return nil, err
	}
	if value < 1 || value > current {
		return nil, fmt.Errorf("%w: %s", ErrLabelNotIssued, label)
	}

	item.Label = label
	err = s.backend.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return s.repo.Insert(ctx, tx, item)
	})
	if err != nil {
		if s.backend.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrLabelTaken, label)
		}
		return nil, err
	}
	s.logger.Info("item created with pre-printed label", "label", label, "id", item.ID)
	s.remember(ctx, item)
	return item, nil
}

// GetItemByLabel looks through L1, then L2, then the database.
func (s *ItemService) GetItemByLabel(ctx context.Context, raw string) (*models.Item, error) {
	label, _, err := s.canonical(raw)
	if err != nil {
		return nil, err
	}

	// ===== L1 =====
	if item, ok := s.l1.Get(label); ok {
		metrics.CacheHits.WithLabelValues("l1").Inc()
		return item, nil
	}
	metrics.CacheMisses.WithLabelValues("l1").Inc()

	// ===== L2 =====
	if s.l2 != nil {
		switch item, err := s.l2.Get(ctx, label); {
		case err == nil:
			metrics.CacheHits.WithLabelValues("l2").Inc()
			s.putL1(label, item)
			return item, nil
		case errors.Is(err, cache.ErrCacheMiss):
			metrics.CacheMisses.WithLabelValues("l2").Inc()
		default:
			s.logger.Warn("redis get failed", "label", label, "error", err)
		}
	}

	item, err := s.repo.FindByLabel(ctx, label)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	s.remember(ctx, item)
	return item, nil
}

// DeleteItem removes the item holding label. The label is not reissued.
func (s *ItemService) DeleteItem(ctx context.Context, raw string) error {
	label, _, err := s.canonical(raw)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteByLabel(ctx, label); err != nil {
		if errors.Is(err, repository.ErrNoRecord) {
			return ErrItemNotFound
		}
		return err
	}

	s.l1.Delete(label)
	metrics.CacheSize.WithLabelValues("l1").Set(float64(s.l1.Len()))
	if s.l2 != nil {
		if err := s.l2.Delete(ctx, label); err != nil {
			s.logger.Warn("redis delete failed", "label", label, "error", err)
		}
	}
	return nil
}

// canonical normalizes scanned input and re-encodes it at the configured
// width, so "1", "0001" and " 0001\n" all name the same label.
func (s *ItemService) canonical(raw string) (string, int64, error) {
	enc := s.alloc.Encoder()
	value, err := enc.Decode(idgen.Normalize(raw))
	if err != nil {
		return "", 0, err
	}
	return enc.Encode(value), value, nil
}

func (s *ItemService) remember(ctx context.Context, item *models.Item) {
	s.putL1(item.Label, item)
	if s.l2 != nil {
		if err := s.l2.Set(ctx, item.Label, item); err != nil {
			s.logger.Warn("redis set failed", "label", item.Label, "error", err)
		}
	}
}

func (s *ItemService) putL1(label string, item *models.Item) {
	s.l1.Put(label, item)
	metrics.CacheSize.WithLabelValues("l1").Set(float64(s.l1.Len()))
}
