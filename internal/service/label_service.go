package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/Siddarth2230/asset-labels/internal/allocator"
	"github.com/Siddarth2230/asset-labels/internal/backend"
	"github.com/Siddarth2230/asset-labels/internal/models"
	"github.com/Siddarth2230/asset-labels/internal/repository"
	"github.com/Siddarth2230/asset-labels/pkg/idgen"
)

const (
	MaxBatch       = 1000
	MaxExportRange = 10000
	exportChunk    = 500
	exportSheet    = "Labels"
)

// LabelService reserves label sheets and reports on issued labels.
type LabelService struct {
	backend backend.Backend
	repo    *repository.ItemRepository
	alloc   *allocator.Allocator
	logger  *slog.Logger
}

func NewLabelService(b backend.Backend, repo *repository.ItemRepository, alloc *allocator.Allocator, logger *slog.Logger) *LabelService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LabelService{backend: b, repo: repo, alloc: alloc, logger: logger.With("component", "label_service")}
}

// GenerateLabels reserves quantity consecutive labels for printing.
func (s *LabelService) GenerateLabels(ctx context.Context, req models.GenerateLabelsRequest) (*models.GenerateLabelsResponse, error) {
	if req.Quantity < 1 || req.Quantity > MaxBatch {
		return nil, ErrInvalidQuantity
	}
	recordType := req.RecordType
	switch recordType {
	case "qr", "barcode", "nothing":
	default:
		return nil, ErrInvalidRecord
	}
	labels, err := s.alloc.ReserveBatch(ctx, req.Quantity)
	if err != nil {
		s.logger.Error("label batch reservation failed", "quantity", req.Quantity, "error", err)
		return nil, err
	}
	s.logger.Info("label batch reserved", "first", labels[0], "last", labels[len(labels)-1], "record_type", recordType)
	return &models.GenerateLabelsResponse{Labels: labels, RecordType: recordType}, nil
}

// CheckLabel reports whether raw was ever issued and which item holds it.
func (s *LabelService) CheckLabel(ctx context.Context, raw string) (*models.LabelInfo, error) {
	enc := s.alloc.Encoder()
	value, err := enc.Decode(idgen.Normalize(raw))
	if err != nil {
		return nil, err
	}
	current, err := s.alloc.Current(ctx)
	if err != nil {
		return nil, err
	}

	label := enc.Encode(value)
	info := &models.LabelInfo{
		Label:  label,
		Value:  value,
		Issued: value >= 1 && value <= current,
	}
	names, err := s.repo.NamesByLabel(ctx, []string{label})
	if err != nil {
		return nil, err
	}
	if name, ok := names[label]; ok {
		info.Used = true
		info.ItemName = &name
	}
	return info, nil
}

// ListLabels returns usage for every label in [from, to]. Empty bounds mean
// the first and the last issued label.
func (s *LabelService) ListLabels(ctx context.Context, from, to string) ([]models.LabelInfo, error) {
	enc := s.alloc.Encoder()
	current, err := s.alloc.Current(ctx)
	if err != nil {
		return nil, err
	}

	lo, hi := int64(1), current
	if from != "" {
		if lo, err = enc.Decode(idgen.Normalize(from)); err != nil {
			return nil, err
		}
	}
	if to != "" {
		if hi, err = enc.Decode(idgen.Normalize(to)); err != nil {
			return nil, err
		}
	}
	if lo < 1 {
		lo = 1
	}
	if hi > current {
		hi = current
	}
	if hi < lo {
		return []models.LabelInfo{}, nil
	}
	if hi-lo >= MaxExportRange {
		return nil, fmt.Errorf("%w: at most %d labels per request", ErrInvalidRange, MaxExportRange)
	}

	total := hi - lo + 1
	out := make([]models.LabelInfo, 0, total)
	for offset := int64(0); offset < total; offset += exportChunk {
		start := lo + offset
		size := min(int64(exportChunk), total-offset)
		labels := make([]string, 0, size)
		for i := int64(0); i < size; i++ {
			labels = append(labels, enc.Encode(start+i))
		}
		names, err := s.repo.NamesByLabel(ctx, labels)
		if err != nil {
			return nil, err
		}
		for i, label := range labels {
			info := models.LabelInfo{Label: label, Value: start + int64(i), Issued: true}
			if name, ok := names[label]; ok {
				info.Used = true
				info.ItemName = &name
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// ExportLabels renders ListLabels as an XLSX workbook.
func (s *LabelService) ExportLabels(ctx context.Context, from, to string) (*bytes.Buffer, error) {
	infos, err := s.ListLabels(ctx, from, to)
	if err != nil {
		return nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()
	xl.SetSheetName(xl.GetSheetName(0), exportSheet)

	header := []string{"label", "value", "used", "item_name"}
	if err := xl.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for i, info := range infos {
		name := ""
		if info.ItemName != nil {
			name = *info.ItemName
		}
		record := []any{info.Label, info.Value, info.Used, name}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(exportSheet, cell, &record); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}

// Status summarizes the counter and how many issued labels are still unused.
func (s *LabelService) Status(ctx context.Context) (*models.CounterStatus, error) {
	current, err := s.alloc.Current(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	st := &models.CounterStatus{
		Backend: s.backend.Name(),
		Current: current,
		Items:   items,
		Unused:  max(current-items, 0),
	}
	if current > 0 {
		st.LastLabel = s.alloc.Encoder().Encode(current)
	}
	return st, nil
}
