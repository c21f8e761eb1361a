package models

import "time"

type Item struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Label           string    `json:"label" db:"label"`
	ModelNumber     *string   `json:"model_number,omitempty" db:"model_number"`
	Remarks         *string   `json:"remarks,omitempty" db:"remarks"`
	StorageLocation *string   `json:"storage_location,omitempty" db:"storage_location"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// CreateItemRequest creates an item. Label is optional: when set it must be a
// pre-printed label that has already been issued and is still unused.
type CreateItemRequest struct {
	Name            string  `json:"name" validate:"required,min=1,max=255"`
	Label           string  `json:"label,omitempty" validate:"omitempty,max=50"`
	ModelNumber     *string `json:"model_number,omitempty" validate:"omitempty,max=255"`
	Remarks         *string `json:"remarks,omitempty" validate:"omitempty,max=2000"`
	StorageLocation *string `json:"storage_location,omitempty" validate:"omitempty,max=255"`
}

// GenerateLabelsRequest reserves a sheet of labels for pre-printing.
type GenerateLabelsRequest struct {
	Quantity   int    `json:"quantity" validate:"required,min=1,max=1000"`
	RecordType string `json:"record_type" validate:"required,oneof=qr barcode nothing"`
}

type GenerateLabelsResponse struct {
	Labels     []string `json:"labels"`
	RecordType string   `json:"record_type"`
}

// LabelInfo describes one label: whether it was ever issued and who owns it.
type LabelInfo struct {
	Label    string  `json:"label"`
	Value    int64   `json:"value"`
	Issued   bool    `json:"issued"`
	Used     bool    `json:"used"`
	ItemName *string `json:"item_name,omitempty"`
}

// CounterStatus is the allocator state reported by the status endpoint and CLI.
type CounterStatus struct {
	Backend   string `json:"backend"`
	Current   int64  `json:"current"`
	LastLabel string `json:"last_label,omitempty"`
	Items     int64  `json:"items"`
	Unused    int64  `json:"unused"`
}
