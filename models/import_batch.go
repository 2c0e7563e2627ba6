package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Import batch lifecycle
const (
	ImportBatchStatusPending    = "pending"
	ImportBatchStatusActive     = "active"
	ImportBatchStatusSuperseded = "superseded"
	ImportBatchStatusRolledBack = "rolled_back"
	ImportBatchStatusFailed     = "failed"
)

// ImportBatch records one rate sheet upload. Every RateRecord tagged with the
// batch id shares its customer and type. At most one batch per
// (customer, type) is active.
// Table: import_batches
type ImportBatch struct {
	ID           string `gorm:"primaryKey;size:26" json:"id"`
	CustomerID   uint   `gorm:"not null;index:idx_import_batches_key,priority:1" json:"customer_id"`
	Type         string `gorm:"size:16;not null;index:idx_import_batches_key,priority:2" json:"type"`
	Status       string `gorm:"size:20;not null;index:idx_import_batches_status" json:"status"`
	SkidByWeight bool   `gorm:"not null" json:"skid_by_weight"`
	Atomic       bool   `gorm:"not null" json:"atomic"`
	SourceName   string `gorm:"size:255" json:"source_name"`

	RowCount       int            `gorm:"not null" json:"row_count"`
	RecordCount    int            `gorm:"not null" json:"record_count"`
	AttributeCount int            `gorm:"not null" json:"attribute_count"`
	FailedRows     int            `gorm:"not null" json:"failed_rows"`
	Errors         datatypes.JSON `json:"errors,omitempty"`

	CreatedAt   time.Time  `gorm:"index:idx_import_batches_created_at" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (ImportBatch) TableName() string {
	return "import_batches"
}

// ImportRowError is one rejected spreadsheet row. For uploaded files Row is
// the line in the file, heading included; for JSON rows it is the 1-based
// index into the request.
type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// SetRowErrors stores errs in the JSON column.
func (b *ImportBatch) SetRowErrors(errs []ImportRowError) error {
	if len(errs) == 0 {
		b.Errors = nil
		return nil
	}
	raw, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	b.Errors = datatypes.JSON(raw)
	return nil
}

// RowErrors decodes the JSON column.
func (b *ImportBatch) RowErrors() ([]ImportRowError, error) {
	if len(b.Errors) == 0 {
		return nil, nil
	}
	var errs []ImportRowError
	if err := json.Unmarshal(b.Errors, &errs); err != nil {
		return nil, err
	}
	return errs, nil
}

// ImportBatchFilter represents filter criteria for import batch queries
type ImportBatchFilter struct {
	ID         *string
	CustomerID *uint
	Type       *string
	Status     *string
}
