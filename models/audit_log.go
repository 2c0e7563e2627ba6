package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditLog struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CustomerID   *uint          `gorm:"index:idx_audit_customer_id" json:"customer_id,omitempty"`
	Action       string         `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string        `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string        `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string        `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string        `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	Success      *bool          `gorm:"index:idx_audit_success" json:"success"`
	ErrorMessage *string        `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time      `gorm:"index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionRateSheetImported     = "rate_sheet_imported"
	AuditActionRateSheetImportFailed = "rate_sheet_import_failed"
	AuditActionImportBatchRolledBack = "import_batch_rolled_back"
	AuditActionRateCacheInvalidated  = "rate_cache_invalidated"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	CustomerID    *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}

// IsRateSheetChange reports whether the entry changed which rates are live.
func (a *AuditLog) IsRateSheetChange() bool {
	switch a.Action {
	case AuditActionRateSheetImported, AuditActionImportBatchRolledBack:
		return true
	}
	return false
}
