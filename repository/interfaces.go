// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/amirphl/freightdesk/models"
	"gorm.io/gorm"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// RateRecordRepository defines operations for normalized rate sheet rows
type RateRecordRepository interface {
	Repository[models.RateRecord, models.RateRecordFilter]
	// ListActive returns active records for the key with attributes loaded,
	// ordered by priority sequence then id.
	ListActive(ctx context.Context, customerID uint, rateType string) ([]models.RateRecord, error)
	SetActiveByBatch(ctx context.Context, batchID string, active bool) (int64, error)
}

// RateAttributeRepository defines operations for the attribute side table
type RateAttributeRepository interface {
	Repository[models.RateAttribute, models.RateAttributeFilter]
	ListByRecord(ctx context.Context, rateRecordID uint) ([]*models.RateAttribute, error)
}

// ImportBatchRepository defines operations for rate sheet import batches
type ImportBatchRepository interface {
	Repository[models.ImportBatch, models.ImportBatchFilter]
	ByBatchID(ctx context.Context, id string) (*models.ImportBatch, error)
	Update(ctx context.Context, batch *models.ImportBatch) error
	ActiveByKey(ctx context.Context, customerID uint, rateType string) ([]*models.ImportBatch, error)
	LatestSupersededByKey(ctx context.Context, customerID uint, rateType string) (*models.ImportBatch, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByCustomer(ctx context.Context, customerID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}
