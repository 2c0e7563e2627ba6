package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/freightdesk/models"
	"gorm.io/gorm"
)

// RateRecordRepositoryImpl implements RateRecordRepository
type RateRecordRepositoryImpl struct {
	*BaseRepository[models.RateRecord, models.RateRecordFilter]
}

// NewRateRecordRepository creates a new repository for rate records
func NewRateRecordRepository(db *gorm.DB) RateRecordRepository {
	return &RateRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RateRecord, models.RateRecordFilter](db),
	}
}

func orderAttributes(db *gorm.DB) *gorm.DB {
	return db.Order("rate_attributes.id ASC")
}

// ListActive returns the active records for one customer and type.
func (r *RateRecordRepositoryImpl) ListActive(ctx context.Context, customerID uint, rateType string) ([]models.RateRecord, error) {
	db := r.getDB(ctx)

	var rows []models.RateRecord
	err := db.
		Where("customer_id = ? AND type = ? AND is_active = ?", customerID, rateType, true).
		Order("priority_sequence ASC, id ASC").
		Preload("Attributes", orderAttributes).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active rate records for customer %d type %s: %w", customerID, rateType, err)
	}

	return rows, nil
}

// SetActiveByBatch flips the active flag on every record of a batch.
func (r *RateRecordRepositoryImpl) SetActiveByBatch(ctx context.Context, batchID string, active bool) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}

	res := db.Model(&models.RateRecord{}).
		Where("import_batch_id = ?", batchID).
		Update("is_active", active)
	if res.Error != nil {
		err = fmt.Errorf("failed to set active=%t for batch %s: %w", active, batchID, res.Error)
	}

	if err := finishWrite(db, shouldCommit, err); err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *RateRecordRepositoryImpl) applyFilter(db *gorm.DB, filter models.RateRecordFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Type != nil {
		db = db.Where("type = ?", *filter.Type)
	}
	if filter.ImportBatchID != nil {
		db = db.Where("import_batch_id = ?", *filter.ImportBatchID)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}

// ByFilter retrieves rate records with attributes based on filter criteria.
func (r *RateRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.RateRecordFilter, orderBy string, limit, offset int) ([]*models.RateRecord, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RateRecord{}), filter)
	query = applyPaging(query, orderBy, "priority_sequence ASC, id ASC", limit, offset)

	var rows []*models.RateRecord
	if err := query.Preload("Attributes", orderAttributes).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find rate records by filter: %w", err)
	}
	return rows, nil
}

// Count returns the number of rate records matching the filter.
func (r *RateRecordRepositoryImpl) Count(ctx context.Context, filter models.RateRecordFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RateRecord{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count rate records: %w", err)
	}
	return count, nil
}

// Exists checks if any rate record matching the filter exists.
func (r *RateRecordRepositoryImpl) Exists(ctx context.Context, filter models.RateRecordFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
