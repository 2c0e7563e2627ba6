package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/freightdesk/models"
	"gorm.io/gorm"
)

// ImportBatchRepositoryImpl implements ImportBatchRepository
type ImportBatchRepositoryImpl struct {
	*BaseRepository[models.ImportBatch, models.ImportBatchFilter]
}

// NewImportBatchRepository creates a new repository for import batches
func NewImportBatchRepository(db *gorm.DB) ImportBatchRepository {
	return &ImportBatchRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ImportBatch, models.ImportBatchFilter](db),
	}
}

// ByBatchID retrieves a batch by its ULID. Missing batches return nil, nil.
func (r *ImportBatchRepositoryImpl) ByBatchID(ctx context.Context, id string) (*models.ImportBatch, error) {
	db := r.getDB(ctx)

	var batch models.ImportBatch
	err := db.Where("id = ?", id).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find import batch %s: %w", id, err)
	}
	return &batch, nil
}

// Update writes every column of batch.
func (r *ImportBatchRepositoryImpl) Update(ctx context.Context, batch *models.ImportBatch) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	err = db.Save(batch).Error
	if err != nil {
		err = fmt.Errorf("failed to update import batch %s: %w", batch.ID, err)
	}

	return finishWrite(db, shouldCommit, err)
}

// ActiveByKey returns the active batches for a customer and type, newest first.
func (r *ImportBatchRepositoryImpl) ActiveByKey(ctx context.Context, customerID uint, rateType string) ([]*models.ImportBatch, error) {
	status := models.ImportBatchStatusActive
	return r.ByFilter(ctx, models.ImportBatchFilter{
		CustomerID: &customerID,
		Type:       &rateType,
		Status:     &status,
	}, "", 0, 0)
}

// LatestSupersededByKey returns the most recent superseded batch, or nil.
func (r *ImportBatchRepositoryImpl) LatestSupersededByKey(ctx context.Context, customerID uint, rateType string) (*models.ImportBatch, error) {
	status := models.ImportBatchStatusSuperseded
	rows, err := r.ByFilter(ctx, models.ImportBatchFilter{
		CustomerID: &customerID,
		Type:       &rateType,
		Status:     &status,
	}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *ImportBatchRepositoryImpl) applyFilter(db *gorm.DB, filter models.ImportBatchFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Type != nil {
		db = db.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	return db
}

// ByFilter retrieves import batches; ULIDs sort by creation time so the
// default order is newest first.
func (r *ImportBatchRepositoryImpl) ByFilter(ctx context.Context, filter models.ImportBatchFilter, orderBy string, limit, offset int) ([]*models.ImportBatch, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ImportBatch{}), filter)
	query = applyPaging(query, orderBy, "id DESC", limit, offset)

	var rows []*models.ImportBatch
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find import batches by filter: %w", err)
	}
	return rows, nil
}

func (r *ImportBatchRepositoryImpl) Count(ctx context.Context, filter models.ImportBatchFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ImportBatch{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count import batches: %w", err)
	}
	return count, nil
}

func (r *ImportBatchRepositoryImpl) Exists(ctx context.Context, filter models.ImportBatchFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
