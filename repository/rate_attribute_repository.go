package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/freightdesk/models"
	"gorm.io/gorm"
)

// RateAttributeRepositoryImpl implements RateAttributeRepository
type RateAttributeRepositoryImpl struct {
	*BaseRepository[models.RateAttribute, models.RateAttributeFilter]
}

// NewRateAttributeRepository creates a new repository for rate attributes
func NewRateAttributeRepository(db *gorm.DB) RateAttributeRepository {
	return &RateAttributeRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RateAttribute, models.RateAttributeFilter](db),
	}
}

// ListByRecord returns a record's attributes in insertion order.
func (r *RateAttributeRepositoryImpl) ListByRecord(ctx context.Context, rateRecordID uint) ([]*models.RateAttribute, error) {
	return r.ByFilter(ctx, models.RateAttributeFilter{RateRecordID: &rateRecordID}, "id ASC", 0, 0)
}

func (r *RateAttributeRepositoryImpl) applyFilter(db *gorm.DB, filter models.RateAttributeFilter) *gorm.DB {
	if filter.RateRecordID != nil {
		db = db.Where("rate_record_id = ?", *filter.RateRecordID)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}
	return db
}

func (r *RateAttributeRepositoryImpl) ByFilter(ctx context.Context, filter models.RateAttributeFilter, orderBy string, limit, offset int) ([]*models.RateAttribute, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RateAttribute{}), filter)
	query = applyPaging(query, orderBy, "id ASC", limit, offset)

	var rows []*models.RateAttribute
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find rate attributes by filter: %w", err)
	}
	return rows, nil
}

func (r *RateAttributeRepositoryImpl) Count(ctx context.Context, filter models.RateAttributeFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RateAttribute{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count rate attributes: %w", err)
	}
	return count, nil
}

func (r *RateAttributeRepositoryImpl) Exists(ctx context.Context, filter models.RateAttributeFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
