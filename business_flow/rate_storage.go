package businessflow

import (
	"context"
	"sort"

	"github.com/amirphl/freightdesk/models"
	"github.com/amirphl/freightdesk/repository"
)

// RateStorage is the record store the engine writes to and rebuilds from.
type RateStorage interface {
	CreateRecord(ctx context.Context, record *models.RateRecord) error
	CreateAttributes(ctx context.Context, attrs []*models.RateAttribute) error
	QueryActiveRecords(ctx context.Context, customerID uint, rateType string) ([]models.RateRecord, error)
}

type repositoryRateStorage struct {
	records    repository.RateRecordRepository
	attributes repository.RateAttributeRepository
}

// NewRepositoryRateStorage adapts the gorm repositories to RateStorage.
func NewRepositoryRateStorage(records repository.RateRecordRepository, attributes repository.RateAttributeRepository) RateStorage {
	return &repositoryRateStorage{records: records, attributes: attributes}
}

func (s *repositoryRateStorage) CreateRecord(ctx context.Context, record *models.RateRecord) error {
	return s.records.Save(ctx, record)
}

func (s *repositoryRateStorage) CreateAttributes(ctx context.Context, attrs []*models.RateAttribute) error {
	return s.attributes.SaveBatch(ctx, attrs)
}

func (s *repositoryRateStorage) QueryActiveRecords(ctx context.Context, customerID uint, rateType string) ([]models.RateRecord, error) {
	return s.records.ListActive(ctx, customerID, rateType)
}

// sortRateRecords orders records by priority sequence, ties by id.
func sortRateRecords(records []models.RateRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].PrioritySequence != records[j].PrioritySequence {
			return records[i].PrioritySequence < records[j].PrioritySequence
		}
		return records[i].ID < records[j].ID
	})
}
