package testing

import (
	"fmt"

	"github.com/amirphl/freightdesk/models"
	"github.com/amirphl/freightdesk/utils"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// RateRecordSpec describes a rate record to insert directly, bypassing the importer.
type RateRecordSpec struct {
	CustomerID       uint
	Type             string
	BatchID          string
	City             string
	Province         string
	PostalCode       string
	PrioritySequence int
	MinRate          string
	LTL              string
	SkidByWeight     bool
	Inactive         bool
	Attributes       map[string]string
}

// CreateTestRateRecord inserts a rate record and its attributes.
func (tf *TestFixtures) CreateTestRateRecord(spec RateRecordSpec) (*models.RateRecord, error) {
	if spec.Type == "" {
		spec.Type = models.RateTypeLTL
	}
	if spec.BatchID == "" {
		spec.BatchID = ulid.Make().String()
	}

	record := &models.RateRecord{
		CustomerID:       spec.CustomerID,
		Type:             spec.Type,
		IsActive:         !spec.Inactive,
		ImportBatchID:    spec.BatchID,
		DestinationCity:  optional(spec.City),
		Province:         optional(spec.Province),
		PostalCode:       optional(spec.PostalCode),
		External:         models.ExternalInternal,
		PrioritySequence: spec.PrioritySequence,
		MinRate:          optionalDecimal(spec.MinRate),
		LTL:              optionalDecimal(spec.LTL),
		SkidByWeight:     spec.SkidByWeight,
		CreatedAt:        utils.UTCNow(),
		UpdatedAt:        utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to insert rate record: %w", err)
	}

	// Inserted one at a time so ids follow map iteration; callers that care
	// about attribute order use a single attribute.
	for name, value := range spec.Attributes {
		attr := &models.RateAttribute{
			RateRecordID: record.ID,
			Name:         name,
			Value:        value,
			CreatedAt:    utils.UTCNow(),
		}
		if err := tf.DB.DB.Create(attr).Error; err != nil {
			return nil, fmt.Errorf("failed to insert rate attribute %s: %w", name, err)
		}
		record.Attributes = append(record.Attributes, *attr)
	}

	return record, nil
}

// CreateTestImportBatch inserts an import batch row in the given status.
func (tf *TestFixtures) CreateTestImportBatch(customerID uint, rateType, status string) (*models.ImportBatch, error) {
	batch := &models.ImportBatch{
		ID:         ulid.Make().String(),
		CustomerID: customerID,
		Type:       rateType,
		Status:     status,
		SourceName: "fixture.csv",
		CreatedAt:  utils.UTCNow(),
		UpdatedAt:  utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to insert import batch: %w", err)
	}
	return batch, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return utils.ToPtr(s)
}

func optionalDecimal(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}
