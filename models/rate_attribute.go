package models

import "time"

// RateAttribute holds a carrier specific column that has no place in the
// rate_records schema (surcharge codes, zone codes, bracket prices).
// Names may repeat for one record. Rows are written once and never updated.
// Table: rate_attributes
type RateAttribute struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RateRecordID uint      `gorm:"not null;index:idx_rate_attributes_rate_record_id" json:"rate_record_id"`
	Name         string    `gorm:"size:255;not null;index:idx_rate_attributes_name" json:"name"`
	Value        string    `gorm:"type:text;not null" json:"value"`
	CreatedAt    time.Time `json:"created_at"`
}

func (RateAttribute) TableName() string {
	return "rate_attributes"
}

// RateAttributeFilter represents filter criteria for attribute queries
type RateAttributeFilter struct {
	RateRecordID *uint
	Name         *string
}
