// Package models contains domain entities for rate sheets, their attributes and import batches
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rate sheet service types
const (
	RateTypeLTL = "LTL"
	RateTypeFTL = "FTL"
)

// Carrier flags for RateRecord.External
const (
	ExternalInternal = "I"
	ExternalExternal = "E"
)

// RateRecord is one normalized row of an imported rate sheet.
// Records are written once per import row and never edited in place; only
// IsActive changes when their batch is superseded or rolled back.
// Table: rate_records
type RateRecord struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	CustomerID    uint   `gorm:"not null;index:idx_rate_records_lookup,priority:1" json:"customer_id"`
	Type          string `gorm:"size:16;not null;index:idx_rate_records_lookup,priority:2" json:"type"`
	IsActive      bool   `gorm:"not null;index:idx_rate_records_lookup,priority:3" json:"is_active"`
	ImportBatchID string `gorm:"size:26;not null;index:idx_rate_records_import_batch_id" json:"import_batch_id"`

	DestinationCity *string `gorm:"size:255" json:"destination_city,omitempty"`
	Province        *string `gorm:"size:100" json:"province,omitempty"`
	PostalCode      *string `gorm:"size:20" json:"postal_code,omitempty"`

	RateCode         *string `gorm:"size:100" json:"rate_code,omitempty"`
	External         string  `gorm:"size:1;not null" json:"external"`
	PrioritySequence int     `gorm:"not null" json:"priority_sequence"`

	MinRate      decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"min_rate"`
	LTL          decimal.NullDecimal `gorm:"type:numeric(12,4)" json:"ltl"`
	SkidByWeight bool                `gorm:"not null" json:"skid_by_weight"`

	CreatedAt time.Time `gorm:"index:idx_rate_records_created_at" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attributes []RateAttribute `gorm:"foreignKey:RateRecordID;constraint:OnDelete:CASCADE" json:"attributes,omitempty"`
}

func (RateRecord) TableName() string {
	return "rate_records"
}

// AttributeValues returns every value stored under name, in insertion order.
func (r *RateRecord) AttributeValues(name string) []string {
	var out []string
	for _, a := range r.Attributes {
		if strings.EqualFold(a.Name, name) {
			out = append(out, a.Value)
		}
	}
	return out
}

// Attribute returns the first value stored under name.
func (r *RateRecord) Attribute(name string) (string, bool) {
	values := r.AttributeValues(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// RateRecordFilter represents filter criteria for rate record queries
type RateRecordFilter struct {
	ID            *uint
	CustomerID    *uint
	Type          *string
	ImportBatchID *string
	IsActive      *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// RateRecordPredicate selects records for admin listings and tabs.
type RateRecordPredicate func(*RateRecord) bool

// RateTypeTab returns the predicate behind a listing tab. "all" and "" match
// every record; any other value matches records of that type.
func RateTypeTab(tab string) RateRecordPredicate {
	tab = strings.ToUpper(strings.TrimSpace(tab))
	if tab == "" || tab == "ALL" {
		return func(*RateRecord) bool { return true }
	}
	return func(r *RateRecord) bool {
		return strings.EqualFold(r.Type, tab)
	}
}

// ActiveRecords matches records that belong to the live batch.
func ActiveRecords(r *RateRecord) bool {
	return r.IsActive
}

// FilterRateRecords keeps the records every predicate accepts.
func FilterRateRecords(records []*RateRecord, preds ...RateRecordPredicate) []*RateRecord {
	out := make([]*RateRecord, 0, len(records))
next:
	for _, r := range records {
		for _, p := range preds {
			if !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}
