package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateTypeTab(t *testing.T) {
	records := []*RateRecord{
		{ID: 1, Type: RateTypeLTL, IsActive: true},
		{ID: 2, Type: RateTypeFTL, IsActive: true},
		{ID: 3, Type: RateTypeLTL, IsActive: false},
	}

	ids := func(rs []*RateRecord) []uint {
		out := make([]uint, 0, len(rs))
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Equal(t, []uint{1, 2, 3}, ids(FilterRateRecords(records, RateTypeTab("all"))))
	assert.Equal(t, []uint{1, 2, 3}, ids(FilterRateRecords(records, RateTypeTab(""))))
	assert.Equal(t, []uint{1, 3}, ids(FilterRateRecords(records, RateTypeTab("ltl"))))
	assert.Equal(t, []uint{1}, ids(FilterRateRecords(records, RateTypeTab("LTL"), ActiveRecords)))
	assert.Empty(t, FilterRateRecords(records, RateTypeTab("intermodal")))
}

func TestRateRecordAttributeLookup(t *testing.T) {
	r := RateRecord{Attributes: []RateAttribute{
		{Name: "zone", Value: "A"},
		{Name: "Zone", Value: "B"},
		{Name: "500", Value: "12.50"},
	}}

	v, ok := r.Attribute("ZONE")
	assert.True(t, ok)
	assert.Equal(t, "A", v)
	assert.Equal(t, []string{"A", "B"}, r.AttributeValues("zone"))

	_, ok = r.Attribute("fuel")
	assert.False(t, ok)
}

func TestImportBatchRowErrors(t *testing.T) {
	var b ImportBatch

	errs, err := b.RowErrors()
	require.NoError(t, err)
	assert.Nil(t, errs)

	require.NoError(t, b.SetRowErrors([]ImportRowError{{Row: 3, Error: "rejected"}}))
	errs, err = b.RowErrors()
	require.NoError(t, err)
	assert.Equal(t, []ImportRowError{{Row: 3, Error: "rejected"}}, errs)

	require.NoError(t, b.SetRowErrors(nil))
	assert.Nil(t, b.Errors)
}

func TestAuditLogClassification(t *testing.T) {
	ok := false
	a := AuditLog{Action: AuditActionRateSheetImported, Success: &ok}
	assert.True(t, a.IsFailed())
	assert.True(t, a.IsRateSheetChange())

	a.Action = AuditActionRateCacheInvalidated
	assert.False(t, a.IsRateSheetChange())
}
