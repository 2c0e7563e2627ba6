package businessflow

import (
	"testing"

	"github.com/amirphl/freightdesk/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cell(v string) *string { return &v }

func TestNormalizeRateRow(t *testing.T) {
	t.Run("MappedColumnsAndLeftover", func(t *testing.T) {
		row := RateRow{
			"destination_city": cell("Toronto"),
			"min":              cell("50"),
			"extra_col":        cell("X9"),
		}

		record, attrs := NormalizeRateRow(row, 1, "LTL", false, "B1")

		require.NotNil(t, record.DestinationCity)
		assert.Equal(t, "Toronto", *record.DestinationCity)
		require.True(t, record.MinRate.Valid)
		assert.Equal(t, "50", record.MinRate.Decimal.String())
		assert.Equal(t, models.ExternalInternal, record.External)
		assert.Equal(t, 0, record.PrioritySequence)
		assert.Equal(t, uint(1), record.CustomerID)
		assert.Equal(t, models.RateTypeLTL, record.Type)
		assert.Equal(t, "B1", record.ImportBatchID)
		assert.True(t, record.IsActive)
		assert.Nil(t, record.Province)
		assert.Nil(t, record.PostalCode)
		assert.Nil(t, record.RateCode)
		assert.False(t, record.LTL.Valid)

		assert.Equal(t, map[string]string{"extra_col": "X9"}, attrs)
	})

	t.Run("EmptyLeftoverDropped", func(t *testing.T) {
		row := RateRow{
			"destination_city": cell("Toronto"),
			"min":              cell("50"),
			"extra_col":        cell(""),
			"blank_col":        cell("   "),
			"nil_col":          nil,
		}

		_, attrs := NormalizeRateRow(row, 1, "LTL", false, "B1")
		assert.Empty(t, attrs)
	})

	t.Run("ExcludedColumnsNeverBecomeAttributes", func(t *testing.T) {
		row := RateRow{
			"from":        cell("Montreal"),
			"source_city": cell("Montreal"),
			"to":          cell("Toronto"),
			"carrier":     cell("ACME"),
			"1000":        cell("12.50"),
		}

		_, attrs := NormalizeRateRow(row, 1, "LTL", false, "B1")
		assert.Equal(t, map[string]string{"1000": "12.50"}, attrs)
	})

	t.Run("KeysAndValuesTrimmed", func(t *testing.T) {
		row := RateRow{
			" Zone ":            cell("  A "),
			" destination_city": cell(" Ottawa "),
		}

		record, attrs := NormalizeRateRow(row, 2, " ftl ", true, "B2")
		require.NotNil(t, record.DestinationCity)
		assert.Equal(t, "Ottawa", *record.DestinationCity)
		assert.Equal(t, models.RateTypeFTL, record.Type)
		assert.True(t, record.SkidByWeight)
		assert.Equal(t, map[string]string{"Zone": "A"}, attrs)
	})

	t.Run("Defaults", func(t *testing.T) {
		row := RateRow{
			"external":          cell("external carrier"),
			"priority_sequence": cell("abc"),
			"min":               cell("n/a"),
			"ltl":               cell("$1,250.50"),
		}

		record, _ := NormalizeRateRow(row, 1, "LTL", false, "B1")
		assert.Equal(t, models.ExternalExternal, record.External)
		assert.Equal(t, 0, record.PrioritySequence)
		assert.False(t, record.MinRate.Valid)
		require.True(t, record.LTL.Valid)
		assert.Equal(t, "1250.5", record.LTL.Decimal.String())
	})

	t.Run("Pure", func(t *testing.T) {
		row := RateRow{
			"destination_city":  cell("Toronto"),
			"priority_sequence": cell("3.0"),
			"zone":              cell("B"),
		}

		r1, a1 := NormalizeRateRow(row, 1, "LTL", false, "B1")
		r2, a2 := NormalizeRateRow(row, 1, "LTL", false, "B1")

		assert.Equal(t, r1, r2)
		assert.Equal(t, a1, a2)
		assert.Equal(t, 3, r1.PrioritySequence)
		assert.Equal(t, "Toronto", *row["destination_city"])
		assert.Len(t, row, 3)
	})
}

func TestParseExternalFlag(t *testing.T) {
	tests := map[string]string{
		"":         models.ExternalInternal,
		"I":        models.ExternalInternal,
		"internal": models.ExternalInternal,
		"E":        models.ExternalExternal,
		"e":        models.ExternalExternal,
		"Yes":      models.ExternalInternal,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseExternalFlag(in), in)
	}
}

func TestParsePrioritySequence(t *testing.T) {
	assert.Equal(t, 0, parsePrioritySequence(""))
	assert.Equal(t, 7, parsePrioritySequence("7"))
	assert.Equal(t, -2, parsePrioritySequence("-2"))
	assert.Equal(t, 4, parsePrioritySequence("4.0"))
	assert.Equal(t, 0, parsePrioritySequence("4.5"))
}
