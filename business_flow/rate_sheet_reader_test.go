package businessflow

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNormalizeHeading(t *testing.T) {
	tests := map[string]string{
		"Destination City":      "destination_city",
		"  Priority-Sequence  ": "priority_sequence",
		"\ufeffMin":             "min",
		"LTL":                   "ltl",
		"rate  code":            "rate_code",
		"":                      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHeading(in), in)
	}
}

func TestReadRateSheetRowsCSV(t *testing.T) {
	t.Run("HeadingsNormalizedAndBlankLinesSkipped", func(t *testing.T) {
		data := "\n\ufeffDestination City,Min,Zone,Zone\nToronto,50,A,B\n,,,\nOttawa,,C\n"

		rows, err := ReadRateSheetRows("rates.csv", strings.NewReader(data), 0)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.Equal(t, "Toronto", *rows[0]["destination_city"])
		assert.Equal(t, "50", *rows[0]["min"])
		assert.Equal(t, "A", *rows[0]["zone"])
		assert.Equal(t, "B", *rows[0]["zone_2"])

		assert.Equal(t, "Ottawa", *rows[1]["destination_city"])
		assert.Equal(t, "", *rows[1]["min"])
		assert.Nil(t, rows[1]["zone_2"])
	})

	t.Run("TooManyRows", func(t *testing.T) {
		data := "destination_city\nA\nB\nC\n"

		_, err := ReadRateSheetRows("rates.csv", strings.NewReader(data), 2)
		require.Error(t, err)
		assert.True(t, IsSheetTooLarge(err))
	})

	t.Run("NoHeading", func(t *testing.T) {
		_, err := ReadRateSheetRows("rates.csv", strings.NewReader("\n,,\n"), 0)
		require.Error(t, err)
		assert.True(t, IsSheetHeaderMissing(err))
	})

	t.Run("RepeatedHeadingSkipsTakenSuffix", func(t *testing.T) {
		data := "zone,zone,zone_2\nA,B,C\n"

		rows, err := ReadRateSheetRows("rates.csv", strings.NewReader(data), 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Len(t, rows[0], 3)
		assert.Equal(t, "A", *rows[0]["zone"])
		assert.Equal(t, "B", *rows[0]["zone_2"])
		assert.Equal(t, "C", *rows[0]["zone_2_2"])
	})

	t.Run("LinesCountHeadingAndBlankLines", func(t *testing.T) {
		data := "\ndestination_city,min\nToronto,50\n,\n\nOttawa,40\n"

		sheet, err := ReadRateSheet("rates.csv", strings.NewReader(data), 0)
		require.NoError(t, err)
		require.Len(t, sheet.Rows, 2)
		assert.Equal(t, []int{3, 6}, sheet.Lines)
	})

	t.Run("MalformedIsValidation", func(t *testing.T) {
		data := "destination_city,min\nTor\"onto,50\n"

		_, err := ReadRateSheetRows("rates.csv", strings.NewReader(data), 0)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Equal(t, "CSV_READ_ERROR", ErrorCode(err))
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		_, err := ReadRateSheetRows("rates.pdf", strings.NewReader("x"), 0)
		require.Error(t, err)
		assert.True(t, IsUnsupportedSheetFormat(err))
		assert.Equal(t, "RATE_SHEET_FORMAT_UNSUPPORTED", ErrorCode(err))
	})
}

func TestReadRateSheetRowsXLSXTemplate(t *testing.T) {
	raw, err := BuildRateSheetTemplate()
	require.NoError(t, err)

	rows, err := ReadRateSheetRows("template.xlsx", bytes.NewReader(raw), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	for _, col := range RecognizedRateColumns {
		assert.Contains(t, row, col)
	}
	assert.Equal(t, "Toronto", *row["destination_city"])
	assert.Equal(t, "21.40", *row["500"])
	assert.Equal(t, "FSC", *row["fuel_code"])

	record, attrs := NormalizeRateRow(row, 9, "LTL", true, "B1")
	assert.Equal(t, 1, record.PrioritySequence)
	assert.Equal(t, "38.5", record.LTL.Decimal.String())
	assert.Len(t, attrs, len(rateSheetTemplateExtras))
}

func TestReadRateSheetXLSX(t *testing.T) {
	t.Run("NotAWorkbookIsValidation", func(t *testing.T) {
		_, err := ReadRateSheetRows("rates.xlsx", strings.NewReader("not a zip file"), 0)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Equal(t, "EXCEL_READ_ERROR", ErrorCode(err))
	})

	t.Run("LinesFollowSheetRows", func(t *testing.T) {
		xl := excelize.NewFile()
		defer func() { _ = xl.Close() }()
		sheet := xl.GetSheetName(0)
		require.NoError(t, xl.SetSheetRow(sheet, "A1", &[]string{"destination_city", "ltl"}))
		require.NoError(t, xl.SetSheetRow(sheet, "A2", &[]string{"Toronto", "10"}))
		require.NoError(t, xl.SetSheetRow(sheet, "A5", &[]string{"Ottawa", "12"}))
		buf, err := xl.WriteToBuffer()
		require.NoError(t, err)

		parsed, err := ReadRateSheet("rates.xlsx", bytes.NewReader(buf.Bytes()), 0)
		require.NoError(t, err)
		require.Len(t, parsed.Rows, 2)
		assert.Equal(t, []int{2, 5}, parsed.Lines)
		assert.Equal(t, "Ottawa", *parsed.Rows[1]["destination_city"])
	})
}
