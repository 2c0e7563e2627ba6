package businessflow

import (
	"sort"
	"strconv"
	"strings"

	"github.com/amirphl/freightdesk/models"
	"github.com/shopspring/decimal"
)

// RateRow is one spreadsheet row keyed by its heading. A nil value is an
// empty cell.
type RateRow map[string]*string

// Rate sheet columns with a home in the rate_records schema
const (
	ColumnDestinationCity  = "destination_city"
	ColumnRateCode         = "rate_code"
	ColumnProvince         = "province"
	ColumnPostalCode       = "postal_code"
	ColumnExternal         = "external"
	ColumnPrioritySequence = "priority_sequence"
	ColumnMin              = "min"
	ColumnLTL              = "ltl"
)

// RecognizedRateColumns lists the mapped columns in template order.
var RecognizedRateColumns = []string{
	ColumnDestinationCity,
	ColumnProvince,
	ColumnPostalCode,
	ColumnRateCode,
	ColumnExternal,
	ColumnPrioritySequence,
	ColumnMin,
	ColumnLTL,
}

// excludedRateColumns never become attributes: the mapped columns plus
// origin and carrier columns that are implied by the customer and upload.
var excludedRateColumns = map[string]struct{}{
	ColumnDestinationCity:  {},
	ColumnRateCode:         {},
	ColumnProvince:         {},
	ColumnPostalCode:       {},
	ColumnExternal:         {},
	ColumnPrioritySequence: {},
	ColumnMin:              {},
	ColumnLTL:              {},
	"from":                 {},
	"source_city":          {},
	"to":                   {},
	"carrier":              {},
}

// NormalizeRateRow maps a raw row onto a rate record draft and the leftover
// attributes. It never fails: unparseable optional values become null.
// When two headings trim to the same name the first non-empty one in
// sorted heading order wins, so the result does not depend on map order.
func NormalizeRateRow(row RateRow, customerID uint, rateType string, skidByWeight bool, batchID string) (models.RateRecord, map[string]string) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	known := make(map[string]string, len(excludedRateColumns))
	leftovers := make(map[string]string)

	for _, k := range keys {
		name := strings.TrimSpace(k)
		if name == "" || row[k] == nil {
			continue
		}
		value := strings.TrimSpace(*row[k])
		if value == "" {
			continue
		}

		canonical := strings.ToLower(name)
		if _, excluded := excludedRateColumns[canonical]; excluded {
			if _, seen := known[canonical]; !seen {
				known[canonical] = value
			}
			continue
		}
		if _, seen := leftovers[name]; !seen {
			leftovers[name] = value
		}
	}

	record := models.RateRecord{
		CustomerID:       customerID,
		Type:             NormalizeRateType(rateType),
		IsActive:         true,
		ImportBatchID:    batchID,
		DestinationCity:  optionalString(known[ColumnDestinationCity]),
		Province:         optionalString(known[ColumnProvince]),
		PostalCode:       optionalString(known[ColumnPostalCode]),
		RateCode:         optionalString(known[ColumnRateCode]),
		External:         parseExternalFlag(known[ColumnExternal]),
		PrioritySequence: parsePrioritySequence(known[ColumnPrioritySequence]),
		MinRate:          parseMoney(known[ColumnMin]),
		LTL:              parseMoney(known[ColumnLTL]),
		SkidByWeight:     skidByWeight,
	}

	return record, leftovers
}

// NormalizeRateType upper-cases and trims a service type.
func NormalizeRateType(rateType string) string {
	return strings.ToUpper(strings.TrimSpace(rateType))
}

// rowIsBlank reports whether every cell of the row is empty after trimming.
func rowIsBlank(row RateRow) bool {
	for _, v := range row {
		if v != nil && strings.TrimSpace(*v) != "" {
			return false
		}
	}
	return true
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func parseExternalFlag(v string) string {
	if strings.HasPrefix(strings.ToUpper(v), models.ExternalExternal) {
		return models.ExternalExternal
	}
	return models.ExternalInternal
}

func parsePrioritySequence(v string) int {
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	// Spreadsheets often hand integers back as "3.0".
	if d, err := decimal.NewFromString(v); err == nil && d.Equal(d.Truncate(0)) {
		return int(d.IntPart())
	}
	return 0
}

var moneyReplacer = strings.NewReplacer("$", "", ",", "", " ", "")

// parseMoney accepts "1,250.00", "$50" and plain decimals.
func parseMoney(v string) decimal.NullDecimal {
	if v == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(moneyReplacer.Replace(v))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
