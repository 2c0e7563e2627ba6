package businessflow

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

var headingSeparators = regexp.MustCompile(`[\s\-]+`)

// NormalizeHeading lower-cases a column heading and joins its words with
// underscores: " Destination City " becomes "destination_city".
func NormalizeHeading(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return headingSeparators.ReplaceAllString(h, "_")
}

// RateSheet is a parsed upload. Lines[i] is the 1-based line of Rows[i] in
// the file, counting the heading and any blank lines.
type RateSheet struct {
	Rows  []RateRow
	Lines []int
}

// ReadRateSheetRows turns an uploaded .csv or .xlsx rate sheet into rows
// keyed by normalized heading. Entirely blank rows are dropped. maxRows <= 0
// disables the row limit.
func ReadRateSheetRows(filename string, r io.Reader, maxRows int) ([]RateRow, error) {
	sheet, err := ReadRateSheet(filename, r, maxRows)
	if err != nil {
		return nil, err
	}
	return sheet.Rows, nil
}

// ReadRateSheet is ReadRateSheetRows keeping the source line of every row.
func ReadRateSheet(filename string, r io.Reader, maxRows int) (*RateSheet, error) {
	if r == nil {
		return nil, NewBusinessError("RATE_SHEET_FILE_REQUIRED", "Rate sheet file is required", ErrValidation)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return readCSVRateSheet(r, maxRows)
	case ".xlsx", ".xlsm":
		return readXLSXRateSheet(r, maxRows)
	default:
		return nil, NewBusinessErrorf("RATE_SHEET_FORMAT_UNSUPPORTED", "Unsupported rate sheet format %q", ErrUnsupportedSheetFormat, filepath.Ext(filename))
	}
}

// unreadableSheet reports a file that cannot be parsed as a validation error.
func unreadableSheet(code, message string, err error) *BusinessError {
	return NewBusinessError(code, message, fmt.Errorf("%w: %w", ErrValidation, err))
}

func readCSVRateSheet(r io.Reader, maxRows int) (*RateSheet, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var collector rateRowCollector
	collector.maxRows = maxRows
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, unreadableSheet("CSV_READ_ERROR", "Failed to read CSV row", err)
		}
		line, _ := reader.FieldPos(0)
		if err := collector.add(rec, line); err != nil {
			return nil, err
		}
	}
	return collector.result()
}

func readXLSXRateSheet(r io.Reader, maxRows int) (*RateSheet, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, unreadableSheet("EXCEL_READ_ERROR", "Failed to open Excel file", err)
	}
	defer func() { _ = xl.Close() }()

	sheets := xl.GetSheetList()
	if len(sheets) == 0 {
		return nil, NewBusinessError("RATE_SHEET_HEADER_MISSING", "Excel file has no sheets", ErrSheetHeaderMissing)
	}

	rows, err := xl.Rows(sheets[0])
	if err != nil {
		return nil, unreadableSheet("EXCEL_READ_ERROR", "Failed to read Excel sheet", err)
	}
	defer func() { _ = rows.Close() }()

	var collector rateRowCollector
	collector.maxRows = maxRows
	// The iterator yields empty rows for gaps, so the count is the sheet row.
	line := 0
	for rows.Next() {
		line++
		cols, err := rows.Columns()
		if err != nil {
			return nil, unreadableSheet("EXCEL_READ_ERROR", "Failed to read Excel row", err)
		}
		if err := collector.add(cols, line); err != nil {
			return nil, err
		}
	}
	if err := rows.Error(); err != nil {
		return nil, unreadableSheet("EXCEL_READ_ERROR", "Failed to read Excel sheet", err)
	}
	return collector.result()
}

// rateRowCollector turns raw cell slices into RateRows. The first non-blank
// line is the heading row.
type rateRowCollector struct {
	headings []string
	rows     []RateRow
	lines    []int
	maxRows  int
}

func (c *rateRowCollector) add(cells []string, line int) error {
	if isBlankLine(cells) {
		return nil
	}
	if c.headings == nil {
		c.headings = uniqueHeadings(cells)
		return nil
	}
	if c.maxRows > 0 && len(c.rows) >= c.maxRows {
		return NewBusinessErrorf("RATE_SHEET_TOO_LARGE", "Rate sheet exceeds %d rows", ErrSheetTooLarge, c.maxRows)
	}

	row := make(RateRow, len(c.headings))
	for i, h := range c.headings {
		if h == "" {
			continue
		}
		if i < len(cells) {
			v := cells[i]
			row[h] = &v
		} else {
			row[h] = nil
		}
	}
	c.rows = append(c.rows, row)
	c.lines = append(c.lines, line)
	return nil
}

func (c *rateRowCollector) result() (*RateSheet, error) {
	if c.headings == nil {
		return nil, NewBusinessError("RATE_SHEET_HEADER_MISSING", "Rate sheet has no heading row", ErrSheetHeaderMissing)
	}
	return &RateSheet{Rows: c.rows, Lines: c.lines}, nil
}

// uniqueHeadings normalizes headings; a repeated heading gets the first free
// numeric suffix ("zone", "zone_2") so no column is silently dropped, even
// when the sheet already has a column with that suffixed name.
func uniqueHeadings(cells []string) []string {
	out := make([]string, len(cells))
	used := make(map[string]bool, len(cells))
	for i, cell := range cells {
		h := NormalizeHeading(cell)
		if h == "" {
			continue
		}
		name := h
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", h, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func isBlankLine(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// rateSheetTemplateExtras are sample carrier columns shown after the mapped ones.
var rateSheetTemplateExtras = []string{"500", "1000", "2000", "5000", "zone", "fuel_code"}

// BuildRateSheetTemplate returns an .xlsx workbook with the recognized
// headings and one example row.
func BuildRateSheetTemplate() ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "Rates"
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := append(append([]string{}, RecognizedRateColumns...), rateSheetTemplateExtras...)
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write template header", err)
	}

	example := []string{"Toronto", "ON", "M5V", "TOR-01", "I", "1", "45.00", "38.50", "21.40", "18.75", "16.10", "14.90", "A", "FSC"}
	if err := xl.SetSheetRow(sheet, "A2", &example); err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write template example", err)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	return buf.Bytes(), nil
}

// isSheetError reports whether err came from reading the uploaded file
// rather than from storage.
func isSheetError(err error) bool {
	return errors.Is(err, ErrUnsupportedSheetFormat) ||
		errors.Is(err, ErrSheetHeaderMissing) ||
		errors.Is(err, ErrSheetTooLarge) ||
		errors.Is(err, ErrValidation)
}
