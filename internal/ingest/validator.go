// Package ingest turns an uploaded emissions export into validated rows.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type, please upload a CSV or XLSX file")
	ErrEmptyFile       = errors.New("file is empty or contains only headers")
	ErrMissingColumns  = errors.New("missing required columns")
)

// Header columns of the export.
const (
	ColAccountID    = "usage_account_id"
	ColMBMValue     = "total_mbm_emissions_value"
	ColMBMUnit      = "total_mbm_emissions_unit"
	ColLBMValue     = "total_lbm_emissions_value"
	ColLBMUnit      = "total_lbm_emissions_unit"
	ColProductCode  = "product_code"
	ColLocation     = "location"
	ColUsageMonth   = "usage_month"
	ColModelVersion = "model_version"
)

var requiredColumns = []string{ColAccountID, ColMBMValue, ColLBMValue, ColProductCode, ColLocation, ColUsageMonth}

// Record is one validated export row.
type Record struct {
	Row            int
	UsageAccountID string
	MBMValue       decimal.Decimal
	MBMUnit        string
	LBMValue       decimal.Decimal
	LBMUnit        string
	ProductCode    string
	Location       string
	UsageMonth     time.Time // first of month, UTC
	ModelVersion   string
}

// RowError collects every problem found on one data row. Row is 1-based
// and does not count the header.
type RowError struct {
	Row    int
	Errors []string
}

func (e RowError) String() string {
	return fmt.Sprintf("Row %d: %s", e.Row, strings.Join(e.Errors, ", "))
}

// Result is the outcome of parsing one file: every data row ends up in
// exactly one of Records or RowErrors, in file order.
type Result struct {
	Records   []Record
	RowErrors []RowError
}

// Total is the number of data rows parsed.
func (r *Result) Total() int {
	return len(r.Records) + len(r.RowErrors)
}

// Parse reads a CSV or XLSX export. File-level problems (unknown format,
// unreadable content, missing header columns, no data rows) are returned
// as errors; row-level problems are collected in the result.
func Parse(fileName string, content []byte) (*Result, error) {
	rows, err := readRows(fileName, content)
	if err != nil {
		return nil, err
	}
	return validateRows(rows)
}

func readRows(fileName string, content []byte) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return readCSV(content)
	case ".xlsx":
		return readXLSX(content)
	default:
		return nil, ErrUnsupportedFile
	}
}

func readCSV(content []byte) ([][]string, error) {
	br := bufio.NewReader(bytes.NewReader(content))
	if peek, _ := br.Peek(3); len(peek) == 3 && peek[0] == 0xEF && peek[1] == 0xBB && peek[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	r := csv.NewReader(br)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed CSV: %w", err)
	}
	return rows, nil
}

func readXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("malformed XLSX: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("malformed XLSX: %w", err)
	}
	return rows, nil
}

func normalizeHeader(row []string) map[string]int {
	idx := make(map[string]int, len(row))
	for i, h := range row {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.ReplaceAll(h, " ", "_")
		h = strings.Trim(h, "\"'`")
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func validateRows(rows [][]string) (*Result, error) {
	// leading blank lines are not a header
	for len(rows) > 0 && isBlank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	header := normalizeHeader(rows[0])
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := header[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	res := &Result{}
	n := 0
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		n++
		rec, errs := validateRow(n, header, row)
		if len(errs) > 0 {
			res.RowErrors = append(res.RowErrors, RowError{Row: n, Errors: errs})
			continue
		}
		res.Records = append(res.Records, rec)
	}
	if n == 0 {
		return nil, ErrEmptyFile
	}
	return res, nil
}

func validateRow(n int, header map[string]int, row []string) (Record, []string) {
	get := func(col string) string {
		i, ok := header[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var errs []string
	require := func(col string) string {
		v := get(col)
		if v == "" {
			errs = append(errs, "Missing "+col)
		}
		return v
	}

	rec := Record{
		Row:            n,
		UsageAccountID: require(ColAccountID),
		MBMUnit:        unitOrDefault(get(ColMBMUnit)),
		LBMUnit:        unitOrDefault(get(ColLBMUnit)),
		ProductCode:    require(ColProductCode),
		Location:       require(ColLocation),
		ModelVersion:   get(ColModelVersion),
	}

	if v := require(ColMBMValue); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, "Invalid "+ColMBMValue)
		}
		rec.MBMValue = d
	}
	if v := require(ColLBMValue); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, "Invalid "+ColLBMValue)
		}
		rec.LBMValue = d
	}
	if v := require(ColUsageMonth); v != "" {
		month, err := ParseUsageMonth(v)
		if err != nil {
			errs = append(errs, "Invalid usage_month format")
		}
		rec.UsageMonth = month
	}
	return rec, errs
}

// DefaultUnit is used when an export leaves a unit column blank.
const DefaultUnit = "mtCO2e"

func unitOrDefault(u string) string {
	if u == "" {
		return DefaultUnit
	}
	return u
}

// ParseUsageMonth accepts YYYY-MM or YYYY-MM-DD and returns the first of
// that month at 00:00 UTC.
func ParseUsageMonth(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 && len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid usage month %q", s)
	}
	if len(parts[0]) != 4 || len(parts[1]) != 2 {
		return time.Time{}, fmt.Errorf("invalid usage month %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid usage month %q", s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid usage month %q", s)
	}
	if len(parts) == 3 {
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err != nil {
			return time.Time{}, fmt.Errorf("invalid usage month %q", s)
		}
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}
