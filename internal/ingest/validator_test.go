package ingest

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const header = "usage_account_id,total_mbm_emissions_value,total_mbm_emissions_unit,total_lbm_emissions_value,total_lbm_emissions_unit,product_code,location,usage_month,model_version\n"

func TestParseValidCSV(t *testing.T) {
	content := header +
		"111,5,mtCO2e,6,mtCO2e,AmazonEC2,US East (N. Virginia),2025-03,v1\n" +
		"111,1.25,,2.5,,AmazonS3,EU (Frankfurt),2025-04-17,\n"

	res, err := Parse("export.csv", []byte(content))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Empty(t, res.RowErrors)
	assert.Equal(t, 2, res.Total())

	first := res.Records[0]
	assert.Equal(t, 1, first.Row)
	assert.Equal(t, "111", first.UsageAccountID)
	assert.Equal(t, "5", first.MBMValue.String())
	assert.Equal(t, "AmazonEC2", first.ProductCode)
	assert.Equal(t, "v1", first.ModelVersion)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), first.UsageMonth)

	second := res.Records[1]
	assert.Equal(t, DefaultUnit, second.MBMUnit)
	assert.Equal(t, DefaultUnit, second.LBMUnit)
	assert.Equal(t, "", second.ModelVersion)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), second.UsageMonth)
}

func TestParseCollectsRowErrors(t *testing.T) {
	content := header +
		"111,5,mtCO2e,6,mtCO2e,AmazonEC2,US East (N. Virginia),2025-03,\n" +
		",abc,mtCO2e,6,mtCO2e,AmazonEC2,,2025-03,\n" +
		"\n" +
		"111,5,mtCO2e,6,mtCO2e,AmazonEC2,EU (Ireland),March 2025,\n" +
		"111,5,mtCO2e,,mtCO2e,AmazonEC2,EU (Ireland),2025-13,\n"

	res, err := Parse("export.CSV", []byte(content))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Len(t, res.RowErrors, 3)
	assert.Equal(t, 4, res.Total())

	assert.Equal(t, 2, res.RowErrors[0].Row)
	assert.Equal(t, []string{"Missing usage_account_id", "Missing location", "Invalid total_mbm_emissions_value"}, res.RowErrors[0].Errors)
	assert.Equal(t, "Row 2: Missing usage_account_id, Missing location, Invalid total_mbm_emissions_value", res.RowErrors[0].String())

	assert.Equal(t, 3, res.RowErrors[1].Row, "blank lines do not count as rows")
	assert.Equal(t, []string{"Invalid usage_month format"}, res.RowErrors[1].Errors)

	assert.Equal(t, []string{"Missing total_lbm_emissions_value", "Invalid usage_month format"}, res.RowErrors[2].Errors)
}

func TestParseHeaderOnly(t *testing.T) {
	_, err := Parse("export.csv", []byte(header))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Parse("export.csv", []byte(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Parse("export.csv", []byte(header+"\n,,,,,,,,\n"))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestParseMissingColumns(t *testing.T) {
	_, err := Parse("export.csv", []byte("usage_account_id,product_code\n1,AmazonEC2\n"))
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "location")
}

func TestParseUnsupportedExtension(t *testing.T) {
	_, err := Parse("export.json", []byte(header))
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestParseMalformedCSV(t *testing.T) {
	_, err := Parse("export.csv", []byte(header+"111,\"unterminated\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed CSV")
}

func TestParseNormalizesHeaderAndBOM(t *testing.T) {
	content := "\xEF\xBB\xBFUsage Account ID,Total MBM Emissions Value,Total LBM Emissions Value,Product Code,Location,Usage Month\n" +
		"9,1,2,AWSLambda,EU (Ireland),2024-12\n"
	res, err := Parse("export.csv", []byte(content))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "9", res.Records[0].UsageAccountID)
	assert.Equal(t, DefaultUnit, res.Records[0].MBMUnit)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"usage_account_id", "total_mbm_emissions_value", "total_lbm_emissions_value", "product_code", "location", "usage_month"},
		{"111", "5", "6", "AmazonEC2", "US East (N. Virginia)", "2025-03"},
		{"111", "x", "6", "AmazonEC2", "US East (N. Virginia)", "2025-03"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	res, err := Parse("export.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Len(t, res.RowErrors, 1)
	assert.Equal(t, 2, res.RowErrors[0].Row)
}

func TestParseUsageMonth(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025-03", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2025-03-31", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{" 2024-12-01 ", time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), true},
		{"2025-3", time.Time{}, false},
		{"2025-02-30", time.Time{}, false},
		{"2025-00", time.Time{}, false},
		{"2025/03", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tc := range cases {
		got, err := ParseUsageMonth(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
