package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTestWorkbook(t *testing.T) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Prices")
	require.NoError(t, err)

	for _, row := range [][]string{
		{"Item No.", "Item Description", "Base Price List", "Primary Currency - Base Price (currency)", "Primary Currency - Base Price"},
		{"SKU1", "Blue Widget", "List1", "USD", "10.00"},
	} {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}

	path := filepath.Join(t.TempDir(), "prices.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	path := writeTestWorkbook(t)

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Item No.", rows[0][0])
	assert.Equal(t, "SKU1", rows[1][0])
	assert.Equal(t, "10.00", rows[1][4])
}

func TestReadXLSX_ByName(t *testing.T) {
	path := writeTestWorkbook(t)

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Prices"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestReadXLSX_SheetNotFound(t *testing.T) {
	path := writeTestWorkbook(t)

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSX_SheetIndexOutOfRange(t *testing.T) {
	path := writeTestWorkbook(t)

	_, err := ReadXLSX(path, XLSXOptions{SheetIndex: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_MissingFile(t *testing.T) {
	_, err := ReadXLSX("/no/such/file.xlsx", XLSXOptions{})
	require.Error(t, err)
}
