package table

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SheetName is the worksheet name used for exported tables.
const SheetName = "leads"

// ExportXLSX writes columns and rows as a single-sheet workbook.
func ExportXLSX(path string, columns []string, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range columns {
		header.AddCell().SetString(col)
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, col := range columns {
			r.AddCell().SetString(row[col])
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "xlsx: create dir %s", dir)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp")
	if err := f.Save(tmp); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "xlsx: replace %s", path)
	}
	return nil
}

// ReadXLSX reads the first sheet of a workbook as string rows, header
// included.
func ReadXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	}

	var out [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		out = append(out, cells)
	}
	return out, nil
}
