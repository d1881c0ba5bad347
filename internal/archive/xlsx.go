package archive

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/dps-crimelog/internal/model"
)

// SheetName is the worksheet written by ExportXLSX.
const SheetName = "Incidents"

// ExportXLSX writes records to an XLSX workbook with a header row.
func ExportXLSX(path string, records []model.Record) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "archive: add xlsx sheet")
	}

	addRow(sheet, model.Columns)
	for _, r := range records {
		addRow(sheet, r.Values())
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "archive: save xlsx %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
