// pkg/source/xlsx.go
package source

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/David-Botos/survey-ingress/pkg/model"
)

// ReadWorkbook reads the first sheet of an XLSX workbook. The first row is
// the header.
func ReadWorkbook(r io.Reader) ([]model.RawRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return readFirstSheet(f)
}

func readWorkbookFile(location string) ([]model.RawRecord, error) {
	f, err := excelize.OpenFile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return readFirstSheet(f)
}

func readFirstSheet(f *excelize.File) ([]model.RawRecord, error) {
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return buildRecords(rows[0], rows[1:])
}
