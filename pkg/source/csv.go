// pkg/source/csv.go
package source

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/David-Botos/survey-ingress/pkg/model"
)

// ReadDelimited reads delimited text with a header row
func ReadDelimited(r io.Reader, separator rune) ([]model.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = separator
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}

	return buildRecords(header, rows)
}
