// pkg/model/metadata.go
package model

import (
	"errors"
	"fmt"
)

// ErrNullRequired is returned when a row has NULL in a required column
var ErrNullRequired = errors.New("null value in required column")

// TableMetadata describes a target table in insert order
type TableMetadata struct {
	Table    string   // Table name, unqualified
	IDColumn string   // Store-assigned surrogate id column; empty if none
	Columns  []Column // Insert columns, in the order rows are built
}

// Column represents metadata about a target column
type Column struct {
	Name     string
	Nullable bool
}

// ColumnNames returns the insert column names in order
func (tm *TableMetadata) ColumnNames() []string {
	names := make([]string, len(tm.Columns))
	for i, col := range tm.Columns {
		names[i] = col.Name
	}
	return names
}

// HasIDColumn reports whether the store assigns ids for this table
func (tm *TableMetadata) HasIDColumn() bool {
	return tm.IDColumn != ""
}

// ValidateRow checks that row matches the column list and carries a value
// for every required column
func (tm *TableMetadata) ValidateRow(row []interface{}) error {
	if len(row) != len(tm.Columns) {
		return fmt.Errorf("%s: row has %d values for %d columns", tm.Table, len(row), len(tm.Columns))
	}
	for i, col := range tm.Columns {
		if !col.Nullable && row[i] == nil {
			return fmt.Errorf("%w: %s.%s", ErrNullRequired, tm.Table, col.Name)
		}
	}
	return nil
}

func required(name string) Column { return Column{Name: name} }
func nullable(name string) Column { return Column{Name: name, Nullable: true} }
