// pkg/model/cleaning.go
package model

import (
	"time"
)

// CleaningOperation represents a single data cleaning operation
type CleaningOperation struct {
	RunID             string      // Load run that performed the cleaning
	TableName         string      // Target table the value was destined for
	ColumnName        string      // Column that was cleaned
	OriginalValue     interface{} // Original value (may be nil)
	NewValue          interface{} // New value after cleaning (nil when stored as NULL)
	RowIdentifier     string      // Source position, e.g. "survey:12"
	CleaningOperation string      // Type of cleaning performed (e.g., "boolean_coding")
	CleaningReason    string      // Reason for cleaning (e.g., "unrecognized_token")
	CleanedAt         time.Time   // When the cleaning occurred (set by database)
}

// CleaningContext identifies the value being cleaned
type CleaningContext struct {
	TableName     string
	ColumnName    string
	RowIdentifier string
}

// Operation builds a CleaningOperation for this context
func (c CleaningContext) Operation(original, cleaned interface{}, operation, reason string) CleaningOperation {
	return CleaningOperation{
		TableName:         c.TableName,
		ColumnName:        c.ColumnName,
		OriginalValue:     original,
		NewValue:          cleaned,
		RowIdentifier:     c.RowIdentifier,
		CleaningOperation: operation,
		CleaningReason:    reason,
	}
}
