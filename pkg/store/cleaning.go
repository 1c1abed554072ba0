// pkg/store/cleaning.go
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/model"
)

// EnsureCleaningTable ensures the cleaned_on_ingress tracking table exists
// in the target schema
func (s *Store) EnsureCleaningTable(ctx context.Context) error {
	createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL,
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			original_value TEXT,
			new_value TEXT,
			row_identifier TEXT NOT NULL,
			cleaning_operation TEXT NOT NULL,
			cleaning_reason TEXT NOT NULL,
			cleaned_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`, s.qualified(model.CleaningTable.Table))

	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create tracking table: %w", err)
	}

	s.logger.Debug("Ensured cleaned_on_ingress table exists", zap.String("schema", s.schema))
	return nil
}

// RecordCleaningOperations batch inserts cleaning operations into the
// tracking table
func (s *Store) RecordCleaningOperations(ctx context.Context, operations []model.CleaningOperation) error {
	if len(operations) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(operations))
	for i, op := range operations {
		rows[i] = []interface{}{
			op.RunID,
			op.TableName,
			op.ColumnName,
			toNullableString(op.OriginalValue),
			toNullableString(op.NewValue),
			op.RowIdentifier,
			op.CleaningOperation,
			op.CleaningReason,
		}
	}

	if _, err := s.Insert(ctx, model.CleaningTable.Table, model.CleaningTable.ColumnNames(), rows); err != nil {
		return fmt.Errorf("failed to record cleaning operations: %w", err)
	}

	s.logger.Info("Recorded cleaning operations", zap.Int("count", len(operations)))
	return nil
}

// toNullableString converts a value to its text form, keeping nil as NULL
func toNullableString(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
