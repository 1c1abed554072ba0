// pkg/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// maxParams is PostgreSQL's bind parameter limit per statement
const maxParams = 65535

var (
	// ErrRowsSkipped means the store accepted fewer rows than were presented
	ErrRowsSkipped = errors.New("rows skipped on conflict")

	// ErrIDBlockNotContiguous means the ids generated by an insert do not form
	// one dense block
	ErrIDBlockNotContiguous = errors.New("generated ids are not contiguous")
)

// Store is the explicit handle every load stage writes through. All names
// are quoted and qualified with the target schema.
type Store struct {
	db        *sqlx.DB
	schema    string
	batchSize int
	logger    *zap.Logger
}

// New creates a Store over an open database handle
func New(db *sqlx.DB, schema string, batchSize int, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if schema == "" {
		return nil, errors.New("schema cannot be empty")
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	return &Store{
		db:        db,
		schema:    schema,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Insert writes rows with INSERT ... ON CONFLICT DO NOTHING in statements
// of at most the configured batch size, all in one transaction. Rows are
// sent in the order given. It returns the number of rows the store accepted.
func (s *Store) Insert(ctx context.Context, table string, columns []string, rows [][]interface{}) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := checkWidth(columns, rows); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}

	var inserted int64
	err := s.withTx(ctx, table, func(tx *sqlx.Tx) error {
		n, err := s.insertChunks(ctx, tx, table, columns, rows)
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Inserted rows",
		zap.String("table", table),
		zap.Int("presented", len(rows)),
		zap.Int64("inserted", inserted))

	return inserted, nil
}

// InsertReturning inserts rows like Insert and returns the generated ids in
// presentation order. If any row is skipped on conflict the transaction is
// rolled back and ErrRowsSkipped is returned.
func (s *Store) InsertReturning(
	ctx context.Context,
	table, idColumn string,
	columns []string,
	rows [][]interface{},
) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if err := checkWidth(columns, rows); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}

	ids := make([]int64, 0, len(rows))
	err := s.withTx(ctx, table, func(tx *sqlx.Tx) error {
		suffix := " RETURNING " + pq.QuoteIdentifier(idColumn)
		for _, chunk := range s.chunks(columns, rows) {
			query, args := s.buildInsert(table, columns, chunk, suffix)

			var chunkIDs []int64
			if err := tx.SelectContext(ctx, &chunkIDs, query, args...); err != nil {
				return fmt.Errorf("insert into %s failed: %w", table, err)
			}
			ids = append(ids, chunkIDs...)

			s.logger.Debug("Inserted chunk",
				zap.String("table", table),
				zap.Int("rows", len(chunk)),
				zap.Int("returned", len(chunkIDs)))
		}

		if len(ids) != len(rows) {
			return fmt.Errorf("%s: %w (presented %d, accepted %d)", table, ErrRowsSkipped, len(rows), len(ids))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Inserted rows with returned ids",
		zap.String("table", table),
		zap.Int("rows", len(ids)))

	return ids, nil
}

// InsertAfterHighWater inserts rows while holding a lock that keeps other
// writers out, and returns the first id of the block they received. The
// highest existing id is read before the insert; afterwards exactly
// len(rows) ids must exist above it and form one contiguous block.
func (s *Store) InsertAfterHighWater(
	ctx context.Context,
	table, idColumn string,
	columns []string,
	rows [][]interface{},
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := checkWidth(columns, rows); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}

	qTable := s.qualified(table)
	qID := pq.QuoteIdentifier(idColumn)
	n := int64(len(rows))

	var first, highWater int64
	err := s.withTx(ctx, table, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", qTable)); err != nil {
			return fmt.Errorf("failed to lock %s: %w", table, err)
		}

		if err := tx.GetContext(ctx, &highWater,
			fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", qID, qTable)); err != nil {
			return fmt.Errorf("failed to read high-water mark of %s: %w", table, err)
		}

		inserted, err := s.insertChunks(ctx, tx, table, columns, rows)
		if err != nil {
			return err
		}
		if inserted != n {
			return fmt.Errorf("%s: %w (presented %d, accepted %d)", table, ErrRowsSkipped, n, inserted)
		}

		var block struct {
			Count int64 `db:"count"`
			Min   int64 `db:"min"`
			Max   int64 `db:"max"`
		}
		err = tx.GetContext(ctx, &block, fmt.Sprintf(
			"SELECT COUNT(*) AS count, COALESCE(MIN(%[1]s), 0) AS min, COALESCE(MAX(%[1]s), 0) AS max FROM %[2]s WHERE %[1]s > $1",
			qID, qTable), highWater)
		if err != nil {
			return fmt.Errorf("failed to read id block of %s: %w", table, err)
		}

		if block.Count != n || block.Max-block.Min+1 != n {
			return fmt.Errorf("%s: %w (expected %d ids above %d, found %d in [%d, %d])",
				table, ErrIDBlockNotContiguous, n, highWater, block.Count, block.Min, block.Max)
		}

		first = block.Min
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Inserted rows after high-water mark",
		zap.String("table", table),
		zap.Int64("high_water", highWater),
		zap.Int64("first_id", first),
		zap.Int64("rows", n))

	return first, nil
}

// IDMap returns natural key → id for every row of table. Natural keys are
// compared as text.
func (s *Store) IDMap(ctx context.Context, table, naturalColumn, idColumn string) (map[string]int64, error) {
	var pairs []struct {
		Key string `db:"natural_key"`
		ID  int64  `db:"id"`
	}

	query := fmt.Sprintf("SELECT %s::text AS natural_key, %s AS id FROM %s",
		pq.QuoteIdentifier(naturalColumn), pq.QuoteIdentifier(idColumn), s.qualified(table))
	if err := s.db.SelectContext(ctx, &pairs, query); err != nil {
		return nil, fmt.Errorf("failed to read id map of %s: %w", table, err)
	}

	out := make(map[string]int64, len(pairs))
	for _, p := range pairs {
		out[p.Key] = p.ID
	}
	return out, nil
}

// Count returns the number of rows in table
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+s.qualified(table)); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// CountOrphans returns the number of child rows whose foreign key matches
// no parent row
func (s *Store) CountOrphans(ctx context.Context, child, fk, parent, parentID string) (int64, error) {
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s WHERE p.%s IS NULL",
		s.qualified(child), s.qualified(parent),
		pq.QuoteIdentifier(fk), pq.QuoteIdentifier(parentID), pq.QuoteIdentifier(parentID))

	var n int64
	if err := s.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("failed to count orphans of %s: %w", child, err)
	}
	return n, nil
}

// withTx runs fn in a transaction, rolling back when fn fails
func (s *Store) withTx(ctx context.Context, table string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", table, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction",
					zap.String("table", table),
					zap.NamedError("rollback_error", rbErr),
					zap.Error(err))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}
	return nil
}

func (s *Store) insertChunks(ctx context.Context, tx *sqlx.Tx, table string, columns []string, rows [][]interface{}) (int64, error) {
	var total int64
	for _, chunk := range s.chunks(columns, rows) {
		query, args := s.buildInsert(table, columns, chunk, "")

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s failed: %w", table, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to read rows affected for %s: %w", table, err)
		}
		total += affected

		s.logger.Debug("Inserted chunk",
			zap.String("table", table),
			zap.Int("rows", len(chunk)),
			zap.Int64("affected", affected))
	}
	return total, nil
}

// chunks splits rows into batches, shrinking the batch when needed to stay
// under the bind parameter limit
func (s *Store) chunks(columns []string, rows [][]interface{}) [][][]interface{} {
	size := s.batchSize
	if limit := maxParams / len(columns); size > limit {
		size = limit
	}

	out := make([][][]interface{}, 0, (len(rows)+size-1)/size)
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[i:end])
	}
	return out
}

// buildInsert builds a multi-row insert for one chunk
func (s *Store) buildInsert(table string, columns []string, rows [][]interface{}, suffix string) (string, []interface{}) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}

	placeholders := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*len(columns))

	for j, row := range rows {
		rowPlaceholders := make([]string, len(columns))
		for k, val := range row {
			rowPlaceholders[k] = fmt.Sprintf("$%d", j*len(columns)+k+1)
			args = append(args, val)
		}
		placeholders[j] = "(" + strings.Join(rowPlaceholders, ", ") + ")"
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING%s",
		s.qualified(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "), suffix)
	return query, args
}

func (s *Store) qualified(table string) string {
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(table)
}

func checkWidth(columns []string, rows [][]interface{}) error {
	if len(columns) == 0 {
		return errors.New("no columns given")
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
	}
	return nil
}
