// Package report runs SQL files against the target store and prints each
// result as a table.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// RegionColumn is the column a region prefix filter applies to
const RegionColumn = "id_regiao"

const nullValue = "NULL"

// Querier is the part of *sqlx.DB a report needs
type Querier interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

// Result is the materialized result of one query
type Result struct {
	Columns []string
	Rows    [][]interface{}
}

// Runner executes report queries
type Runner struct {
	db           Querier
	out          io.Writer
	regionPrefix string
	logger       *zap.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithRegionPrefix keeps only rows whose id_regiao starts with prefix, for
// results that carry that column
func WithRegionPrefix(prefix string) Option {
	return func(r *Runner) {
		r.regionPrefix = prefix
	}
}

// NewRunner creates a runner writing tables to out
func NewRunner(db Querier, out io.Writer, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	r := &Runner{db: db, out: out, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunFiles runs each file in order and stops at the first failure
func (r *Runner) RunFiles(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if err := r.RunFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// RunFile runs the query in path and writes its result
func (r *Runner) RunFile(ctx context.Context, path string) error {
	query, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read query file: %w", err)
	}

	res, err := r.Query(ctx, string(query))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if r.regionPrefix != "" {
		res = res.FilterPrefix(RegionColumn, r.regionPrefix)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if _, err := fmt.Fprintf(r.out, "\n--- %s (%s) ---\n", name, path); err != nil {
		return err
	}
	res.Write(r.out)

	r.logger.Info("Report query completed",
		zap.String("file", path),
		zap.Int("rows", len(res.Rows)))

	return nil
}

// Query runs a query and materializes its rows
func (r *Runner) Query(ctx context.Context, query string) (*Result, error) {
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	res := &Result{Columns: columns}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return res, nil
}

// FilterPrefix returns the rows whose column value, as text, starts with
// prefix. A result without the column is returned unchanged.
func (res *Result) FilterPrefix(column, prefix string) *Result {
	idx := -1
	for i, c := range res.Columns {
		if c == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return res
	}

	out := &Result{Columns: res.Columns}
	for _, row := range res.Rows {
		if row[idx] != nil && strings.HasPrefix(fmt.Sprint(row[idx]), prefix) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Write renders the result as a table
func (res *Result) Write(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	// Don't uppercase the header values.
	t.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, row := range res.Rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			// go-pretty doesn't expect nil values.
			if v == nil {
				v = nullValue
			}
			out[i] = v
		}
		t.AppendRow(out)
	}
	t.Render()
}
