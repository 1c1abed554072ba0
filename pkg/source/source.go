// Package source reads the raw datasets. A location is a local path, an
// s3://bucket/key object or a snowflake://SCHEMA.TABLE table. Paths and keys
// ending in .xlsx are read as workbooks (first sheet); everything else is
// delimited text.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/model"
)

// ErrDuplicateHeader is returned when two columns share a trimmed name
var ErrDuplicateHeader = errors.New("duplicate column header")

// Loader reads datasets from any supported location
type Loader struct {
	separator rune
	logger    *zap.Logger
	s3        ObjectGetter
	newS3     func(ctx context.Context) (ObjectGetter, error)
	snowflake func(ctx context.Context) (TableQuerier, error)
}

// Option configures a Loader
type Option func(*Loader)

// WithObjectGetter uses the given client for s3:// locations
func WithObjectGetter(c ObjectGetter) Option {
	return func(l *Loader) { l.s3 = c }
}

// WithS3Factory builds the S3 client on first use
func WithS3Factory(f func(ctx context.Context) (ObjectGetter, error)) Option {
	return func(l *Loader) { l.newS3 = f }
}

// WithSnowflake opens the Snowflake connection for snowflake:// locations
func WithSnowflake(f func(ctx context.Context) (TableQuerier, error)) Option {
	return func(l *Loader) { l.snowflake = f }
}

// NewLoader creates a Loader for delimited text using separator
func NewLoader(separator rune, logger *zap.Logger, opts ...Option) *Loader {
	l := &Loader{separator: separator, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every record at location in source order
func (l *Loader) Load(ctx context.Context, location string) ([]model.RawRecord, error) {
	var (
		records []model.RawRecord
		err     error
	)

	switch {
	case strings.HasPrefix(location, snowflakeScheme):
		records, err = l.loadSnowflake(ctx, location)
	case strings.HasPrefix(location, s3Scheme):
		records, err = l.loadS3(ctx, location)
	case isWorkbook(location):
		records, err = readWorkbookFile(location)
	default:
		records, err = l.loadFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", location, err)
	}

	l.logger.Info("Loaded dataset",
		zap.String("location", location),
		zap.Int("records", len(records)))

	return records, nil
}

func (l *Loader) loadFile(location string) ([]model.RawRecord, error) {
	f, err := os.Open(location)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadDelimited(f, l.separator)
}

func (l *Loader) parseBytes(name string, data []byte) ([]model.RawRecord, error) {
	if isWorkbook(name) {
		return ReadWorkbook(bytes.NewReader(data))
	}
	return ReadDelimited(bytes.NewReader(data), l.separator)
}

func isWorkbook(location string) bool {
	return strings.EqualFold(path.Ext(location), ".xlsx")
}

// buildRecords pairs each row with the trimmed header. Short rows are
// padded with empty values.
func buildRecords(header []string, rows [][]string) ([]model.RawRecord, error) {
	names := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name != "" && seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHeader, name)
		}
		seen[name] = true
		names[i] = name
	}

	records := make([]model.RawRecord, 0, len(rows))
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		if len(row) > len(names) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", i+1, len(row), len(names))
		}

		fields := make(map[string]string, len(names))
		for j, name := range names {
			if name == "" {
				continue
			}
			if j < len(row) {
				fields[name] = row[j]
			} else {
				fields[name] = ""
			}
		}
		records = append(records, model.RawRecord{Line: i + 1, Fields: fields})
	}
	return records, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
