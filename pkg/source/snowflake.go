// pkg/source/snowflake.go
package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/David-Botos/survey-ingress/pkg/model"
)

const snowflakeScheme = "snowflake://"

// TableQuerier streams the rows of a warehouse table
type TableQuerier interface {
	QueryTable(ctx context.Context, schema, table, orderBy string,
		processor func(columns, types []string, values []interface{}) error) error
}

// parseSnowflakeLocation splits snowflake://SCHEMA.TABLE[?order_by=COLUMN]
func parseSnowflakeLocation(location string) (schema, table, orderBy string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid Snowflake location %q: %w", location, err)
	}

	schema, table, ok := strings.Cut(u.Host, ".")
	if !ok || schema == "" || table == "" {
		return "", "", "", fmt.Errorf("invalid Snowflake location %q, want snowflake://SCHEMA.TABLE", location)
	}
	return schema, table, u.Query().Get("order_by"), nil
}

func (l *Loader) loadSnowflake(ctx context.Context, location string) ([]model.RawRecord, error) {
	schema, table, orderBy, err := parseSnowflakeLocation(location)
	if err != nil {
		return nil, err
	}
	if l.snowflake == nil {
		return nil, fmt.Errorf("no Snowflake connection configured")
	}

	querier, err := l.snowflake(ctx)
	if err != nil {
		return nil, err
	}

	var records []model.RawRecord
	err = querier.QueryTable(ctx, schema, table, orderBy, func(columns, types []string, values []interface{}) error {
		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			fields[strings.ToLower(strings.TrimSpace(col))] = ToText(values[i], isNumericType(types[i]))
		}
		records = append(records, model.RawRecord{Line: len(records) + 1, Fields: fields})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// isNumericType reports whether a Snowflake column holds numbers
func isNumericType(name string) bool {
	switch strings.ToUpper(name) {
	case "FIXED", "REAL", "NUMBER", "DECIMAL", "NUMERIC", "FLOAT", "DOUBLE":
		return true
	}
	return false
}
