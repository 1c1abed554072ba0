// Package resolve inserts entities that carry temporary ids and learns the
// ids the store assigned to them.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/config"
	"github.com/David-Botos/survey-ingress/pkg/store"
)

// ErrResolutionMisaligned means the temporary → store id mapping could not
// be established exactly; the insert has been rolled back.
var ErrResolutionMisaligned = errors.New("identifier resolution misaligned")

// Inserter is the part of the store the resolver needs
type Inserter interface {
	InsertReturning(ctx context.Context, table, idColumn string, columns []string, rows [][]interface{}) ([]int64, error)
	InsertAfterHighWater(ctx context.Context, table, idColumn string, columns []string, rows [][]interface{}) (int64, error)
}

// IDMap maps temporary ids to store-assigned ids
type IDMap map[int]int64

// Lookup returns the store id for a temporary id
func (m IDMap) Lookup(tmpID int) (int64, bool) {
	id, ok := m[tmpID]
	return id, ok
}

// Resolver inserts rows and maps their temporary ids to store ids
type Resolver struct {
	inserter Inserter
	strategy string
	logger   *zap.Logger
}

// New creates a Resolver using config.ResolveReturning or
// config.ResolveHighWater
func New(inserter Inserter, strategy string, logger *zap.Logger) (*Resolver, error) {
	if inserter == nil {
		return nil, errors.New("inserter cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	switch strategy {
	case config.ResolveReturning, config.ResolveHighWater:
	default:
		return nil, fmt.Errorf("unknown resolve strategy %q", strategy)
	}

	return &Resolver{inserter: inserter, strategy: strategy, logger: logger}, nil
}

// InsertAndResolve inserts rows[i] for entity tmpIDs[i] and returns a total
// map from every temporary id to the id the store assigned to its row.
// Temporary ids must be distinct: one row per entity.
func (r *Resolver) InsertAndResolve(
	ctx context.Context,
	table, idColumn string,
	columns []string,
	tmpIDs []int,
	rows [][]interface{},
) (IDMap, error) {
	if len(tmpIDs) != len(rows) {
		return nil, fmt.Errorf("%s: %d temporary ids for %d rows", table, len(tmpIDs), len(rows))
	}
	if dup, ok := firstDuplicate(tmpIDs); ok {
		return nil, fmt.Errorf("%s: temporary id %d presented twice", table, dup)
	}
	if len(rows) == 0 {
		return IDMap{}, nil
	}

	var (
		m   IDMap
		err error
	)

	switch r.strategy {
	case config.ResolveHighWater:
		var first int64
		first, err = r.inserter.InsertAfterHighWater(ctx, table, idColumn, columns, rows)
		if err == nil {
			m = Positional(tmpIDs, first-1)
		}
	default:
		var ids []int64
		ids, err = r.inserter.InsertReturning(ctx, table, idColumn, columns, rows)
		if err == nil {
			m, err = FromReturned(tmpIDs, ids)
		}
	}

	if err != nil {
		if errors.Is(err, store.ErrRowsSkipped) || errors.Is(err, store.ErrIDBlockNotContiguous) {
			return nil, fmt.Errorf("%w: %w", ErrResolutionMisaligned, err)
		}
		return nil, err
	}

	if len(m) != len(tmpIDs) {
		return nil, fmt.Errorf("%w: %s resolved %d of %d temporary ids",
			ErrResolutionMisaligned, table, len(m), len(tmpIDs))
	}

	r.logger.Info("Resolved identifiers",
		zap.String("table", table),
		zap.String("strategy", r.strategy),
		zap.Int("entities", len(m)))

	return m, nil
}

// Positional maps each temporary id to highWater + the 1-based rank of its
// first appearance in tmpIDs
func Positional(tmpIDs []int, highWater int64) IDMap {
	m := make(IDMap, len(tmpIDs))
	var pos int64
	for _, tmp := range tmpIDs {
		if _, seen := m[tmp]; seen {
			continue
		}
		pos++
		m[tmp] = highWater + pos
	}
	return m
}

// FromReturned pairs temporary ids with ids returned by the store in
// presentation order. The sequence hands out ids in the order the VALUES
// rows are evaluated, so returned ids must be strictly ascending; anything
// else means RETURNING did not follow presentation order.
func FromReturned(tmpIDs []int, ids []int64) (IDMap, error) {
	if len(ids) != len(tmpIDs) {
		return nil, fmt.Errorf("%w: store returned %d ids for %d rows",
			ErrResolutionMisaligned, len(ids), len(tmpIDs))
	}

	m := make(IDMap, len(tmpIDs))
	for i, tmp := range tmpIDs {
		if i > 0 && ids[i] <= ids[i-1] {
			return nil, fmt.Errorf("%w: store id %d returned after %d",
				ErrResolutionMisaligned, ids[i], ids[i-1])
		}
		m[tmp] = ids[i]
	}
	return m, nil
}

func firstDuplicate(ids []int) (int, bool) {
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return id, true
		}
		seen[id] = true
	}
	return 0, false
}
