package resolve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/config"
	"github.com/David-Botos/survey-ingress/pkg/store"
)

// fakeTable assigns sequential ids above its current maximum, skipping rows
// whose first value it has already stored.
type fakeTable struct {
	max    int64
	stored map[interface{}]bool
	err    error
	gap    bool
}

func newFakeTable(max int64) *fakeTable {
	return &fakeTable{max: max, stored: map[interface{}]bool{}}
}

func (f *fakeTable) accept(rows [][]interface{}) []int64 {
	var ids []int64
	for _, row := range rows {
		if f.stored[row[0]] {
			continue
		}
		f.stored[row[0]] = true
		f.max++
		if f.gap && len(ids) == 1 {
			f.max++
		}
		ids = append(ids, f.max)
	}
	return ids
}

func (f *fakeTable) InsertReturning(_ context.Context, table, _ string, _ []string, rows [][]interface{}) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	before := f.max
	ids := f.accept(rows)
	if len(ids) != len(rows) {
		f.max = before
		return nil, fmt.Errorf("%s: %w", table, store.ErrRowsSkipped)
	}
	return ids, nil
}

func (f *fakeTable) InsertAfterHighWater(_ context.Context, table, _ string, _ []string, rows [][]interface{}) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	highWater := f.max
	ids := f.accept(rows)
	if len(ids) != len(rows) {
		f.max = highWater
		return 0, fmt.Errorf("%s: %w", table, store.ErrRowsSkipped)
	}
	if ids[len(ids)-1]-ids[0]+1 != int64(len(ids)) {
		f.max = highWater
		return 0, fmt.Errorf("%s: %w", table, store.ErrIDBlockNotContiguous)
	}
	return ids[0], nil
}

func rowsFor(keys ...string) [][]interface{} {
	rows := make([][]interface{}, len(keys))
	for i, k := range keys {
		rows[i] = []interface{}{k}
	}
	return rows
}

func newResolver(t *testing.T, ins Inserter, strategy string) *Resolver {
	t.Helper()
	r, err := New(ins, strategy, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestNew_RejectsUnknownStrategy(t *testing.T) {
	_, err := New(newFakeTable(0), "guess", zap.NewNop())
	assert.Error(t, err)
	_, err = New(nil, config.ResolveReturning, zap.NewNop())
	assert.Error(t, err)
}

func TestInsertAndResolve_BijectionAboveHighWater(t *testing.T) {
	for _, strategy := range []string{config.ResolveReturning, config.ResolveHighWater} {
		t.Run(strategy, func(t *testing.T) {
			const highWater = 17
			r := newResolver(t, newFakeTable(highWater), strategy)

			n := 25
			tmpIDs := make([]int, n)
			keys := make([]string, n)
			for i := range tmpIDs {
				tmpIDs[i] = i + 1
				keys[i] = fmt.Sprintf("household-%d", i)
			}

			m, err := r.InsertAndResolve(context.Background(), "familia", "id_familia", []string{"k"}, tmpIDs, rowsFor(keys...))
			require.NoError(t, err)
			require.Len(t, m, n)

			image := make(map[int64]bool)
			for tmp := 1; tmp <= n; tmp++ {
				id, ok := m.Lookup(tmp)
				require.True(t, ok)
				assert.Equal(t, int64(highWater+tmp), id)
				image[id] = true
			}
			assert.Len(t, image, n)
		})
	}
}

func TestInsertAndResolve_ConflictSkipIsMisaligned(t *testing.T) {
	for _, strategy := range []string{config.ResolveReturning, config.ResolveHighWater} {
		t.Run(strategy, func(t *testing.T) {
			table := newFakeTable(0)
			table.stored["b"] = true
			r := newResolver(t, table, strategy)

			_, err := r.InsertAndResolve(context.Background(), "familia", "id_familia", []string{"k"},
				[]int{1, 2, 3}, rowsFor("a", "b", "c"))
			assert.ErrorIs(t, err, ErrResolutionMisaligned)
			assert.ErrorIs(t, err, store.ErrRowsSkipped)
		})
	}
}

func TestInsertAndResolve_GapIsMisaligned(t *testing.T) {
	table := newFakeTable(0)
	table.gap = true
	r := newResolver(t, table, config.ResolveHighWater)

	_, err := r.InsertAndResolve(context.Background(), "pessoa", "id_pessoa", []string{"k"},
		[]int{1, 2, 3}, rowsFor("a", "b", "c"))
	assert.ErrorIs(t, err, ErrResolutionMisaligned)
	assert.ErrorIs(t, err, store.ErrIDBlockNotContiguous)
}

func TestInsertAndResolve_StoreErrorPassesThrough(t *testing.T) {
	table := newFakeTable(0)
	table.err = errors.New("connection reset")
	r := newResolver(t, table, config.ResolveReturning)

	_, err := r.InsertAndResolve(context.Background(), "pessoa", "id_pessoa", []string{"k"}, []int{1}, rowsFor("a"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrResolutionMisaligned)
}

func TestInsertAndResolve_InputChecks(t *testing.T) {
	r := newResolver(t, newFakeTable(0), config.ResolveReturning)

	_, err := r.InsertAndResolve(context.Background(), "pessoa", "id_pessoa", []string{"k"}, []int{1, 2}, rowsFor("a"))
	assert.Error(t, err)

	_, err = r.InsertAndResolve(context.Background(), "pessoa", "id_pessoa", []string{"k"}, []int{1, 1}, rowsFor("a", "b"))
	assert.Error(t, err)

	m, err := r.InsertAndResolve(context.Background(), "pessoa", "id_pessoa", []string{"k"}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestPositional_FirstAppearanceRank(t *testing.T) {
	m := Positional([]int{3, 1, 3, 2, 1}, 100)
	assert.Equal(t, IDMap{3: 101, 1: 102, 2: 103}, m)
}

func TestFromReturned(t *testing.T) {
	m, err := FromReturned([]int{2, 1}, []int64{50, 51})
	require.NoError(t, err)
	assert.Equal(t, IDMap{2: 50, 1: 51}, m)

	_, err = FromReturned([]int{1, 2}, []int64{50})
	assert.ErrorIs(t, err, ErrResolutionMisaligned)

	_, err = FromReturned([]int{1, 2}, []int64{50, 50})
	assert.ErrorIs(t, err, ErrResolutionMisaligned)
}

func TestFromReturned_OutOfOrderIDs(t *testing.T) {
	// gaps are fine, a descending pair means the rows came back reordered
	m, err := FromReturned([]int{1, 2, 3}, []int64{10, 12, 40})
	require.NoError(t, err)
	assert.Equal(t, IDMap{1: 10, 2: 12, 3: 40}, m)

	_, err = FromReturned([]int{1, 2, 3}, []int64{10, 40, 12})
	require.ErrorIs(t, err, ErrResolutionMisaligned)
	assert.Contains(t, err.Error(), "store id 12 returned after 40")
}
