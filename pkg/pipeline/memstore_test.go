package pipeline

import (
	"context"
	"fmt"

	"github.com/David-Botos/survey-ingress/pkg/model"
	"github.com/David-Botos/survey-ingress/pkg/store"
)

// memTable is an in-memory table with an optional generated id column and
// an optional unique column
type memTable struct {
	meta   model.TableMetadata
	unique string
	rows   []map[string]interface{}
	nextID int64
}

// memStore is an in-memory Store over the table catalog
type memStore struct {
	tables   map[string]*memTable
	cleaning []model.CleaningOperation
	ensured  bool

	// failure injection
	failInsert map[string]error
	dropRows   map[string]int // table -> rows silently skipped per Insert
	conflict   map[string]int // table -> rows rejected on conflict per id-returning insert
}

func newMemStore() *memStore {
	s := &memStore{
		tables:     make(map[string]*memTable),
		failInsert: make(map[string]error),
		dropRows:   make(map[string]int),
		conflict:   make(map[string]int),
	}
	for _, meta := range append([]model.TableMetadata{model.RegionTable, model.IndicatorTable}, model.FactTables...) {
		s.tables[meta.Table] = &memTable{meta: meta, nextID: 1}
	}
	s.tables[model.RegionTable.Table].unique = "nome_regiao"
	s.tables[model.IndicatorTable.Table].unique = "id_regiao"
	return s
}

func (s *memStore) table(name string) *memTable {
	t, ok := s.tables[name]
	if !ok {
		panic("unknown table " + name)
	}
	return t
}

// rows returns the stored rows of a table
func (s *memStore) rows(name string) []map[string]interface{} {
	return s.table(name).rows
}

// seed appends a row as if an earlier run had written it
func (s *memStore) seed(name string, values map[string]interface{}) {
	t := s.table(name)
	if t.meta.HasIDColumn() {
		values[t.meta.IDColumn] = t.nextID
		t.nextID++
	}
	t.rows = append(t.rows, values)
}

func (t *memTable) accept(columns []string, rows [][]interface{}, skip int) []int64 {
	var ids []int64
	for i, row := range rows {
		if i < skip {
			continue
		}
		values := make(map[string]interface{}, len(columns)+1)
		for j, col := range columns {
			values[col] = row[j]
		}
		if t.unique != "" && t.has(t.unique, values[t.unique]) {
			continue
		}
		if t.meta.HasIDColumn() {
			values[t.meta.IDColumn] = t.nextID
			ids = append(ids, t.nextID)
			t.nextID++
		} else {
			ids = append(ids, 0)
		}
		t.rows = append(t.rows, values)
	}
	return ids
}

func (t *memTable) has(column string, value interface{}) bool {
	for _, r := range t.rows {
		if fmt.Sprint(r[column]) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}

func (s *memStore) Insert(_ context.Context, table string, columns []string, rows [][]interface{}) (int64, error) {
	if err := s.failInsert[table]; err != nil {
		return 0, err
	}
	ids := s.table(table).accept(columns, rows, s.dropRows[table])
	return int64(len(ids)), nil
}

func (s *memStore) InsertReturning(_ context.Context, table, _ string, columns []string, rows [][]interface{}) ([]int64, error) {
	if err := s.failInsert[table]; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	t := s.table(table)
	before := len(t.rows)
	ids := t.accept(columns, rows, s.conflict[table])
	if len(ids) != len(rows) {
		t.rows = t.rows[:before]
		return nil, fmt.Errorf("insert into %s: %w", table, store.ErrRowsSkipped)
	}
	return ids, nil
}

func (s *memStore) InsertAfterHighWater(_ context.Context, table, _ string, columns []string, rows [][]interface{}) (int64, error) {
	if err := s.failInsert[table]; err != nil {
		return 0, err
	}
	t := s.table(table)
	before := len(t.rows)
	ids := t.accept(columns, rows, s.conflict[table])
	if len(ids) != len(rows) {
		t.rows = t.rows[:before]
		return 0, fmt.Errorf("insert into %s: %w", table, store.ErrRowsSkipped)
	}
	return ids[0], nil
}

func (s *memStore) IDMap(_ context.Context, table, naturalColumn, idColumn string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, r := range s.table(table).rows {
		out[fmt.Sprint(r[naturalColumn])] = r[idColumn].(int64)
	}
	return out, nil
}

func (s *memStore) Count(_ context.Context, table string) (int64, error) {
	return int64(len(s.table(table).rows)), nil
}

func (s *memStore) CountOrphans(_ context.Context, child, fk, parent, parentID string) (int64, error) {
	p := s.table(parent)
	var n int64
	for _, r := range s.table(child).rows {
		if !p.has(parentID, r[fk]) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) EnsureCleaningTable(context.Context) error {
	s.ensured = true
	return nil
}

func (s *memStore) RecordCleaningOperations(_ context.Context, ops []model.CleaningOperation) error {
	s.cleaning = append(s.cleaning, ops...)
	return nil
}
