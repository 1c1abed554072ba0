package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/model"
)

func newMockStore(t *testing.T, batchSize int) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(sqlx.NewDb(db, "pgx"), "ods", batchSize, zap.NewNop())
	require.NoError(t, err)
	return s, mock
}

func TestNew_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	xdb := sqlx.NewDb(db, "pgx")

	_, err = New(nil, "ods", 10, zap.NewNop())
	assert.Error(t, err)
	_, err = New(xdb, "ods", 10, nil)
	assert.Error(t, err)
	_, err = New(xdb, "", 10, zap.NewNop())
	assert.Error(t, err)

	s, err := New(xdb, "ods", 0, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 500, s.batchSize)
}

func TestInsert_ChunksInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t, 2)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO "ods"."pessoa" ("id_familia", "sexo") VALUES ($1, $2), ($3, $4) ON CONFLICT DO NOTHING`)).
		WithArgs(1, "M", 1, "F").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO "ods"."pessoa" ("id_familia", "sexo") VALUES ($1, $2) ON CONFLICT DO NOTHING`)).
		WithArgs(2, "O").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := s.Insert(context.Background(), "pessoa", []string{"id_familia", "sexo"}, [][]interface{}{
		{1, "M"},
		{1, "F"},
		{2, "O"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_EmptyIsNoop(t *testing.T) {
	s, mock := newMockStore(t, 2)

	n, err := s.Insert(context.Background(), "pessoa", []string{"id_familia"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_ConflictSkipsAreCounted(t *testing.T) {
	s, mock := newMockStore(t, 10)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ods"."regiao" ("nome_regiao") VALUES ($1), ($2) ON CONFLICT DO NOTHING`)).
		WithArgs("Norte", "Sul").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := s.Insert(context.Background(), "regiao", []string{"nome_regiao"}, [][]interface{}{{"Norte"}, {"Sul"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_ErrorRollsBack(t *testing.T) {
	s, mock := newMockStore(t, 10)
	pgErr := &pgconn.PgError{Code: "23502", Message: "null value in column"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ods"."pessoa"`)).WillReturnError(pgErr)
	mock.ExpectRollback()

	_, err := s.Insert(context.Background(), "pessoa", []string{"sexo"}, [][]interface{}{{nil}})
	require.Error(t, err)

	var target *pgconn.PgError
	assert.True(t, errors.As(err, &target))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_RowWidthMismatch(t *testing.T) {
	s, mock := newMockStore(t, 10)

	_, err := s.Insert(context.Background(), "pessoa", []string{"a", "b"}, [][]interface{}{{1}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReturning(t *testing.T) {
	s, mock := newMockStore(t, 500)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(
		`INSERT INTO "ods"."familia" ("id_regiao") VALUES ($1), ($2) ON CONFLICT DO NOTHING RETURNING "id_familia"`)).
		WithArgs(3, 4).
		WillReturnRows(sqlmock.NewRows([]string{"id_familia"}).AddRow(11).AddRow(12))
	mock.ExpectCommit()

	ids, err := s.InsertReturning(context.Background(), "familia", "id_familia", []string{"id_regiao"},
		[][]interface{}{{3}, {4}})
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReturning_SkippedRowsRollBack(t *testing.T) {
	s, mock := newMockStore(t, 500)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`RETURNING "id_familia"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id_familia"}).AddRow(11))
	mock.ExpectRollback()

	_, err := s.InsertReturning(context.Background(), "familia", "id_familia", []string{"id_regiao"},
		[][]interface{}{{3}, {4}})
	assert.ErrorIs(t, err, ErrRowsSkipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectHighWaterPrefix(mock sqlmock.Sqlmock, highWater int64) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`LOCK TABLE "ods"."familia" IN SHARE ROW EXCLUSIVE MODE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX("id_familia"), 0) FROM "ods"."familia"`)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(highWater))
}

func TestInsertAfterHighWater(t *testing.T) {
	s, mock := newMockStore(t, 500)

	expectHighWaterPrefix(mock, 40)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ods"."familia" ("id_regiao") VALUES ($1), ($2) ON CONFLICT DO NOTHING`)).
		WithArgs(3, 4).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "ods"."familia" WHERE "id_familia" > $1`)).
		WithArgs(40).
		WillReturnRows(sqlmock.NewRows([]string{"count", "min", "max"}).AddRow(2, 41, 42))
	mock.ExpectCommit()

	first, err := s.InsertAfterHighWater(context.Background(), "familia", "id_familia", []string{"id_regiao"},
		[][]interface{}{{3}, {4}})
	require.NoError(t, err)
	assert.Equal(t, int64(41), first)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAfterHighWater_NonContiguousRollsBack(t *testing.T) {
	s, mock := newMockStore(t, 500)

	expectHighWaterPrefix(mock, 40)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ods"."familia"`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE "id_familia" > $1`)).
		WithArgs(40).
		WillReturnRows(sqlmock.NewRows([]string{"count", "min", "max"}).AddRow(2, 41, 43))
	mock.ExpectRollback()

	_, err := s.InsertAfterHighWater(context.Background(), "familia", "id_familia", []string{"id_regiao"},
		[][]interface{}{{3}, {4}})
	assert.ErrorIs(t, err, ErrIDBlockNotContiguous)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAfterHighWater_SkippedRowsRollBack(t *testing.T) {
	s, mock := newMockStore(t, 500)

	expectHighWaterPrefix(mock, 0)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ods"."familia"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := s.InsertAfterHighWater(context.Background(), "familia", "id_familia", []string{"id_regiao"},
		[][]interface{}{{3}, {4}})
	assert.ErrorIs(t, err, ErrRowsSkipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIDMap(t *testing.T) {
	s, mock := newMockStore(t, 500)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "nome_regiao"::text AS natural_key, "id_regiao" AS id FROM "ods"."regiao"`)).
		WillReturnRows(sqlmock.NewRows([]string{"natural_key", "id"}).AddRow("Norte", 1).AddRow("Sul", 2))

	m, err := s.IDMap(context.Background(), "regiao", "nome_regiao", "id_regiao")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Norte": 1, "Sul": 2}, m)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAndOrphans(t *testing.T) {
	s, mock := newMockStore(t, 500)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "ods"."pessoa"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT COUNT(*) FROM "ods"."alimentacao" c LEFT JOIN "ods"."pessoa" p ON c."id_pessoa" = p."id_pessoa" WHERE p."id_pessoa" IS NULL`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := s.Count(context.Background(), "pessoa")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	orphans, err := s.CountOrphans(context.Background(), "alimentacao", "id_pessoa", "pessoa", "id_pessoa")
	require.NoError(t, err)
	assert.Zero(t, orphans)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCleaningOperations(t *testing.T) {
	s, mock := newMockStore(t, 500)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO "ods"."cleaned_on_ingress" ("run_id", "table_name", "column_name", "original_value", "new_value", "row_identifier", "cleaning_operation", "cleaning_reason") VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT DO NOTHING`)).
		WithArgs("run-1", "alimentacao", "matriculado", "talvez", "false", "survey:3", "boolean_coding", "unrecognized_token").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.RecordCleaningOperations(context.Background(), []model.CleaningOperation{{
		RunID:             "run-1",
		TableName:         "alimentacao",
		ColumnName:        "matriculado",
		OriginalValue:     "talvez",
		NewValue:          false,
		RowIdentifier:     "survey:3",
		CleaningOperation: "boolean_coding",
		CleaningReason:    "unrecognized_token",
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureCleaningTable(t *testing.T) {
	s, mock := newMockStore(t, 500)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "ods"."cleaned_on_ingress"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureCleaningTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunks_RespectParameterLimit(t *testing.T) {
	s, _ := newMockStore(t, 100000)

	chunks := s.chunks([]string{"a", "b"}, make([][]interface{}, 70000))
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 32767)
	assert.Len(t, chunks[1], 32767)
	assert.Len(t, chunks[2], 70000-2*32767)
}
