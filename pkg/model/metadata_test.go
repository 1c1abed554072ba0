package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableCatalog(t *testing.T) {
	assert.Equal(t, []string{"id_familia", "sexo", "idade"}, PersonTable.ColumnNames())
	assert.Equal(t, []string{"id_regiao", "situacao", "renda_familiar", "tipo_moradia"}, HouseholdTable.ColumnNames())
	assert.True(t, HouseholdTable.HasIDColumn())
	assert.False(t, NutritionTable.HasIDColumn())

	names := FoodSecurityTable.ColumnNames()
	require.Len(t, names, 1+len(FoodSecurityFields))
	assert.Equal(t, "id_familia", names[0])
	assert.Equal(t, FoodSecurityFields[len(FoodSecurityFields)-1], names[len(names)-1])

	for _, meta := range FactTables {
		assert.NotEmpty(t, meta.Columns, meta.Table)
		assert.False(t, meta.Columns[0].Nullable, "%s first column is a required key", meta.Table)
	}
}

func TestValidateRow(t *testing.T) {
	assert.NoError(t, PersonTable.ValidateRow([]interface{}{int64(1), "M", 34}))
	assert.NoError(t, HouseholdTable.ValidateRow([]interface{}{int64(1), nil, nil, nil}))

	err := PersonTable.ValidateRow([]interface{}{nil, "M", 34})
	assert.ErrorIs(t, err, ErrNullRequired)
	assert.Contains(t, err.Error(), "pessoa.id_familia")

	assert.Error(t, PersonTable.ValidateRow([]interface{}{int64(1), "M"}))
}

func TestRawRecord(t *testing.T) {
	rec := RawRecord{Line: 3, Fields: map[string]string{"sexo": "  F "}}
	assert.Equal(t, "F", rec.Get("sexo"))
	assert.Equal(t, "", rec.Get("idade"))
	assert.True(t, rec.Has("sexo"))
	assert.False(t, rec.Has("idade"))
}

func TestHouseholdKey(t *testing.T) {
	a := SurveyRow{Region: "Norte", Situation: "Urbana", IncomeText: "1.500,00", Dwelling: "Casa"}
	b := a
	b.Sex, b.Age = SexFemale, 8
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "Norte|Urbana|1.500,00|Casa", a.Key().String())

	c := SurveyRow{Region: "Norte|Urbana", IncomeText: "1.500,00", Dwelling: "Casa"}
	assert.NotEqual(t, a.Key(), c.Key())
}
