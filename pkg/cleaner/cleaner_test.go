package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/model"
)

func surveyRecord(line int, fields map[string]string) model.RawRecord {
	base := map[string]string{
		model.FieldRegion:    "Norte",
		model.FieldSituation: "alugado",
		model.FieldIncome:    "1.500,00",
		model.FieldDwelling:  "casa",
		model.FieldSex:       "Masculino",
		model.FieldAge:       "34",
	}
	for _, col := range surveyRequired[6:] {
		base[col] = ""
	}
	for k, v := range fields {
		base[k] = v
	}
	return model.RawRecord{Line: line, Fields: base}
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(zap.NewNop())
	require.NoError(t, err)
	return n
}

func TestNewNormalizer_NilLogger(t *testing.T) {
	_, err := NewNormalizer(nil)
	assert.Error(t, err)
}

func TestNormalizeSurvey_HouseholdAndPersonFields(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.NormalizeSurvey([]model.RawRecord{
		surveyRecord(1, nil),
		surveyRecord(2, map[string]string{model.FieldSex: "Feminino", model.FieldAge: "8"}),
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Zero(t, res.Rejected)

	first := res.Rows[0]
	assert.Equal(t, "Norte", first.Region)
	assert.Equal(t, "1.500,00", first.IncomeText)
	require.NotNil(t, first.Income)
	assert.InDelta(t, 1500.0, *first.Income, 1e-9)
	assert.Equal(t, model.SexMale, first.Sex)
	assert.Equal(t, 34, first.Age)

	assert.Equal(t, model.SexFemale, res.Rows[1].Sex)
	assert.Equal(t, 8, res.Rows[1].Age)
	assert.Equal(t, first.Key(), res.Rows[1].Key())
}

func TestNormalizeSurvey_BooleanCodingAudit(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.NormalizeSurvey([]model.RawRecord{
		surveyRecord(7, map[string]string{
			model.FieldEatsFruit:          "Sempre",
			model.FieldEatsUltraProcessed: "Nunca",
			model.FieldSchoolMeal:         "de vez em quando",
			model.FieldEnrolled:           "",
		}),
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, ptr(true), row.EatsFruit)
	assert.Equal(t, ptr(false), row.EatsUltraProcessed)
	assert.Equal(t, ptr(false), row.SchoolMeal)
	assert.Nil(t, row.Enrolled)

	require.Len(t, res.Operations, 1)
	op := res.Operations[0]
	assert.Equal(t, OpBooleanCoding, op.CleaningOperation)
	assert.Equal(t, ReasonUnrecognized, op.CleaningReason)
	assert.Equal(t, model.FieldSchoolMeal, op.ColumnName)
	assert.Equal(t, "de vez em quando", op.OriginalValue)
	assert.Equal(t, false, op.NewValue)
	assert.Equal(t, "survey:7", op.RowIdentifier)
}

func TestNormalizeSurvey_RejectsRows(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.NormalizeSurvey([]model.RawRecord{
		surveyRecord(1, map[string]string{model.FieldRegion: ""}),
		surveyRecord(2, map[string]string{model.FieldAge: "unknown"}),
		surveyRecord(3, nil),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rejected)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 3, res.Rows[0].Line)

	require.Len(t, res.Operations, 2)
	assert.Equal(t, ReasonMissingRegion, res.Operations[0].CleaningReason)
	assert.Equal(t, ReasonInvalidAge, res.Operations[1].CleaningReason)
}

func TestNormalizeSurvey_UnparseableIncomeAndUnknownSex(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.NormalizeSurvey([]model.RawRecord{
		surveyRecord(4, map[string]string{model.FieldIncome: "dois mil", model.FieldSex: "X"}),
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	assert.Nil(t, res.Rows[0].Income)
	assert.Equal(t, "dois mil", res.Rows[0].IncomeText)
	assert.Equal(t, model.SexOther, res.Rows[0].Sex)

	var reasons []string
	for _, op := range res.Operations {
		reasons = append(reasons, op.CleaningReason)
	}
	assert.ElementsMatch(t, []string{ReasonUnparseable, ReasonUnknownSexFormat}, reasons)
}

func TestNormalizeSurvey_MissingColumn(t *testing.T) {
	n := newTestNormalizer(t)

	_, err := n.NormalizeSurvey([]model.RawRecord{
		{Line: 1, Fields: map[string]string{model.FieldRegion: "Sul"}},
	})
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestNormalizeSurvey_MissingAnswerColumn(t *testing.T) {
	n := newTestNormalizer(t)

	rec := surveyRecord(1, map[string]string{"matriculad": "Sim"})
	delete(rec.Fields, model.FieldEnrolled)
	for _, f := range model.FoodSecurityFields {
		delete(rec.Fields, f)
	}

	_, err := n.NormalizeSurvey([]model.RawRecord{rec})
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), model.FieldEnrolled)
	assert.Contains(t, err.Error(), model.FoodSecurityFields[0])
	assert.NotContains(t, err.Error(), model.FieldRegion)
}

func TestNormalizeSurvey_FoodSecurityOrder(t *testing.T) {
	n := newTestNormalizer(t)

	fields := map[string]string{}
	for i, name := range model.FoodSecurityFields {
		if i%2 == 0 {
			fields[name] = "Sim"
		} else {
			fields[name] = "Não"
		}
	}

	res, err := n.NormalizeSurvey([]model.RawRecord{surveyRecord(1, fields)})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	for i, answer := range res.Rows[0].FoodSecurity {
		require.NotNil(t, answer, model.FoodSecurityFields[i])
		assert.Equal(t, i%2 == 0, *answer, model.FoodSecurityFields[i])
	}
}

func economicRecord(line int, fields map[string]string) model.RawRecord {
	base := make(map[string]string, len(economicRequired))
	for _, col := range economicRequired {
		base[col] = ""
	}
	for k, v := range fields {
		base[k] = v
	}
	return model.RawRecord{Line: line, Fields: base}
}

func TestNormalizeEconomic(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.NormalizeEconomic([]model.RawRecord{
		economicRecord(1, map[string]string{
			model.FieldRegion:    "Sul",
			model.FieldGDP:       "1.000.000,50",
			model.FieldAgroShare: "7,3",
			model.FieldTaxes:     "n/d",
		}),
		economicRecord(2, map[string]string{model.FieldRegion: "Sul", model.FieldGDP: "1"}),
		economicRecord(3, map[string]string{model.FieldRegion: " "}),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rejected)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, "Sul", row.Region)
	require.NotNil(t, row.GDP)
	assert.InDelta(t, 1000000.5, *row.GDP, 1e-9)
	require.NotNil(t, row.AgroShare)
	assert.InDelta(t, 7.3, *row.AgroShare, 1e-9)
	assert.Nil(t, row.Taxes)
	assert.Nil(t, row.ServicesShare)

	var reasons []string
	for _, op := range res.Operations {
		reasons = append(reasons, op.CleaningReason)
	}
	assert.Equal(t, []string{ReasonUnparseable, ReasonDuplicateRegion, ReasonMissingRegion}, reasons)
}

func TestNormalizeEconomic_MissingColumn(t *testing.T) {
	n := newTestNormalizer(t)

	rec := economicRecord(1, map[string]string{model.FieldRegion: "Sul", "valor_PIB": "1.000,00"})
	delete(rec.Fields, model.FieldGDP)

	res, err := n.NormalizeEconomic([]model.RawRecord{rec})
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Nil(t, res)
	assert.Equal(t, "economic dataset: required column missing from dataset: valor_pib", err.Error())
}
