// pkg/cleaner/cleaner.go
package cleaner

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/model"
)

// Dataset names used in row identifiers
const (
	DatasetSurvey   = "survey"
	DatasetEconomic = "economic"
)

// ErrMissingColumn is returned when a dataset lacks a column the load needs
var ErrMissingColumn = errors.New("required column missing from dataset")

// Every mapped column must be present in the header, so a misspelled
// answer column fails the load instead of loading as NULL.
var surveyRequired = append([]string{
	model.FieldRegion, model.FieldSituation, model.FieldIncome,
	model.FieldDwelling, model.FieldSex, model.FieldAge,
	model.FieldEatsFruit, model.FieldEatsUltraProcessed, model.FieldSchoolMeal,
	model.FieldEnrolled, model.FieldHealthCarePlace,
}, model.FoodSecurityFields[:]...)

var economicRequired = []string{
	model.FieldRegion,
	model.FieldGDP, model.FieldGDPShare,
	model.FieldTaxes, model.FieldTaxShare,
	model.FieldGrossValueAdded, model.FieldAgroShare, model.FieldIndustryShare, model.FieldServicesShare,
}

// Normalizer validates and cleans raw source records before key synthesis
type Normalizer struct {
	logger *zap.Logger
}

// SurveyResult is the outcome of normalizing the survey dataset
type SurveyResult struct {
	Rows       []model.SurveyRow
	Operations []model.CleaningOperation
	Rejected   int
}

// EconomicResult is the outcome of normalizing the economic dataset
type EconomicResult struct {
	Rows       []model.EconomicRow
	Operations []model.CleaningOperation
	Rejected   int
}

// NewNormalizer creates a new Normalizer
func NewNormalizer(logger *zap.Logger) (*Normalizer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Normalizer{logger: logger}, nil
}

// NormalizeSurvey cleans survey records in source order. Rows that cannot
// describe a person (no region, no usable age) are rejected and audited;
// every other problem is coded to NULL or false and audited.
func (n *Normalizer) NormalizeSurvey(records []model.RawRecord) (*SurveyResult, error) {
	if err := requireColumns(records, surveyRequired); err != nil {
		return nil, fmt.Errorf("survey dataset: %w", err)
	}

	result := &SurveyResult{Rows: make([]model.SurveyRow, 0, len(records))}

	for _, rec := range records {
		row, ops, ok := n.cleanSurveyRecord(rec)
		result.Operations = append(result.Operations, ops...)
		if !ok {
			result.Rejected++
			continue
		}
		result.Rows = append(result.Rows, row)
	}

	n.logger.Info("Normalized survey dataset",
		zap.Int("records", len(records)),
		zap.Int("accepted", len(result.Rows)),
		zap.Int("rejected", result.Rejected),
		zap.Int("cleaning_operations", len(result.Operations)))

	return result, nil
}

func (n *Normalizer) cleanSurveyRecord(rec model.RawRecord) (model.SurveyRow, []model.CleaningOperation, bool) {
	rowID := rowIdentifier(DatasetSurvey, rec.Line)
	var ops []model.CleaningOperation

	row := model.SurveyRow{
		Line:       rec.Line,
		Region:     text(rec.Get(model.FieldRegion)),
		Situation:  text(rec.Get(model.FieldSituation)),
		IncomeText: text(rec.Get(model.FieldIncome)),
		Dwelling:   text(rec.Get(model.FieldDwelling)),
	}

	if row.Region == "" {
		ctx := model.CleaningContext{TableName: model.HouseholdTable.Table, ColumnName: "id_regiao", RowIdentifier: rowID}
		n.logger.Warn("Rejecting survey row without region", zap.String("row", rowID))
		return row, append(ops, ctx.Operation(rec.Get(model.FieldRegion), nil, OpRowRejected, ReasonMissingRegion)), false
	}

	age, err := ParseAge(rec.Get(model.FieldAge))
	if err != nil {
		ctx := model.CleaningContext{TableName: model.PersonTable.Table, ColumnName: "idade", RowIdentifier: rowID}
		n.logger.Warn("Rejecting survey row with invalid age",
			zap.String("row", rowID),
			zap.Error(err))
		return row, append(ops, ctx.Operation(rec.Get(model.FieldAge), nil, OpRowRejected, ReasonInvalidAge)), false
	}
	row.Age = age

	var op *model.CleaningOperation
	row.Income, op = decimalField(rec, model.FieldIncome, model.HouseholdTable.Table, "renda_familiar", rowID)
	ops = appendOp(ops, op)

	row.Sex, op = sexField(rec, rowID)
	ops = appendOp(ops, op)

	row.EatsFruit, op = boolField(rec, model.FieldEatsFruit, model.NutritionTable.Table, rowID)
	ops = appendOp(ops, op)
	row.EatsUltraProcessed, op = boolField(rec, model.FieldEatsUltraProcessed, model.NutritionTable.Table, rowID)
	ops = appendOp(ops, op)
	row.SchoolMeal, op = boolField(rec, model.FieldSchoolMeal, model.NutritionTable.Table, rowID)
	ops = appendOp(ops, op)
	row.Enrolled, op = boolField(rec, model.FieldEnrolled, model.SchoolingTable.Table, rowID)
	ops = appendOp(ops, op)

	row.HealthCarePlace = text(rec.Get(model.FieldHealthCarePlace))

	for i, field := range model.FoodSecurityFields {
		row.FoodSecurity[i], op = boolField(rec, field, model.FoodSecurityTable.Table, rowID)
		ops = appendOp(ops, op)
	}

	return row, ops, true
}

// NormalizeEconomic cleans economic records. The first record per region
// wins; later duplicates and records without a region are rejected.
func (n *Normalizer) NormalizeEconomic(records []model.RawRecord) (*EconomicResult, error) {
	if err := requireColumns(records, economicRequired); err != nil {
		return nil, fmt.Errorf("economic dataset: %w", err)
	}

	result := &EconomicResult{Rows: make([]model.EconomicRow, 0, len(records))}
	seen := make(map[string]int, len(records))

	for _, rec := range records {
		rowID := rowIdentifier(DatasetEconomic, rec.Line)
		region := text(rec.Get(model.FieldRegion))
		regionCtx := model.CleaningContext{TableName: model.IndicatorTable.Table, ColumnName: "id_regiao", RowIdentifier: rowID}

		if region == "" {
			n.logger.Warn("Rejecting economic row without region", zap.String("row", rowID))
			result.Operations = append(result.Operations,
				regionCtx.Operation(rec.Get(model.FieldRegion), nil, OpRowRejected, ReasonMissingRegion))
			result.Rejected++
			continue
		}
		if first, dup := seen[region]; dup {
			n.logger.Warn("Rejecting duplicate economic row for region",
				zap.String("row", rowID),
				zap.String("region", region),
				zap.Int("first_line", first))
			result.Operations = append(result.Operations,
				regionCtx.Operation(region, nil, OpRowRejected, ReasonDuplicateRegion))
			result.Rejected++
			continue
		}
		seen[region] = rec.Line

		row := model.EconomicRow{Line: rec.Line, Region: region}
		for _, f := range []struct {
			dst    **float64
			field  string
			table  string
			column string
		}{
			{&row.GDP, model.FieldGDP, model.GDPTable.Table, "pib_total"},
			{&row.GDPShare, model.FieldGDPShare, model.GDPTable.Table, "participacao_regiao_brasil"},
			{&row.Taxes, model.FieldTaxes, model.TaxesTable.Table, "impostos_total"},
			{&row.TaxShare, model.FieldTaxShare, model.TaxesTable.Table, "participacao_regiao_impostos"},
			{&row.GrossValueAdded, model.FieldGrossValueAdded, model.GrossValueAddedTable.Table, "total_vab"},
			{&row.AgroShare, model.FieldAgroShare, model.GrossValueAddedTable.Table, "participacao_agro"},
			{&row.IndustryShare, model.FieldIndustryShare, model.GrossValueAddedTable.Table, "participacao_industria"},
			{&row.ServicesShare, model.FieldServicesShare, model.GrossValueAddedTable.Table, "participacao_servicos"},
		} {
			var op *model.CleaningOperation
			*f.dst, op = decimalField(rec, f.field, f.table, f.column, rowID)
			result.Operations = appendOp(result.Operations, op)
		}

		result.Rows = append(result.Rows, row)
	}

	n.logger.Info("Normalized economic dataset",
		zap.Int("records", len(records)),
		zap.Int("accepted", len(result.Rows)),
		zap.Int("rejected", result.Rejected),
		zap.Int("cleaning_operations", len(result.Operations)))

	return result, nil
}

// Helper functions

// requireColumns checks the header, taken from the first record, and names
// every absent column
func requireColumns(records []model.RawRecord, columns []string) error {
	if len(records) == 0 {
		return nil
	}
	var missing []string
	for _, col := range columns {
		if !records[0].Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

func rowIdentifier(dataset string, line int) string {
	return fmt.Sprintf("%s:%d", dataset, line)
}

func appendOp(ops []model.CleaningOperation, op *model.CleaningOperation) []model.CleaningOperation {
	if op == nil {
		return ops
	}
	return append(ops, *op)
}

func decimalField(rec model.RawRecord, field, table, column, rowID string) (*float64, *model.CleaningOperation) {
	raw := rec.Get(field)
	v, ok := ParseDecimal(raw)
	if ok {
		return v, nil
	}
	ctx := model.CleaningContext{TableName: table, ColumnName: column, RowIdentifier: rowID}
	op := ctx.Operation(raw, nil, OpDecimalParse, ReasonUnparseable)
	return nil, &op
}

func boolField(rec model.RawRecord, field, table, rowID string) (*bool, *model.CleaningOperation) {
	raw := rec.Get(field)
	v, recognized := CodeBool(raw)
	if recognized {
		return v, nil
	}
	ctx := model.CleaningContext{TableName: table, ColumnName: field, RowIdentifier: rowID}
	op := ctx.Operation(raw, *v, OpBooleanCoding, ReasonUnrecognized)
	return v, &op
}

func sexField(rec model.RawRecord, rowID string) (model.Sex, *model.CleaningOperation) {
	raw := rec.Get(model.FieldSex)
	sex, ok := CodeSex(raw)
	if ok {
		return sex, nil
	}
	reason := ReasonUnknownSexFormat
	if isMissing(raw) {
		reason = ReasonMissingValue
	}
	ctx := model.CleaningContext{TableName: model.PersonTable.Table, ColumnName: "sexo", RowIdentifier: rowID}
	op := ctx.Operation(toNullableText(raw), string(sex), OpSexCoding, reason)
	return sex, &op
}
