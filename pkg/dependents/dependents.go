// Package dependents derives the per-person and per-household answer tables
// from normalized survey rows once household and person ids are resolved.
package dependents

import (
	"errors"
	"fmt"

	"github.com/David-Botos/survey-ingress/pkg/keys"
	"github.com/David-Botos/survey-ingress/pkg/model"
)

// ErrUnresolvedID means a temporary id has no store id
var ErrUnresolvedID = errors.New("temporary id has no resolved id")

// IDLookup resolves a temporary id to a store id
type IDLookup interface {
	Lookup(tmpID int) (int64, bool)
}

// TableRows are the rows destined for one table, in insert order
type TableRows struct {
	Meta model.TableMetadata
	Rows [][]interface{}
}

// Rows holds the dependent row sets of one run
type Rows struct {
	Nutrition    [][]interface{}
	Schooling    [][]interface{}
	HealthAccess [][]interface{}
	FoodSecurity [][]interface{}
}

// Tables returns the row sets paired with their table metadata, in the
// order they are written
func (r *Rows) Tables() []TableRows {
	return []TableRows{
		{Meta: model.NutritionTable, Rows: r.Nutrition},
		{Meta: model.SchoolingTable, Rows: r.Schooling},
		{Meta: model.HealthAccessTable, Rows: r.HealthAccess},
		{Meta: model.FoodSecurityTable, Rows: r.FoodSecurity},
	}
}

// Build emits one nutrition, schooling and health-access row per person in
// row order, and one food-security row per household taken from the
// household's first row.
func Build(a *keys.Assignment, households, persons IDLookup) (*Rows, error) {
	out := &Rows{
		Nutrition:    make([][]interface{}, 0, a.Len()),
		Schooling:    make([][]interface{}, 0, a.Len()),
		HealthAccess: make([][]interface{}, 0, a.Len()),
		FoodSecurity: make([][]interface{}, 0, a.HouseholdCount()),
	}

	for i := 0; i < a.Len(); i++ {
		tmp := a.PersonID(i)
		personID, ok := persons.Lookup(tmp)
		if !ok {
			return nil, fmt.Errorf("%w: person %d", ErrUnresolvedID, tmp)
		}

		row := a.Row(i)
		out.Nutrition = append(out.Nutrition, nutritionRow(personID, &row))
		out.Schooling = append(out.Schooling, schoolingRow(personID, &row))
		out.HealthAccess = append(out.HealthAccess, healthAccessRow(personID, &row))
	}

	for _, h := range a.Households() {
		householdID, ok := households.Lookup(h.TmpID)
		if !ok {
			return nil, fmt.Errorf("%w: household %d", ErrUnresolvedID, h.TmpID)
		}
		out.FoodSecurity = append(out.FoodSecurity, foodSecurityRow(householdID, &h.Row))
	}

	return out, nil
}

func nutritionRow(personID int64, r *model.SurveyRow) []interface{} {
	return []interface{}{
		personID,
		model.NullableBool(r.EatsFruit),
		model.NullableBool(r.EatsUltraProcessed),
		model.NullableBool(r.SchoolMeal),
	}
}

// The school meal answer doubles as school attendance
func schoolingRow(personID int64, r *model.SurveyRow) []interface{} {
	return []interface{}{
		personID,
		model.NullableBool(r.SchoolMeal),
		model.NullableBool(r.Enrolled),
	}
}

func healthAccessRow(personID int64, r *model.SurveyRow) []interface{} {
	return []interface{}{
		personID,
		model.NullableString(r.HealthCarePlace),
	}
}

func foodSecurityRow(householdID int64, r *model.SurveyRow) []interface{} {
	row := make([]interface{}, 0, 1+len(r.FoodSecurity))
	row = append(row, householdID)
	for _, answer := range r.FoodSecurity {
		row = append(row, model.NullableBool(answer))
	}
	return row
}
