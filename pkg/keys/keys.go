// Package keys assigns run-local surrogate ids to survey rows before
// anything is persisted. Households are identified by their composite key
// and numbered densely in first-seen order; persons are numbered densely in
// row order. Both sequences start at 1.
package keys

import "github.com/David-Botos/survey-ingress/pkg/model"

// Assignment is the immutable result of synthesizing keys over an ordered
// slice of rows. Row order is the order every later stage must follow.
type Assignment struct {
	rows       []model.SurveyRow
	households []int // tmp_household_id per row
	seeds      []int // row index of the first row of each household
}

// Synthesize assigns tmp_household_id and tmp_person_id to every row.
// The input slice is copied.
func Synthesize(rows []model.SurveyRow) *Assignment {
	a := &Assignment{
		rows:       append([]model.SurveyRow(nil), rows...),
		households: make([]int, len(rows)),
	}

	ids := make(map[model.HouseholdKey]int)
	for i := range a.rows {
		key := a.rows[i].Key()
		id, ok := ids[key]
		if !ok {
			a.seeds = append(a.seeds, i)
			id = len(a.seeds)
			ids[key] = id
		}
		a.households[i] = id
	}

	return a
}

// Len returns the number of rows (and persons)
func (a *Assignment) Len() int { return len(a.rows) }

// HouseholdCount returns the number of distinct households
func (a *Assignment) HouseholdCount() int { return len(a.seeds) }

// Row returns the i-th row (0-based)
func (a *Assignment) Row(i int) model.SurveyRow { return a.rows[i] }

// HouseholdID returns the tmp_household_id of the i-th row
func (a *Assignment) HouseholdID(i int) int { return a.households[i] }

// PersonID returns the tmp_person_id of the i-th row
func (a *Assignment) PersonID(i int) int { return i + 1 }

// Household is the first-seen row of a household with its temporary id
type Household struct {
	TmpID int
	Row   model.SurveyRow
}

// Households returns one entry per distinct household, ordered by
// tmp_household_id. Household attributes come from the first row seen.
func (a *Assignment) Households() []Household {
	out := make([]Household, len(a.seeds))
	for i, idx := range a.seeds {
		out[i] = Household{TmpID: i + 1, Row: a.rows[idx]}
	}
	return out
}
