// pkg/model/survey.go
package model

import (
	"fmt"
	"strings"
)

// Survey dataset columns
const (
	FieldRegion             = "nome_regiao"
	FieldSituation          = "situacao"
	FieldIncome             = "renda_familiar"
	FieldDwelling           = "tipo_morada"
	FieldSex                = "sexo"
	FieldAge                = "idade"
	FieldEatsFruit          = "consome_frutas_frequentemente"
	FieldEatsUltraProcessed = "consome_alimentos_ultraprocessados"
	FieldSchoolMeal         = "refeicao_escola_creche"
	FieldEnrolled           = "matriculado"
	FieldHealthCarePlace    = "local_mais_frequente"
)

// Economic dataset columns
const (
	FieldGDP             = "valor_pib"
	FieldGDPShare        = "participacao_regiao_brasil"
	FieldTaxes           = "impostos_totais"
	FieldTaxShare        = "participacao_regiao_impostos"
	FieldGrossValueAdded = "total_vab"
	FieldAgroShare       = "participacao_agro"
	FieldIndustryShare   = "participacao_industria"
	FieldServicesShare   = "participacao_servicos"
)

// FoodSecurityFields are the food-security answers, in storage order.
// Source and target column names are the same.
var FoodSecurityFields = [...]string{
	"menor_18_sentiu_fome",
	"menor_18_sem_comer",
	"morador_alim_acabassem",
	"morador_alim_acabaram",
	"morador_saudavel",
	"morador_insuficiente",
	"adulto_saltou_refeicao",
	"adulto_comeu_menos",
	"adulto_sentiu_fome",
	"adulto_sem_comer",
	"menor18_saudavel",
	"menor18_insuficiente",
}

// RawRecord is one source row keyed by trimmed header name
type RawRecord struct {
	Line   int // 1-based data row number in the source
	Fields map[string]string
}

// Get returns the trimmed value of a field, or "" when absent
func (r RawRecord) Get(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// Has reports whether the source carried the field at all
func (r RawRecord) Has(name string) bool {
	_, ok := r.Fields[name]
	return ok
}

// Sex is the normalized sex code stored on a person
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
	SexOther  Sex = "O"
)

// FoodSecurity holds the coded answers in FoodSecurityFields order
type FoodSecurity [len(FoodSecurityFields)]*bool

// SurveyRow is a normalized survey record. One row describes one person.
type SurveyRow struct {
	Line int

	// Household attributes. IncomeText is the source text and takes part in
	// the household key; Income is its numeric form for storage.
	Region     string
	Situation  string
	IncomeText string
	Income     *float64
	Dwelling   string

	// Person attributes
	Sex Sex
	Age int

	EatsFruit          *bool
	EatsUltraProcessed *bool
	SchoolMeal         *bool
	Enrolled           *bool
	HealthCarePlace    string

	FoodSecurity FoodSecurity
}

// HouseholdKey is the composite natural key of a household
type HouseholdKey struct {
	Region    string
	Situation string
	Income    string
	Dwelling  string
}

// Key returns the household key of the row
func (r *SurveyRow) Key() HouseholdKey {
	return HouseholdKey{
		Region:    r.Region,
		Situation: r.Situation,
		Income:    r.IncomeText,
		Dwelling:  r.Dwelling,
	}
}

func (k HouseholdKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Region, k.Situation, k.Income, k.Dwelling)
}

// EconomicRow is a normalized economic record for one region
type EconomicRow struct {
	Line   int
	Region string

	GDP             *float64
	GDPShare        *float64
	Taxes           *float64
	TaxShare        *float64
	GrossValueAdded *float64
	AgroShare       *float64
	IndustryShare   *float64
	ServicesShare   *float64
}
