// pkg/cleaner/operations.go
package cleaner

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/David-Botos/survey-ingress/pkg/model"
)

// Cleaning operation names recorded in the audit table
const (
	OpDecimalParse  = "decimal_parse"
	OpBooleanCoding = "boolean_coding"
	OpSexCoding     = "sex_coding"
	OpRowRejected   = "row_rejected"
)

// Cleaning reasons recorded in the audit table
const (
	ReasonUnparseable      = "unparseable_number"
	ReasonUnrecognized     = "unrecognized_token"
	ReasonMissingValue     = "missing_value"
	ReasonMissingRegion    = "missing_region"
	ReasonInvalidAge       = "invalid_age"
	ReasonDuplicateRegion  = "duplicate_region"
	ReasonUnknownSexFormat = "unknown_sex_format"
)

var (
	trueTokens  = regexp.MustCompile(`(?i)^\s*(?:s|sim|true|sempre|quase\s+sempre|raramente|[aà]s\s+vezes)\s*$`)
	falseTokens = regexp.MustCompile(`(?i)^\s*(?:n|n[aã]o|false|nunca|0)\s*$`)
)

// isMissing reports whether a source value stands for "no value"
func isMissing(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "NA", "N/A", "<NA>", "NaN", "nan", "null", "NULL", "None", "nil", "NIL":
		return true
	}
	return false
}

// ParseDecimal parses a number written with "." thousands separators and a
// "," decimal separator ("1.500,00" is 1500). A missing value yields nil with
// ok set; an unparseable one yields nil with ok unset.
func ParseDecimal(s string) (v *float64, ok bool) {
	if isMissing(s) {
		return nil, true
	}

	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return &f, true
}

// CodeBool maps a free-text frequency answer onto a boolean. Affirmative
// frequencies ("sim", "sempre", "quase sempre", "raramente", "às vezes") are
// true. Missing values are nil. Any other token is false; recognized is unset
// when the token was neither a known affirmative nor a known negative.
func CodeBool(s string) (v *bool, recognized bool) {
	if isMissing(s) {
		return nil, true
	}

	b := trueTokens.MatchString(s)
	if b {
		return &b, true
	}
	return &b, falseTokens.MatchString(s)
}

// CodeSex maps the source sex label onto M, F or O
func CodeSex(s string) (model.Sex, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "masculino", "m":
		return model.SexMale, true
	case "feminino", "f":
		return model.SexFemale, true
	default:
		return model.SexOther, false
	}
}

// ParseAge parses an age in whole years. Integral decimals such as "34.0"
// or "34,0" are accepted.
func ParseAge(s string) (int, error) {
	if isMissing(s) {
		return 0, errors.New("missing age")
	}

	trimmed := strings.TrimSpace(s)
	if n, err := strconv.Atoi(trimmed); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative age %d", n)
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse '%s' as age: %w", trimmed, err)
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("age '%s' is not a whole number of years", trimmed)
	}
	return int(f), nil
}

// toNullableText returns the trimmed text, or nil when missing
func toNullableText(s string) interface{} {
	if isMissing(s) {
		return nil
	}
	return strings.TrimSpace(s)
}

// text returns the trimmed value with missing tokens mapped to ""
func text(s string) string {
	if isMissing(s) {
		return ""
	}
	return strings.TrimSpace(s)
}
