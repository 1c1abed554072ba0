package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/model"
)

// Counter is the part of the store the verifier reads
type Counter interface {
	Count(ctx context.Context, table string) (int64, error)
	CountOrphans(ctx context.Context, child, fk, parent, parentID string) (int64, error)
}

// ForeignKey names a child column that must reference an existing parent row
type ForeignKey struct {
	Child    string
	Column   string
	Parent   string
	ParentID string
}

func (fk ForeignKey) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", fk.Child, fk.Column, fk.Parent, fk.ParentID)
}

// ForeignKeys lists every reference written by a load
var ForeignKeys = []ForeignKey{
	{model.IndicatorTable.Table, "id_regiao", model.RegionTable.Table, model.RegionTable.IDColumn},
	{model.GDPTable.Table, "id_regiao", model.RegionTable.Table, model.RegionTable.IDColumn},
	{model.GDPTable.Table, "id_indicador", model.IndicatorTable.Table, model.IndicatorTable.IDColumn},
	{model.TaxesTable.Table, "id_regiao", model.RegionTable.Table, model.RegionTable.IDColumn},
	{model.TaxesTable.Table, "id_indicador", model.IndicatorTable.Table, model.IndicatorTable.IDColumn},
	{model.GrossValueAddedTable.Table, "id_indicador", model.IndicatorTable.Table, model.IndicatorTable.IDColumn},
	{model.HouseholdTable.Table, "id_regiao", model.RegionTable.Table, model.RegionTable.IDColumn},
	{model.PersonTable.Table, "id_familia", model.HouseholdTable.Table, model.HouseholdTable.IDColumn},
	{model.NutritionTable.Table, "id_pessoa", model.PersonTable.Table, model.PersonTable.IDColumn},
	{model.SchoolingTable.Table, "id_pessoa", model.PersonTable.Table, model.PersonTable.IDColumn},
	{model.HealthAccessTable.Table, "id_pessoa", model.PersonTable.Table, model.PersonTable.IDColumn},
	{model.FoodSecurityTable.Table, "id_familia", model.HouseholdTable.Table, model.HouseholdTable.IDColumn},
}

// RowCountCheck compares the rows a table holds with the rows a run wrote
type RowCountCheck struct {
	Table    string
	Expected int64
	Actual   int64
}

// Matches reports whether the counts agree
func (c RowCountCheck) Matches() bool {
	return c.Expected == c.Actual
}

// IntegrityIssue represents a data integrity issue
type IntegrityIssue struct {
	IssueType    string
	Description  string
	AffectedRows int64
}

// VerificationReport contains the results of a post-load verification
type VerificationReport struct {
	VerificationTime time.Time
	RowCounts        []RowCountCheck
	IntegrityIssues  []IntegrityIssue
	Duration         time.Duration
}

// Passed reports whether every check succeeded
func (r *VerificationReport) Passed() bool {
	for _, c := range r.RowCounts {
		if !c.Matches() {
			return false
		}
	}
	return len(r.IntegrityIssues) == 0
}

// Summary describes the failed checks
func (r *VerificationReport) Summary() string {
	var parts []string
	for _, c := range r.RowCounts {
		if !c.Matches() {
			parts = append(parts, fmt.Sprintf("%s holds %d rows, expected %d", c.Table, c.Actual, c.Expected))
		}
	}
	for _, issue := range r.IntegrityIssues {
		parts = append(parts, issue.Description)
	}
	return strings.Join(parts, "; ")
}

// Verifier checks a finished load against the rows it wrote
type Verifier struct {
	store   Counter
	logger  *zap.Logger
	timeout time.Duration
}

// NewVerifier creates a new verifier
func NewVerifier(store Counter, logger *zap.Logger) *Verifier {
	return &Verifier{
		store:   store,
		logger:  logger,
		timeout: time.Minute * 5, // Default 5-minute timeout
	}
}

// VerifyLoad compares table row counts with expected and looks for
// orphaned references. Tables absent from expected are not counted.
func (v *Verifier) VerifyLoad(ctx context.Context, expected map[string]int64) (*VerificationReport, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	report := &VerificationReport{VerificationTime: time.Now()}

	for _, meta := range model.FactTables {
		want, ok := expected[meta.Table]
		if !ok {
			continue
		}
		got, err := v.store.Count(ctx, meta.Table)
		if err != nil {
			return nil, err
		}
		check := RowCountCheck{Table: meta.Table, Expected: want, Actual: got}
		report.RowCounts = append(report.RowCounts, check)

		if !check.Matches() {
			v.logger.Warn("Row count mismatch",
				zap.String("table", meta.Table),
				zap.Int64("expected", want),
				zap.Int64("actual", got))
		}
	}

	for _, fk := range ForeignKeys {
		orphans, err := v.store.CountOrphans(ctx, fk.Child, fk.Column, fk.Parent, fk.ParentID)
		if err != nil {
			return nil, err
		}
		if orphans > 0 {
			report.IntegrityIssues = append(report.IntegrityIssues, IntegrityIssue{
				IssueType:    "orphaned_reference",
				Description:  fmt.Sprintf("%d orphaned rows in %s", orphans, fk),
				AffectedRows: orphans,
			})
		}
	}

	report.Duration = time.Since(report.VerificationTime)

	v.logger.Info("Verification completed",
		zap.Bool("passed", report.Passed()),
		zap.Int("tablesCounted", len(report.RowCounts)),
		zap.Int("integrityIssues", len(report.IntegrityIssues)),
		zap.Duration("duration", report.Duration))

	return report, nil
}
