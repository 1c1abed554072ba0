// Package pipeline runs one load: normalize both datasets, persist regions
// and economic indicators, synthesize and resolve household and person ids,
// write the dependent tables, then verify what was written.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/cleaner"
	"github.com/David-Botos/survey-ingress/pkg/dependents"
	"github.com/David-Botos/survey-ingress/pkg/keys"
	"github.com/David-Botos/survey-ingress/pkg/model"
	"github.com/David-Botos/survey-ingress/pkg/resolve"
)

// Store is the persistence surface a load writes through
type Store interface {
	resolve.Inserter
	Counter

	Insert(ctx context.Context, table string, columns []string, rows [][]interface{}) (int64, error)
	IDMap(ctx context.Context, table, naturalColumn, idColumn string) (map[string]int64, error)
	EnsureCleaningTable(ctx context.Context) error
	RecordCleaningOperations(ctx context.Context, operations []model.CleaningOperation) error
}

// Options control a load
type Options struct {
	Schema          string
	ResolveStrategy string
	RecordCleaning  bool
}

// Input holds the raw records of both datasets in source order
type Input struct {
	Economic []model.RawRecord
	Survey   []model.RawRecord
}

// Pipeline orchestrates the load stages
type Pipeline struct {
	store        Store
	normalizer   *cleaner.Normalizer
	resolver     *resolve.Resolver
	verifier     *Verifier
	errorHandler *ErrorHandler
	metrics      *RunMetrics
	opts         Options
	logger       *zap.Logger
}

// New creates a pipeline over an explicit store handle
func New(store Store, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	normalizer, err := cleaner.NewNormalizer(logger.Named("cleaner"))
	if err != nil {
		return nil, err
	}

	resolver, err := resolve.New(store, opts.ResolveStrategy, logger.Named("resolve"))
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		store:        store,
		normalizer:   normalizer,
		resolver:     resolver,
		verifier:     NewVerifier(store, logger.Named("verifier")),
		errorHandler: NewErrorHandler(logger),
		metrics:      NewRunMetrics(logger),
		opts:         opts,
		logger:       logger,
	}, nil
}

// Metrics returns the run metrics
func (p *Pipeline) Metrics() *RunMetrics { return p.metrics }

// ErrorHandler returns the error handler
func (p *Pipeline) ErrorHandler() *ErrorHandler { return p.errorHandler }

// Run executes one load. Any error aborts the run; rows written by stages
// that already committed stay in the store.
func (p *Pipeline) Run(ctx context.Context, in Input) (*RunResult, error) {
	result := NewRunResult(p.opts.Schema)
	r := &run{
		Pipeline: p,
		in:       in,
		result:   result,
		logger:   p.logger.With(zap.String("runID", result.RunID)),
	}

	r.logger.Info("Starting load run",
		zap.String("schema", p.opts.Schema),
		zap.String("resolveStrategy", p.opts.ResolveStrategy),
		zap.Int("economicRecords", len(in.Economic)),
		zap.Int("surveyRecords", len(in.Survey)))

	err := r.execute(ctx)
	if err != nil {
		category := p.errorHandler.CategorizeError(err)
		record := NewErrorRecord(err, category).
			WithStage(r.stage).
			WithTable(p.opts.Schema, r.table)
		p.errorHandler.RecordError(record)
		p.metrics.RecordError(category)
		result.AddError(record)
	}

	result.Complete(err == nil)
	p.metrics.RecordRun(result)

	return result, err
}

// run holds the state of one load between stages
type run struct {
	*Pipeline

	in     Input
	result *RunResult
	logger *zap.Logger

	// position, for error records
	stage string
	table string

	survey     *cleaner.SurveyResult
	economic   *cleaner.EconomicResult
	operations []model.CleaningOperation

	regionIDs    map[string]int64 // nome_regiao -> id_regiao
	indicatorIDs map[string]int64 // id_regiao as text -> id_indicador

	assignment *keys.Assignment
	households resolve.IDMap
	persons    resolve.IDMap
	expected   map[string]int64
}

func (r *run) execute(ctx context.Context) error {
	r.expected = make(map[string]int64)

	for _, s := range []struct {
		name string
		fn   func(ctx context.Context, stage *StageResult) error
	}{
		{StageNormalize, r.normalize},
		{StagePreflight, r.preflight},
		{StageRegions, r.loadRegions},
		{StageIndicators, r.loadIndicators},
		{StageEconomic, r.loadEconomic},
		{StageHouseholds, r.loadHouseholds},
		{StagePersons, r.loadPersons},
		{StageDependents, r.loadDependents},
		{StageAudit, r.recordAudit},
		{StageVerify, r.verify},
	} {
		if err := ctx.Err(); err != nil {
			r.stage = s.name
			return err
		}

		r.stage, r.table = s.name, ""
		stage := NewStageResult(s.name)
		err := s.fn(ctx, stage)
		stage.Complete(err == nil)
		r.result.AddStage(stage)
		r.metrics.RecordStage(stage)

		if err != nil {
			return fmt.Errorf("%s stage: %w", s.name, err)
		}

		r.logger.Debug("Stage completed",
			zap.String("stage", s.name),
			zap.Int64("rows", stage.Rows),
			zap.Duration("duration", stage.Duration))
	}

	return nil
}

func (r *run) normalize(_ context.Context, stage *StageResult) error {
	economic, err := r.normalizer.NormalizeEconomic(r.in.Economic)
	if err != nil {
		return err
	}
	survey, err := r.normalizer.NormalizeSurvey(r.in.Survey)
	if err != nil {
		return err
	}
	r.economic, r.survey = economic, survey

	r.operations = make([]model.CleaningOperation, 0, len(economic.Operations)+len(survey.Operations))
	for _, ops := range [][]model.CleaningOperation{economic.Operations, survey.Operations} {
		for _, op := range ops {
			op.RunID = r.result.RunID
			r.operations = append(r.operations, op)
			r.metrics.RecordCleaningOperation(op.CleaningOperation)
		}
	}

	r.metrics.RecordRejected(cleaner.DatasetEconomic, economic.Rejected)
	r.metrics.RecordRejected(cleaner.DatasetSurvey, survey.Rejected)

	r.result.EconomicRecords = len(r.in.Economic)
	r.result.SurveyRecords = len(r.in.Survey)
	r.result.RejectedEconomic = economic.Rejected
	r.result.RejectedSurvey = survey.Rejected
	r.result.CleaningOps = len(r.operations)
	stage.Rows = int64(len(economic.Rows) + len(survey.Rows))

	return nil
}

// preflight refuses to load into tables that already hold rows keyed by
// ids from an earlier run
func (r *run) preflight(ctx context.Context, _ *StageResult) error {
	var populated []string
	for _, meta := range model.FactTables {
		n, err := r.store.Count(ctx, meta.Table)
		if err != nil {
			r.table = meta.Table
			return err
		}
		if n > 0 {
			populated = append(populated, fmt.Sprintf("%s (%d rows)", meta.Table, n))
		}
	}

	if len(populated) > 0 {
		return fmt.Errorf("%w: %s", ErrTargetNotEmpty, strings.Join(populated, ", "))
	}
	return nil
}

func (r *run) loadRegions(ctx context.Context, stage *StageResult) error {
	meta := model.RegionTable
	r.table = meta.Table

	names := regionNames(r.economic.Rows, r.survey.Rows)
	rows := make([][]interface{}, len(names))
	for i, name := range names {
		rows[i] = []interface{}{name}
	}

	n, err := r.insert(ctx, meta, rows)
	if err != nil {
		return err
	}
	stage.Rows = n

	ids, err := r.store.IDMap(ctx, meta.Table, "nome_regiao", meta.IDColumn)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, ok := ids[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownRegion, name)
		}
	}

	r.regionIDs = ids
	r.result.Regions = len(names)
	return nil
}

// loadIndicators writes one indicator per region of the economic dataset
func (r *run) loadIndicators(ctx context.Context, stage *StageResult) error {
	meta := model.IndicatorTable
	r.table = meta.Table

	rows := make([][]interface{}, 0, len(r.economic.Rows))
	for _, e := range r.economic.Rows {
		regionID, err := r.regionID(e.Region)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{regionID})
	}

	n, err := r.insert(ctx, meta, rows)
	if err != nil {
		return err
	}
	stage.Rows = n

	ids, err := r.store.IDMap(ctx, meta.Table, "id_regiao", meta.IDColumn)
	if err != nil {
		return err
	}
	r.indicatorIDs = ids
	return nil
}

func (r *run) loadEconomic(ctx context.Context, stage *StageResult) error {
	var gdp, taxes, gva [][]interface{}

	for _, e := range r.economic.Rows {
		regionID, err := r.regionID(e.Region)
		if err != nil {
			return err
		}
		indicatorID, ok := r.indicatorIDs[strconv.FormatInt(regionID, 10)]
		if !ok {
			return fmt.Errorf("%w: indicator for region %q", dependents.ErrUnresolvedID, e.Region)
		}

		gdp = append(gdp, []interface{}{
			regionID, indicatorID,
			model.NullableFloat(e.GDP), model.NullableFloat(e.GDPShare),
		})
		taxes = append(taxes, []interface{}{
			regionID, indicatorID,
			model.NullableFloat(e.Taxes), model.NullableFloat(e.TaxShare),
		})
		gva = append(gva, []interface{}{
			indicatorID,
			model.NullableFloat(e.GrossValueAdded),
			model.NullableFloat(e.AgroShare),
			model.NullableFloat(e.IndustryShare),
			model.NullableFloat(e.ServicesShare),
		})
	}

	for _, t := range []dependents.TableRows{
		{Meta: model.GDPTable, Rows: gdp},
		{Meta: model.TaxesTable, Rows: taxes},
		{Meta: model.GrossValueAddedTable, Rows: gva},
	} {
		r.table = t.Meta.Table
		n, err := r.insert(ctx, t.Meta, t.Rows)
		if err != nil {
			return err
		}
		stage.Rows += n
		r.expected[t.Meta.Table] = int64(len(t.Rows))
	}

	return nil
}

func (r *run) loadHouseholds(ctx context.Context, stage *StageResult) error {
	meta := model.HouseholdTable
	r.table = meta.Table
	r.assignment = keys.Synthesize(r.survey.Rows)

	households := r.assignment.Households()
	tmpIDs := make([]int, len(households))
	rows := make([][]interface{}, len(households))
	for i, h := range households {
		regionID, err := r.regionID(h.Row.Region)
		if err != nil {
			return err
		}
		tmpIDs[i] = h.TmpID
		rows[i] = []interface{}{
			regionID,
			model.NullableString(h.Row.Situation),
			model.NullableFloat(h.Row.Income),
			model.NullableString(h.Row.Dwelling),
		}
	}

	if err := validateRows(meta, rows); err != nil {
		return err
	}
	ids, err := r.resolver.InsertAndResolve(ctx, meta.Table, meta.IDColumn, meta.ColumnNames(), tmpIDs, rows)
	if err != nil {
		return err
	}
	r.record(meta.Table, len(rows), int64(len(ids)))

	r.households = ids
	r.result.Households = len(ids)
	r.expected[meta.Table] = int64(len(rows))
	stage.Rows = int64(len(ids))
	return nil
}

func (r *run) loadPersons(ctx context.Context, stage *StageResult) error {
	meta := model.PersonTable
	r.table = meta.Table
	a := r.assignment

	tmpIDs := make([]int, a.Len())
	rows := make([][]interface{}, a.Len())
	for i := 0; i < a.Len(); i++ {
		householdID, ok := r.households.Lookup(a.HouseholdID(i))
		if !ok {
			return fmt.Errorf("%w: household %d", dependents.ErrUnresolvedID, a.HouseholdID(i))
		}
		row := a.Row(i)
		tmpIDs[i] = a.PersonID(i)
		rows[i] = []interface{}{householdID, string(row.Sex), row.Age}
	}

	if err := validateRows(meta, rows); err != nil {
		return err
	}
	ids, err := r.resolver.InsertAndResolve(ctx, meta.Table, meta.IDColumn, meta.ColumnNames(), tmpIDs, rows)
	if err != nil {
		return err
	}
	r.record(meta.Table, len(rows), int64(len(ids)))

	r.persons = ids
	r.result.Persons = len(ids)
	r.expected[meta.Table] = int64(len(rows))
	stage.Rows = int64(len(ids))
	return nil
}

func (r *run) loadDependents(ctx context.Context, stage *StageResult) error {
	deps, err := dependents.Build(r.assignment, r.households, r.persons)
	if err != nil {
		return err
	}

	for _, t := range deps.Tables() {
		r.table = t.Meta.Table
		n, err := r.insert(ctx, t.Meta, t.Rows)
		if err != nil {
			return err
		}
		stage.Rows += n
		r.expected[t.Meta.Table] = int64(len(t.Rows))
	}
	return nil
}

func (r *run) recordAudit(ctx context.Context, stage *StageResult) error {
	if !r.opts.RecordCleaning || len(r.operations) == 0 {
		return nil
	}
	r.table = model.CleaningTable.Table

	if err := r.store.EnsureCleaningTable(ctx); err != nil {
		return err
	}
	if err := r.store.RecordCleaningOperations(ctx, r.operations); err != nil {
		return err
	}

	stage.Rows = int64(len(r.operations))
	return nil
}

func (r *run) verify(ctx context.Context, _ *StageResult) error {
	report, err := r.verifier.VerifyLoad(ctx, r.expected)
	if err != nil {
		return err
	}
	if !report.Passed() {
		return fmt.Errorf("%w: %s", ErrVerificationFailed, report.Summary())
	}
	return nil
}

// insert writes rows and records how many the store accepted. Rows skipped
// on conflict are logged; the verify stage decides whether that is fatal.
func (r *run) insert(ctx context.Context, meta model.TableMetadata, rows [][]interface{}) (int64, error) {
	if err := validateRows(meta, rows); err != nil {
		return 0, err
	}
	n, err := r.store.Insert(ctx, meta.Table, meta.ColumnNames(), rows)
	if err != nil {
		return 0, err
	}
	if n != int64(len(rows)) {
		r.logger.Warn("Rows skipped on conflict",
			zap.String("table", meta.Table),
			zap.Int("presented", len(rows)),
			zap.Int64("inserted", n))
	}
	r.record(meta.Table, len(rows), n)
	return n, nil
}

func validateRows(meta model.TableMetadata, rows [][]interface{}) error {
	for i, row := range rows {
		if err := meta.ValidateRow(row); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *run) record(table string, presented int, inserted int64) {
	r.result.AddInserted(table, inserted)
	r.metrics.RecordInsert(table, presented, inserted)
}

func (r *run) regionID(name string) (int64, error) {
	id, ok := r.regionIDs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	return id, nil
}

// regionNames returns distinct region names in first-seen order, economic
// rows first
func regionNames(economic []model.EconomicRow, survey []model.SurveyRow) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}
	for _, e := range economic {
		add(e.Region)
	}
	for _, s := range survey {
		add(s.Region)
	}
	return names
}
