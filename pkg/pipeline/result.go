package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Load stages, in execution order
const (
	StageNormalize  = "normalize"
	StagePreflight  = "preflight"
	StageRegions    = "regions"
	StageIndicators = "indicators"
	StageEconomic   = "economic"
	StageHouseholds = "households"
	StagePersons    = "persons"
	StageDependents = "dependents"
	StageAudit      = "audit"
	StageVerify     = "verify"
)

// StageResult represents the outcome of one load stage
type StageResult struct {
	Name      string
	Success   bool
	Rows      int64 // rows written by the stage
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// NewStageResult starts timing a stage
func NewStageResult(name string) *StageResult {
	return &StageResult{Name: name, StartTime: time.Now()}
}

// Complete marks the stage as complete and calculates duration
func (s *StageResult) Complete(success bool) {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.Success = success
}

// RunResult represents the result of one load run
type RunResult struct {
	RunID   string
	Schema  string
	Success bool

	SurveyRecords    int
	EconomicRecords  int
	RejectedSurvey   int
	RejectedEconomic int
	CleaningOps      int
	Regions          int
	Households       int
	Persons          int
	RowsInserted     map[string]int64 // table -> rows accepted by the store
	Stages           []StageResult
	Errors           []ErrorRecord
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}

// NewRunResult initializes a run result with a fresh run id
func NewRunResult(schema string) *RunResult {
	return &RunResult{
		RunID:        uuid.New().String(),
		Schema:       schema,
		RowsInserted: make(map[string]int64),
		Stages:       make([]StageResult, 0),
		Errors:       make([]ErrorRecord, 0),
		StartTime:    time.Now(),
	}
}

// Complete marks the run as complete and calculates duration
func (r *RunResult) Complete(success bool) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = success && len(r.Errors) == 0
}

// AddStage appends a finished stage
func (r *RunResult) AddStage(stage *StageResult) {
	r.Stages = append(r.Stages, *stage)
}

// AddError adds an error to the result
func (r *RunResult) AddError(err ErrorRecord) {
	r.Errors = append(r.Errors, err)
	r.Success = false
}

// AddInserted records rows accepted for a table
func (r *RunResult) AddInserted(table string, n int64) {
	r.RowsInserted[table] += n
}

// TotalInserted returns rows accepted across all tables
func (r *RunResult) TotalInserted() int64 {
	var total int64
	for _, n := range r.RowsInserted {
		total += n
	}
	return total
}
