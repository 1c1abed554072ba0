package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"go.uber.org/zap"

	"github.com/David-Botos/survey-ingress/pkg/cleaner"
	"github.com/David-Botos/survey-ingress/pkg/dependents"
	"github.com/David-Botos/survey-ingress/pkg/resolve"
)

var (
	// ErrTargetNotEmpty means a table that receives run-synthesized ids
	// already holds rows; loading would risk misattributed ids
	ErrTargetNotEmpty = errors.New("target tables are not empty")

	// ErrUnknownRegion means a row references a region with no stored id
	ErrUnknownRegion = errors.New("region has no stored id")

	// ErrVerificationFailed means the post-load checks found a mismatch
	ErrVerificationFailed = errors.New("post-load verification failed")
)

// ErrorCategory defines categories of errors during a load
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryValidation
	ErrorCategoryDataConversion
	ErrorCategoryConstraint
	ErrorCategoryResolution
	ErrorCategoryConnectionLevel
	ErrorCategoryCancelled
	ErrorCategoryUnknown
)

var categoryNames = [...]string{
	ErrorCategoryNone:            "None",
	ErrorCategoryValidation:      "Validation",
	ErrorCategoryDataConversion:  "DataConversion",
	ErrorCategoryConstraint:      "Constraint",
	ErrorCategoryResolution:      "Resolution",
	ErrorCategoryConnectionLevel: "ConnectionLevel",
	ErrorCategoryCancelled:       "Cancelled",
	ErrorCategoryUnknown:         "Unknown",
}

func (ec ErrorCategory) String() string {
	if ec < 0 || int(ec) >= len(categoryNames) {
		return fmt.Sprintf("Unknown(%d)", int(ec))
	}
	return categoryNames[ec]
}

// sqlStateClasses maps the two-character SQLSTATE class to a category
var sqlStateClasses = map[string]ErrorCategory{
	"08": ErrorCategoryConnectionLevel, // connection exception
	"57": ErrorCategoryConnectionLevel, // operator intervention
	"22": ErrorCategoryDataConversion,
	"23": ErrorCategoryConstraint,
	"42": ErrorCategoryValidation, // syntax error or access rule violation
}

// ErrorRecord represents a single error during a load
type ErrorRecord struct {
	Category  ErrorCategory
	Stage     string
	TableName string
	SQLState  string
	Error     error
	Message   string
	Timestamp time.Time
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	record := ErrorRecord{
		Category:  category,
		Error:     err,
		Timestamp: time.Now(),
	}

	if err != nil {
		record.Message = err.Error()
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			record.SQLState = pgErr.Code
		}
	}

	return record
}

// WithStage adds the load stage to the error record
func (r ErrorRecord) WithStage(stage string) ErrorRecord {
	r.Stage = stage
	return r
}

// WithTable adds table information to the error record
func (r ErrorRecord) WithTable(schema, table string) ErrorRecord {
	if table != "" {
		r.TableName = fmt.Sprintf("%s.%s", schema, table)
	}
	return r
}

func (r ErrorRecord) String() string {
	parts := []string{"[" + r.Category.String() + "]"}
	for _, f := range [][2]string{
		{"Stage", r.Stage},
		{"Table", r.TableName},
		{"SQLSTATE", r.SQLState},
		{"Error", r.Message},
	} {
		if f[1] != "" {
			parts = append(parts, f[0]+": "+f[1])
		}
	}
	return strings.Join(parts, " ")
}

// ErrorHandler categorizes and counts load errors
type ErrorHandler struct {
	logger       *zap.Logger
	errorCounts  map[ErrorCategory]int
	sampleErrors map[ErrorCategory][]ErrorRecord
	tableErrors  map[string]int
	mu           sync.Mutex
	maxSamples   int
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger,
		errorCounts:  make(map[ErrorCategory]int),
		sampleErrors: make(map[ErrorCategory][]ErrorRecord),
		tableErrors:  make(map[string]int),
		maxSamples:   5,
	}
}

// CategorizeError determines the category of an error. PostgreSQL errors
// are classified by SQLSTATE class.
func (eh *ErrorHandler) CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var (
		category ErrorCategory
		pgErr    *pgconn.PgError
		netErr   net.Error
	)

	switch {
	case errors.Is(err, context.Canceled):
		category = ErrorCategoryCancelled

	case errors.Is(err, resolve.ErrResolutionMisaligned),
		errors.Is(err, dependents.ErrUnresolvedID),
		errors.Is(err, ErrUnknownRegion),
		errors.Is(err, ErrVerificationFailed):
		category = ErrorCategoryResolution

	case errors.Is(err, ErrTargetNotEmpty),
		errors.Is(err, cleaner.ErrMissingColumn):
		category = ErrorCategoryValidation

	case errors.As(err, &pgErr):
		category = ErrorCategoryUnknown
		if len(pgErr.Code) >= 2 {
			if c, ok := sqlStateClasses[pgErr.Code[:2]]; ok {
				category = c
			}
		}

	case errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err),
		errors.As(err, &netErr):
		category = ErrorCategoryConnectionLevel

	default:
		category = ErrorCategoryUnknown
	}

	if eh.logger != nil {
		eh.logger.Debug("Categorized error",
			zap.String("error", err.Error()),
			zap.String("category", category.String()))
	}

	return category
}

// RecordError saves an error occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[record.Category]++

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if record.TableName != "" {
		eh.tableErrors[record.TableName]++
	}

	if eh.logger != nil {
		eh.logger.Error("Load error",
			zap.String("category", record.Category.String()),
			zap.String("stage", record.Stage),
			zap.String("table", record.TableName),
			zap.String("sqlstate", record.SQLState),
			zap.String("error", record.Message))
	}
}

// GetErrorSummary returns error counts by category
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int, len(eh.errorCounts))
	for category, count := range eh.errorCounts {
		summary[category] = count
	}
	return summary
}

// GetErrorSamples returns sample errors for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord, len(eh.sampleErrors))
	for category, records := range eh.sampleErrors {
		categorySamples := make([]ErrorRecord, len(records))
		copy(categorySamples, records)
		samples[category] = categorySamples
	}
	return samples
}

// GetTableErrorCounts returns error counts by table
func (eh *ErrorHandler) GetTableErrorCounts() map[string]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	tableCounts := make(map[string]int, len(eh.tableErrors))
	for table, count := range eh.tableErrors {
		tableCounts[table] = count
	}
	return tableCounts
}

// LogSummary writes one entry per error category, with its count and first
// sample, followed by the error count of every table involved
func (eh *ErrorHandler) LogSummary(logger *zap.Logger) {
	summary := eh.GetErrorSummary()
	if len(summary) == 0 {
		return
	}

	categories := make([]ErrorCategory, 0, len(summary))
	for category := range summary {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	samples := eh.GetErrorSamples()
	for _, category := range categories {
		fields := []zap.Field{
			zap.String("category", category.String()),
			zap.Int("count", summary[category]),
		}
		if s := samples[category]; len(s) > 0 {
			fields = append(fields, zap.String("sample", s[0].String()))
		}
		logger.Error("Load error summary", fields...)
	}

	tableCounts := eh.GetTableErrorCounts()
	tables := make([]string, 0, len(tableCounts))
	for table := range tableCounts {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		logger.Error("Load errors by table",
			zap.String("table", table),
			zap.Int("count", tableCounts[table]))
	}
}
