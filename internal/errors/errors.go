package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory represents the class of failure raised by the decision core
type ErrorCategory string

const (
	// Isolated per bar or symbol; tolerated up to a configured count
	ErrorCategoryData ErrorCategory = "DATA"
	// Fatal at construction time
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"
	// A decision, never a fault. Carried as a value on risk decisions.
	ErrorCategoryRiskRejection ErrorCategory = "RISK_REJECTION"
	// Halts a backtest run in the Failed state
	ErrorCategorySimulation ErrorCategory = "SIMULATION_FAULT"

	// Misbehaving rule evaluator or model source; the vote is discarded
	ErrorCategoryEvaluator ErrorCategory = "EVALUATOR"
	// Collaborator I/O (data providers, sinks, model runtime)
	ErrorCategoryNetwork ErrorCategory = "NETWORK"
	ErrorCategoryStorage ErrorCategory = "STORAGE"
)

// Error represents a categorized error with context
type Error struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
	if len(e.Context) > 0 {
		b.WriteString(" (")
		first := true
		for _, k := range sortedKeys(e.Context) {
			if !first {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
			first = false
		}
		b.WriteString(")")
	}
	if e.Underlying != nil {
		fmt.Fprintf(&b, ": %v", e.Underlying)
	}
	return b.String()
}

// Unwrap returns the underlying error for error unwrapping
func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error must stop the owning component
func (e *Error) IsFatal() bool {
	return e.Category == ErrorCategoryConfiguration || e.Category == ErrorCategorySimulation
}

// WithContext adds context information to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable sets the retryable flag
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// New creates a new categorized error
func New(category ErrorCategory, component, operation, message string) *Error {
	return &Error{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with category context. Returns nil for a nil error.
func Wrap(err error, category ErrorCategory, component, operation string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryStorage:
		return true
	default:
		return false
	}
}

// Common error constructors

func NewDataError(component, operation, message string) *Error {
	return New(ErrorCategoryData, component, operation, message)
}

func NewConfigError(component, operation, message string) *Error {
	return New(ErrorCategoryConfiguration, component, operation, message)
}

func NewRiskRejection(component, operation, message string) *Error {
	return New(ErrorCategoryRiskRejection, component, operation, message)
}

func NewSimulationFault(component, operation, message string) *Error {
	return New(ErrorCategorySimulation, component, operation, message)
}

func NewEvaluatorError(component, operation, message string) *Error {
	return New(ErrorCategoryEvaluator, component, operation, message)
}

func NewNetworkError(component, operation string, err error) *Error {
	return Wrap(err, ErrorCategoryNetwork, component, operation)
}

func NewStorageError(component, operation string, err error) *Error {
	return Wrap(err, ErrorCategoryStorage, component, operation)
}

// CategoryOf returns the category of the first categorized error in err's chain
func CategoryOf(err error) (ErrorCategory, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category, true
	}
	return "", false
}

// IsCategory reports whether err's chain carries the given category
func IsCategory(err error, category ErrorCategory) bool {
	c, ok := CategoryOf(err)
	return ok && c == category
}

func IsDataError(err error) bool       { return IsCategory(err, ErrorCategoryData) }
func IsConfigError(err error) bool     { return IsCategory(err, ErrorCategoryConfiguration) }
func IsSimulationFault(err error) bool { return IsCategory(err, ErrorCategorySimulation) }

// RecoveryAction is what a driver should do after an error
type RecoveryAction string

const (
	RecoveryActionRetry RecoveryAction = "RETRY"
	RecoveryActionSkip  RecoveryAction = "SKIP"
	RecoveryActionStop  RecoveryAction = "STOP"
)

// GetRecoveryAction suggests a recovery action based on error category
func (e *Error) GetRecoveryAction() RecoveryAction {
	switch e.Category {
	case ErrorCategoryConfiguration, ErrorCategorySimulation:
		return RecoveryActionStop
	case ErrorCategoryNetwork, ErrorCategoryStorage:
		if e.Retryable {
			return RecoveryActionRetry
		}
		return RecoveryActionSkip
	default:
		return RecoveryActionSkip
	}
}

// ErrorStats tracks error statistics
type ErrorStats struct {
	TotalErrors      int
	ErrorsByCategory map[ErrorCategory]int
	RecentErrors     []*Error
	MaxRecentErrors  int
}

// NewErrorStats creates a new error statistics tracker
func NewErrorStats(maxRecentErrors int) *ErrorStats {
	return &ErrorStats{
		ErrorsByCategory: make(map[ErrorCategory]int),
		RecentErrors:     make([]*Error, 0, maxRecentErrors),
		MaxRecentErrors:  maxRecentErrors,
	}
}

// RecordError records an error in the statistics
func (es *ErrorStats) RecordError(err *Error) {
	if err == nil {
		return
	}
	es.TotalErrors++
	es.ErrorsByCategory[err.Category]++

	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > es.MaxRecentErrors {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// Count returns how many errors of a category were recorded
func (es *ErrorStats) Count(category ErrorCategory) int {
	return es.ErrorsByCategory[category]
}

// GetErrorRate returns the error rate for a specific category
func (es *ErrorStats) GetErrorRate(category ErrorCategory) float64 {
	if es.TotalErrors == 0 {
		return 0.0
	}
	return float64(es.ErrorsByCategory[category]) / float64(es.TotalErrors)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
