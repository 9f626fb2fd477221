package certvalidator

import "fmt"

// ValidationResult is a message accumulator produced by Validate and the
// component validators it calls into. It carries four ordered, append-only
// message lists rather than throwing: callers get exactly one result per
// Validate call, and IsValid reflects whether any error was ever recorded.
//
// Results are monotonic: once a message is appended it is never removed,
// and Merge only ever concatenates.
type ValidationResult struct {
	Errors    []string
	Warnings  []string
	Infos     []string
	Successes []string
}

// NewValidationResult returns an empty, valid result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{}
}

// IsValid reports whether no error has been recorded.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError appends an error message.
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddErrorf appends a formatted error message.
func (r *ValidationResult) AddErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// AddWarning appends a warning message.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddWarningf appends a formatted warning message.
func (r *ValidationResult) AddWarningf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// AddInfo appends an informational message.
func (r *ValidationResult) AddInfo(msg string) {
	r.Infos = append(r.Infos, msg)
}

// AddSuccess appends a success message.
func (r *ValidationResult) AddSuccess(msg string) {
	r.Successes = append(r.Successes, msg)
}

// Merge concatenates other's four lists onto r, in order, and returns r.
func (r *ValidationResult) Merge(other *ValidationResult) *ValidationResult {
	if other == nil {
		return r
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Infos = append(r.Infos, other.Infos...)
	r.Successes = append(r.Successes, other.Successes...)
	return r
}

// MergeResults merges any number of results into a fresh result, preserving
// call order within each of the four lists.
func MergeResults(results ...*ValidationResult) *ValidationResult {
	merged := NewValidationResult()
	for _, res := range results {
		merged.Merge(res)
	}
	return merged
}
