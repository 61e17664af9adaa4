package grading

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatchingBand signals a percentage that no configured band covers.
	ErrNoMatchingBand = errors.New("grading: no band matches percentage")
	// ErrPercentageOutOfRange is returned for percentages outside [0,100].
	ErrPercentageOutOfRange = errors.New("grading: percentage out of range")
	// ErrInvalidLevel is returned for class levels outside the known enumeration.
	ErrInvalidLevel = errors.New("grading: invalid class level")
)

// Validation rules reported by ValidateGradingSystem.
const (
	RuleEmpty      = "EMPTY"
	RuleBandFields = "BAND_FIELDS"
	RuleOverlap    = "OVERLAP"
	RuleGap        = "GAP"
	RuleCoverage   = "COVERAGE"
)

// ValidationError describes the first grading-system rule that failed.
// Index and OtherIndex refer to positions in the caller's band slice, -1 when
// not applicable.
type ValidationError struct {
	Rule       string `json:"rule"`
	Message    string `json:"message"`
	Index      int    `json:"index"`
	OtherIndex int    `json:"other_index"`
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("grading system invalid (%s): %s", e.Rule, e.Message)
}

func newValidationError(rule string, index, other int, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...), Index: index, OtherIndex: other}
}
