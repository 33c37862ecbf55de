package analyses

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNoImage       = errors.New("no archived image")
	ErrValidation    = errors.New("validation failed")
	ErrQuotaExceeded = errors.New("quota exceeded")
)

const (
	ErrorCodeValidation       = "validation_error"
	ErrorCodeQuotaExceeded    = "quota_exceeded"
	ErrorCodeQuotaUnavailable = "quota_unavailable"
	ErrorCodeNotFound         = "not_found"
	ErrorCodeInternal         = "internal_error"
)

// ValidationError lists the offending fields.
type ValidationError struct {
	Fields []FieldIssue
}

// FieldIssue is one rejected field.
type FieldIssue struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Fields[0].Field, e.Fields[0].Issue)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// QuotaExceededError is a hard denial. The two flags stay independent.
type QuotaExceededError struct {
	Remaining        int  `json:"quotaRemaining"`
	WouldIncurCharge bool `json:"wouldIncurCharge"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: %d remaining", ErrQuotaExceeded, e.Remaining)
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }
