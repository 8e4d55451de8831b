package app

import "fmt"

const (
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidDocument = "INVALID_DOCUMENT"
	CodeValidation      = "VALIDATION_ERROR"
)

// DomainError is a rejection the caller can act on, as opposed to an
// infrastructure failure.
type DomainError struct {
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(code, message string, details any) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: details,
	}
}
