package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrPanelNotFound   = errors.New("panel not found")
	ErrSessionNotReady = errors.New("layout session not loaded")
	ErrGestureActive   = errors.New("another gesture is active")
	ErrDuplicatePanel  = errors.New("duplicate panel id")
	ErrUnsavedEdits    = errors.New("layout has unsaved edits")
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	// Retryable marks failures a caller may repeat unchanged, such as a
	// backend save that did not complete.
	Retryable bool
	Err       error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func retryableError(code, message string, err error) *DomainError {
	return &DomainError{
		Status:    http.StatusServiceUnavailable,
		Code:      code,
		Message:   message,
		Retryable: true,
		Err:       err,
	}
}

// ConstraintError rejects a geometry change that violates layout limits.
type ConstraintError struct {
	PanelID    string
	Violations []string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("panel %s: %s", e.PanelID, strings.Join(e.Violations, "; "))
}
