package model

import (
	"errors"
	"fmt"
)

// ErrorType classifies a failure surfaced from a remote call or the answer
// engine. Every error that reaches a persisted conversation turn carries one.
type ErrorType string

const (
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeAnswerEngine ErrorType = "answer_engine"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// PipelineError wraps an underlying failure with its classification and
// whether the affected candidate may be retried on a later batch.
type PipelineError struct {
	Type  ErrorType
	Final bool
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return string(e.Type)
	}
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func NewPipelineError(t ErrorType, final bool, err error) *PipelineError {
	return &PipelineError{Type: t, Final: final, Err: err}
}

// ClassOf extracts the error class from err. Unclassifiable errors default
// to ErrorTypeUnknown.
func ClassOf(err error) ErrorType {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ErrorTypeUnknown
}

// IsFinal reports whether err is known to be non-retryable.
func IsFinal(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Final
	}
	return false
}
