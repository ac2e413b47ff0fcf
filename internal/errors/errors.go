package errors

import (
	stderrors "errors"
	"fmt"

	"globalsig/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the code of a wrapped AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    Classify(err),
		Message: message,
		Cause:   err,
	}
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:  code,
		Cause: err,
	}
}

// GetCode returns the error code of an AppError, otherwise the classified code
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return Classify(err)
}

// Predefined error codes
const (
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeDataIntegrity  = "DATA_INTEGRITY"
	CodeNonConvergence = "NON_CONVERGENCE"
	CodeDatabaseError  = "DATABASE_ERROR"
	CodeInternalError  = "INTERNAL_ERROR"
)

// Classify maps domain sentinel errors onto application error codes
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case core.IsDataIntegrityError(err):
		return CodeDataIntegrity
	case core.IsConvergenceError(err):
		return CodeNonConvergence
	case stderrors.Is(err, core.ErrInvalidInput),
		stderrors.Is(err, core.ErrInvalidProbability),
		stderrors.Is(err, core.ErrNoExperiments):
		return CodeInvalidInput
	}
	return CodeInternalError
}

// ExitCode returns the process exit status for an error code
func ExitCode(err error) int {
	switch GetCode(err) {
	case "":
		return 0
	case CodeConfigInvalid, CodeInvalidInput:
		return 2
	case CodeDataIntegrity:
		return 3
	case CodeNonConvergence:
		return 4
	}
	return 1
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: message,
		Cause:   cause,
	}
}
