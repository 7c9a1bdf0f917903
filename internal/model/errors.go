package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies pipeline failures for the caller.
type ErrorCode string

const (
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeFetchTimeout        ErrorCode = "FETCH_TIMEOUT"
	CodeFetchFailed         ErrorCode = "FETCH_FAILED"
	CodeProbeFailed         ErrorCode = "PROBE_FAILED"
	CodeSegmentationFailed  ErrorCode = "SEGMENTATION_FAILED"
	CodeTranscriptionFailed ErrorCode = "TRANSCRIPTION_FAILED"
	CodeQuotaExhausted      ErrorCode = "QUOTA_EXHAUSTED"
	CodeSummarizationFailed ErrorCode = "SUMMARIZATION_FAILED"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// PipelineError is a classified failure raised by a pipeline component.
// Message is user-facing; Err keeps the underlying cause for logs.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a classified pipeline error.
func NewPipelineError(code ErrorCode, message string, err error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the error code from err, or CodeInternal if it carries none.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

// UserMessage extracts the user-facing message from err, falling back to a
// generic one so the caller never sees an empty error.
func UserMessage(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return "处理失败，请稍后重试"
}
