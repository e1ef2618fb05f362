package models

import (
	"errors"
	"fmt"
)

// Error codes used for fatal capture failures.
const (
	ErrCodeNavigationTimeout = "NAVIGATION_TIMEOUT"
	ErrCodeAttachFailed      = "ATTACH_FAILED"
	ErrCodeNavigation        = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash      = "BROWSER_CRASH"
	ErrCodeExtraction        = "EXTRACTION_FAILED"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeEncodeFailed      = "ENCODE_FAILED"
	ErrCodeWriteFailed       = "WRITE_FAILED"
)

// CaptureError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type CaptureError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// NewCaptureError creates a new CaptureError.
func NewCaptureError(code, message string, err error) *CaptureError {
	return &CaptureError{Code: code, Message: message, Err: err}
}

// IsCode reports whether any error in err's chain is a CaptureError with the
// given code.
func IsCode(err error, code string) bool {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
