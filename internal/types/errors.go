package types

import (
	"context"
	"errors"
	"fmt"
)

// Error codes attached to ScrapeError.
const (
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeTimeout        = "SCRAPE_TIMEOUT"
	ErrCodeMissingHeading = "MISSING_HEADING"
	ErrCodeInvalidRecord  = "INVALID_RECORD"
	ErrCodeImageDownload  = "IMAGE_DOWNLOAD_FAILED"
	ErrCodeInvalidConfig  = "INVALID_CONFIG"
)

var (
	// ErrMissingHeading means the page has no primary heading, so it is not a listing.
	ErrMissingHeading = errors.New("primary heading not found")

	// ErrInvalidRecord means extracted values violate a record invariant.
	ErrInvalidRecord = errors.New("invalid listing record")

	// ErrInvalidConfig means the configuration was rejected before any work started.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ScrapeError is an error carrying a code for logs and API responses.
type ScrapeError struct {
	Code    string
	Message string
	Err     error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ErrorCode returns the code of the outermost ScrapeError in err's chain.
func ErrorCode(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsRetryable reports whether a listing task that failed with err may be attempted again.
// Record construction faults are extraction bugs and cancelled work stays cancelled.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidRecord) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
