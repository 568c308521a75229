package verepo

import (
	"errors"
	"fmt"
	"log"
	"time"

	"verepo/internal/quota"
)

// Public error codes returned to API clients and, for pipeline failures,
// persisted on the result record.
const (
	CodeInvalidURL     = "INVALID_URL"
	CodeRateLimited    = "RATE_LIMITED"
	CodeCloneFailed    = "CLONE_FAILED"
	CodeTooLarge       = "TOO_LARGE"
	CodeNoSource       = "NO_SOURCE"
	CodeAnalysisFailed = "ANALYSIS_FAILED"
	CodeInternal       = "INTERNAL"
)

// Failure is a request failure with a stable machine code. The message is
// safe to show to end users.
type Failure struct {
	Code       string
	HTTPStatus int
	Message    string
	// ResetIn is set on RATE_LIMITED so clients can show a countdown.
	ResetIn time.Duration
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// AsFailure unwraps a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func internalFailure(err error) *Failure {
	log.Printf("[verepo] internal error: %v", err)
	return &Failure{
		Code:       CodeInternal,
		HTTPStatus: 500,
		Message:    "Internal error. Please try again later.",
	}
}

func rateLimited(check quota.CheckResult) *Failure {
	mins := int(check.ResetIn.Minutes())
	hours := mins / 60
	var in string
	if hours > 0 {
		in = fmt.Sprintf("%dh %dm", hours, mins%60)
	} else {
		in = fmt.Sprintf("%dm", mins)
	}
	return &Failure{
		Code:       CodeRateLimited,
		HTTPStatus: 429,
		Message:    fmt.Sprintf("%s. Resets in %s.", check.Reason, in),
		ResetIn:    check.ResetIn,
	}
}
