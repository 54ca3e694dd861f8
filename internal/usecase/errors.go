package usecase

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorCode string

const (
	ErrorInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrorRateLimited       ErrorCode = "RATE_LIMITED"
	ErrorUpstream          ErrorCode = "UPSTREAM_ERROR"
	ErrorMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// Providers do not agree on how they signal quota exhaustion, so the message
// is checked as well as the status code.
var rateLimitSignatures = []string{
	"too many requests",
	"resource_exhausted",
	"quota",
	"rate limit",
}

// IsRateLimited reports whether err is an upstream rate-limit failure.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var ue *Error
	if errors.As(err, &ue) && ue.Code == ErrorRateLimited {
		return true
	}
	// A definite status wins over whatever text the body carries.
	if status, ok := upstreamStatusCode(err); ok {
		return status == http.StatusTooManyRequests
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") {
		return true
	}
	for _, sig := range rateLimitSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// classifyUpstream turns a raw client error into a typed *Error. prefix names
// the call site in Reason, e.g. "chat" gives "chat_rate_limited".
func classifyUpstream(prefix string, err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	if IsRateLimited(err) {
		return newError(ErrorRateLimited, prefix+"_rate_limited", err)
	}
	return newError(ErrorUpstream, prefix+"_upstream_error", err)
}
