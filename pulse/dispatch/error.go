package dispatch

import (
	"context"
	"strings"

	"github.com/teranos/autoboat/errors"
)

// ErrorCode classifies why a cycle failed
type ErrorCode string

const (
	ErrorCodeTransport   ErrorCode = "transport"
	ErrorCodeClosed      ErrorCode = "closed"
	ErrorCodeRateLimited ErrorCode = "rate_limited"
	ErrorCodePersistence ErrorCode = "persistence"
	ErrorCodeTimeout     ErrorCode = "timeout"
	ErrorCodeCanceled    ErrorCode = "canceled"
	ErrorCodeUnknown     ErrorCode = "unknown"
)

// ErrorContext is the structured form of a cycle error carried on events
type ErrorContext struct {
	Stage     string // fire, await, persist, record
	Code      ErrorCode
	Message   string
	Retryable bool
}

// ClassifyError categorizes err for observability. Marked sentinels win;
// message heuristics cover errors from libraries that do not mark.
func ClassifyError(stage string, err error) ErrorContext {
	if err == nil {
		return ErrorContext{Stage: stage, Code: ErrorCodeUnknown, Message: "unknown error"}
	}

	ec := ErrorContext{Stage: stage, Message: err.Error()}
	lower := strings.ToLower(ec.Message)

	switch {
	case errors.Is(err, errors.ErrClosed):
		ec.Code = ErrorCodeClosed
	case errors.Is(err, context.Canceled):
		ec.Code = ErrorCodeCanceled
	case errors.Is(err, errors.ErrCorrelationTimeout), errors.Is(err, context.DeadlineExceeded):
		ec.Code, ec.Retryable = ErrorCodeTimeout, true
	case errors.Is(err, errors.ErrPersistence):
		ec.Code, ec.Retryable = ErrorCodePersistence, true
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		ec.Code, ec.Retryable = ErrorCodeRateLimited, true
	case errors.Is(err, errors.ErrTransport),
		strings.Contains(lower, "connection"), strings.Contains(lower, "network"),
		strings.Contains(lower, "broken pipe"), strings.Contains(lower, "websocket"):
		ec.Code, ec.Retryable = ErrorCodeTransport, true
	case strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout"):
		ec.Code, ec.Retryable = ErrorCodeTimeout, true
	default:
		ec.Code, ec.Retryable = ErrorCodeUnknown, true
	}
	return ec
}
