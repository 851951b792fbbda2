package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	goerrors "github.com/kbukum/depguard/errors"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// DefaultRetryCondition decides retryability from the structure of err.
//
// Order of precedence: guard errors (rejections and open breakers are never
// retried, execution timeouts are), cancellation, AppError.Retryable, HTTP
// status carriers, network and errno failures. Anything still unclassified
// falls through to LegacyMessageRetryable.
func DefaultRetryCondition(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrRejected), errors.Is(err, ErrCircuitOpen):
		return false
	case errors.Is(err, ErrExecutionTimeout), errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return false
	}

	if appErr, ok := goerrors.AsAppError(err); ok {
		return appErr.Retryable
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return retryableStatus(sc.StatusCode())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	for _, errno := range retryableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	return LegacyMessageRetryable(err)
}

var retryableErrnos = []error{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.ETIMEDOUT,
	syscall.EPIPE,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
}

// retryableStatus: 429 and 5xx retry, other 4xx do not.
func retryableStatus(code int) bool {
	switch {
	case code == 429:
		return true
	case code >= 400 && code < 500:
		return false
	default:
		return true
	}
}

var (
	networkPhrases = []string{
		"network", "timeout", "timed out", "econnreset", "connection reset",
		"econnrefused", "connection refused", "enotfound", "no such host",
		"eai_again", "socket hang up",
	}
	rateLimitPhrases = []string{"rate limit", "too many requests"}
	statusPattern    = regexp.MustCompile(`\b([45]\d\d)\b`)
)

// LegacyMessageRetryable classifies err by matching substrings of its
// message. It exists for errors produced by clients that carry no structure;
// new code should return an AppError or a StatusCoder instead.
//
// Network, timeout, DNS and rate-limit phrasing retry; a 4xx status in the
// message does not, unless it is 429; anything else retries.
func LegacyMessageRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	for _, p := range networkPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	for _, p := range rateLimitPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return retryableStatus(code)
	}
	return true
}
