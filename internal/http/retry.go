package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	nethttp "net/http"
	"strings"
	"time"
)

// ErrorType represents different classes of errors for retry strategy
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates an expired session or failed authorization (401, 403)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates network/connection issues (timeouts, connection refused, etc.)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (5xx, 429, cloud throttling)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates errors that must not be retried (4xx, cancellation, invalid input)
	ErrorTypeFatal
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Config holds retry parameters for ExecuteWithRetry
type Config struct {
	// MaxRetries is the maximum number of attempts (default: 4)
	MaxRetries int
	// InitialDelay is the base delay for exponential backoff (default: 500ms)
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries (default: 15s)
	MaxDelay time.Duration
	// OnRetry is an optional callback invoked before each retry attempt
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     15 * time.Second,
	}
}

// ClassifyStatus maps an HTTP status onto a retry class.
func ClassifyStatus(status int) ErrorType {
	switch {
	case status < 400:
		return ErrorTypeSuccess
	case status == nethttp.StatusUnauthorized || status == nethttp.StatusForbidden:
		return ErrorTypeCredential
	case status == nethttp.StatusRequestTimeout || status == nethttp.StatusTooManyRequests:
		return ErrorTypeRetryable
	case status >= 500 && status != nethttp.StatusNotImplemented:
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

// ClassifyError determines the error type for retry strategy. Cancellation is
// always fatal.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeFatal
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return ClassifyStatus(sc.HTTPStatus())
	}

	errStr := strings.ToLower(err.Error())

	// S3 and Azure sinks report credential problems only as text.
	for _, s := range []string{"expiredtoken", "invalid token", "authenticationfailed", "authentication failed",
		"invalid sas", "signature not valid", "authorization failure", "unauthorized"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeCredential
		}
	}

	for _, s := range []string{"tls handshake timeout", "connection reset", "i/o timeout", "unexpected eof",
		"connection refused", "broken pipe", "timeout", "no such host"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeNetwork
		}
	}

	for _, s := range []string{"requesttimeout", "internalerror", "serviceunavailable", "slowdown", "throttl",
		"serverbusy", "server busy", "operationtimeout", "service unavailable"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeRetryable
		}
	}

	// Unknown errors are fatal to avoid retrying something that cannot succeed.
	return ErrorTypeFatal
}

// CalculateBackoff returns exponential backoff duration with full jitter
//
// Formula: random(0, min(maxDelay, initialDelay * 2^attempt))
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	base := time.Duration(1<<uint(min(attempt, 30))) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}
	return time.Duration(rand.Int63n(int64(base) + 1))
}

// ExecuteWithRetry runs operation until it succeeds, fails fatally, the
// attempts are used up or ctx is done.
//
//   - Credential errors are retried once after a short pause; the caller's
//     operation is expected to refresh its session.
//   - Network and retryable errors back off exponentially with full jitter.
//   - Fatal errors return immediately.
func ExecuteWithRetry(ctx context.Context, config Config, operation func() error) error {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}

	var lastErr error
	credentialRetried := false

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		var wait time.Duration
		switch errType {
		case ErrorTypeFatal, ErrorTypeSuccess:
			return err
		case ErrorTypeCredential:
			if credentialRetried {
				return err
			}
			credentialRetried = true
			wait = time.Second
		default:
			wait = CalculateBackoff(attempt+1, config.InitialDelay, config.MaxDelay)
		}

		if attempt == config.MaxRetries-1 {
			break
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return fmt.Errorf("deadline too close for retry: %w", err)
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, errType)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries, lastErr)
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
