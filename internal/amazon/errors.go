package amazon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for Amazon client failures.
var (
	ErrUnreachable   = errors.New("amazon unreachable")
	ErrTimeout       = errors.New("amazon request timeout")
	ErrGrantRejected = errors.New("amazon rejected token grant")
	ErrAPI           = errors.New("amazon advertising api error")
)

// ProviderError carries what Amazon said about a failed call so callers can
// surface the provider's own message.
type ProviderError struct {
	StatusCode  int
	Code        string
	Description string
	// Grant is set for token endpoint failures.
	Grant bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("amazon: status %d: %s", e.StatusCode, e.Message())
}

// Message returns the most specific human-readable text available.
func (e *ProviderError) Message() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Code != "":
		return e.Code
	default:
		return http.StatusText(e.StatusCode)
	}
}

func (e *ProviderError) Unwrap() error {
	if e.Grant {
		return ErrGrantRejected
	}
	return ErrAPI
}

// transient reports whether the call may succeed if repeated.
func (e *ProviderError) transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// AsProviderError extracts a ProviderError from err, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	if pe, ok := AsProviderError(err); ok {
		return pe.transient()
	}
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrTimeout)
}
