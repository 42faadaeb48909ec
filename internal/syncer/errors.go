package syncer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/adsconnect/adsconnect/internal/amazon"
)

var (
	ErrUpstream   = errors.New("amazon advertising api request failed")
	ErrNoProfiles = errors.New("no advertiser profiles found")
)

// unreachableMessage replaces transport errors in caller-visible results.
const unreachableMessage = "Amazon Advertising API unreachable"

// UpstreamError is a failed Advertising API listing. It matches ErrUpstream
// and the underlying amazon error.
type UpstreamError struct {
	Status  int
	Message string
	cause   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", ErrUpstream, e.Message, e.Status)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.cause}
}

func upstreamError(err error) *UpstreamError {
	if pe, ok := amazon.AsProviderError(err); ok {
		return &UpstreamError{Status: pe.StatusCode, Message: pe.Message(), cause: err}
	}
	return &UpstreamError{Status: http.StatusBadGateway, Message: unreachableMessage, cause: err}
}
