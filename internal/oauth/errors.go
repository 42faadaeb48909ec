package oauth

import "errors"

var (
	ErrConfiguration       = errors.New("amazon oauth client is not configured")
	ErrNotConnected        = errors.New("amazon account not connected")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidState        = errors.New("invalid or expired state")
	ErrExchangeFailed      = errors.New("failed to exchange authorization code")
	ErrRefreshFailed       = errors.New("failed to refresh amazon token")
	ErrProviderUnavailable = errors.New("amazon token endpoint unavailable")
)
