package middleware

import (
	"context"
	"errors"
	"net/http"
)

type contextKey string

const (
	userIDKey       contextKey = "user_id"
	keyPrefixKey    contextKey = "key_prefix"
	sessionTokenKey contextKey = "session_token"
	serviceKey      contextKey = "service"
)

var (
	// ErrForbidden means a user credential asked to act for another user.
	ErrForbidden = errors.New("credential cannot act for the requested user")
	// ErrUserRequired means a service credential did not name a user.
	ErrUserRequired = errors.New("userId is required")
)

func SetUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func GetUserID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(userIDKey).(string)
	return id, ok && id != ""
}

// GetSessionToken returns the raw session JWT when the request was
// authenticated with one.
func GetSessionToken(r *http.Request) (string, bool) {
	tok, ok := r.Context().Value(sessionTokenKey).(string)
	return tok, ok
}

// SetService marks the request as made with the service token.
func SetService(ctx context.Context) context.Context {
	return context.WithValue(ctx, serviceKey, true)
}

func IsService(r *http.Request) bool {
	v, _ := r.Context().Value(serviceKey).(bool)
	return v
}

// ResolveUserID returns the user a request acts for. Service requests act
// for requested; user requests act for themselves and may only name themselves.
func ResolveUserID(r *http.Request, requested string) (string, error) {
	if IsService(r) {
		if requested == "" {
			return "", ErrUserRequired
		}
		return requested, nil
	}

	userID, ok := GetUserID(r)
	if !ok {
		return "", ErrForbidden
	}
	if requested != "" && requested != userID {
		return "", ErrForbidden
	}
	return userID, nil
}

func setSessionToken(ctx context.Context, tok string) context.Context {
	return context.WithValue(ctx, sessionTokenKey, tok)
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
