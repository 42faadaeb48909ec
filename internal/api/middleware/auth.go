package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/adsconnect/adsconnect/internal/api/response"
	"github.com/adsconnect/adsconnect/internal/connect"
	"github.com/adsconnect/adsconnect/internal/identity"
	"github.com/adsconnect/adsconnect/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Auth resolves the caller from the Authorization header. It accepts a
// session JWT, a user API key, or the service token.
type Auth struct {
	keys         store.APIKeyStore
	verifier     identity.Verifier
	serviceToken string
	logger       *zap.Logger
}

// NewAuth creates a new Auth middleware. An empty serviceToken disables
// service authentication.
func NewAuth(keys store.APIKeyStore, verifier identity.Verifier, serviceToken string, logger *zap.Logger) *Auth {
	return &Auth{
		keys:         keys,
		verifier:     verifier,
		serviceToken: serviceToken,
		logger:       logger.Named("auth"),
	}
}

// Authenticate validates the Bearer credential and sets the user id (or the
// service marker) in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHENTICATED", "Missing or invalid Authorization header")
			return
		}

		switch {
		case a.serviceToken != "" && subtle.ConstantTimeCompare([]byte(raw), []byte(a.serviceToken)) == 1:
			r = r.WithContext(SetService(r.Context()))

		case strings.HasPrefix(raw, connect.KeyPrefix):
			ctx, ok := a.apiKey(w, r, raw)
			if !ok {
				return
			}
			r = r.WithContext(ctx)

		default:
			userID, err := a.verifier.Verify(r.Context(), raw)
			if err != nil {
				response.Error(w, http.StatusUnauthorized,
					"UNAUTHENTICATED", "Invalid or expired session")
				return
			}
			ctx := SetUserID(r.Context(), userID)
			ctx = setSessionToken(ctx, raw)
			r = r.WithContext(ctx)
		}

		next.ServeHTTP(w, r)
	})
}

// apiKey authenticates a raw API key. On failure it has already written the response.
func (a *Auth) apiKey(w http.ResponseWriter, r *http.Request, rawKey string) (context.Context, bool) {
	if len(rawKey) < connect.LookupPrefixLen {
		response.Error(w, http.StatusUnauthorized,
			"UNAUTHENTICATED", "Invalid API key format")
		return nil, false
	}

	prefix := rawKey[:connect.LookupPrefixLen]

	keys, err := a.keys.GetAPIKeyByPrefix(r.Context(), prefix)
	if err != nil {
		a.logger.Error("api key lookup failed", zap.String("key_prefix", prefix), zap.Error(err))
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "Failed to validate API key")
		return nil, false
	}

	for _, key := range keys {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) != nil {
			continue
		}

		ctx := SetUserID(r.Context(), key.UserID)
		ctx = setKeyPrefix(ctx, prefix)

		go func() {
			if err := a.keys.UpdateAPIKeyLastUsed(context.Background(), key.ID); err != nil {
				a.logger.Warn("updating api key usage failed", zap.String("key_id", key.ID.String()), zap.Error(err))
			}
		}()
		return ctx, true
	}

	response.Error(w, http.StatusUnauthorized,
		"UNAUTHENTICATED", "Invalid API key")
	return nil, false
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
