package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/adsconnect/adsconnect/internal/amazon"
	mw "github.com/adsconnect/adsconnect/internal/api/middleware"
	"github.com/adsconnect/adsconnect/internal/api/response"
	"github.com/adsconnect/adsconnect/internal/oauth"
	"github.com/adsconnect/adsconnect/internal/syncer"
	"go.uber.org/zap"
)

const unavailableMessage = "Amazon is temporarily unavailable"

// writeError maps a service error to its HTTP status and error code.
// Unrecognised errors become a 500 and are logged; their text never reaches the caller.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, mw.ErrForbidden):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "Cannot act for another user")
	case errors.Is(err, mw.ErrUserRequired):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "userId is required")
	case errors.Is(err, oauth.ErrInvalidRequest):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, oauth.ErrConfiguration):
		response.Error(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", "Amazon integration is not configured")
	case errors.Is(err, oauth.ErrNotConnected):
		response.Error(w, http.StatusNotFound, "NOT_CONNECTED", "Amazon account not connected")
	case errors.Is(err, oauth.ErrInvalidState):
		response.Error(w, http.StatusUnauthorized, "INVALID_STATE", "Invalid or expired state parameter")
	case errors.Is(err, oauth.ErrExchangeFailed):
		response.Error(w, http.StatusBadRequest, "EXCHANGE_FAILED", err.Error())
	case errors.Is(err, oauth.ErrRefreshFailed):
		response.Error(w, http.StatusBadRequest, "REFRESH_FAILED", err.Error())
	case errors.Is(err, syncer.ErrNoProfiles):
		response.Error(w, http.StatusNotFound, "NO_PROFILES", "No advertiser profiles found. Sync profiles first.")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request deadline exceeded", zap.String("path", r.URL.Path), zap.Error(err))
		response.Error(w, http.StatusGatewayTimeout, "TIMEOUT",
			"Sync did not finish in time; queue it with POST /api/v1/sync/tasks")
	case errors.Is(err, syncer.ErrUpstream), errors.Is(err, oauth.ErrProviderUnavailable):
		logger.Warn("upstream request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		response.Error(w, http.StatusBadGateway, "UPSTREAM_ERROR", upstreamMessage(err))
	default:
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	}
}

// upstreamMessage is the caller-facing text for a failed Amazon call: what
// Amazon said when it answered, otherwise a fixed message. Transport details
// stay in the logs.
func upstreamMessage(err error) string {
	var ue *syncer.UpstreamError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	if pe, ok := amazon.AsProviderError(err); ok {
		return pe.Message()
	}
	return unavailableMessage
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
