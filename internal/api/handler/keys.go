package handler

import (
	"context"
	"net/http"

	mw "github.com/adsconnect/adsconnect/internal/api/middleware"
	"github.com/adsconnect/adsconnect/internal/api/response"
	"github.com/adsconnect/adsconnect/internal/connect"
	"github.com/adsconnect/adsconnect/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KeyManager issues, lists and revokes API keys.
type KeyManager interface {
	GenerateAPIKey(ctx context.Context, userID, name string) (*connect.APIKeyResponse, error)
	ListAPIKeys(ctx context.Context, userID string) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, userID string, keyID uuid.UUID) error
}

type createKeyResponse struct {
	response.Body
	*connect.APIKeyResponse
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/keys.
func NewCreateKeyHandler(svc KeyManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string `json:"name"`
			UserID string `json:"userId"`
		}
		if err := decodeBody(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
			return
		}
		userID, err := mw.ResolveUserID(r, req.UserID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		created, err := svc.GenerateAPIKey(r.Context(), userID, req.Name)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		response.Created(w, createKeyResponse{
			Body:           response.OK("API key created. Store it now; it will not be shown again."),
			APIKeyResponse: created,
		})
	}
}

type listKeysResponse struct {
	response.Body
	Keys []*models.APIKey `json:"keys"`
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/keys.
func NewListKeysHandler(svc KeyManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := queryUser(r)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		keys, err := svc.ListAPIKeys(r.Context(), userID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}

		response.JSON(w, listKeysResponse{Body: response.OK(""), Keys: keys})
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/keys/{keyID}.
func NewRevokeKeyHandler(svc KeyManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "keyID must be a valid UUID")
			return
		}
		userID, err := queryUser(r)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		if err := svc.RevokeAPIKey(r.Context(), userID, keyID); err != nil {
			writeError(w, r, logger, err)
			return
		}

		response.JSON(w, response.OK("API key revoked"))
	}
}
