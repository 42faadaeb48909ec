package handler

import (
	"context"
	"net/http"

	mw "github.com/adsconnect/adsconnect/internal/api/middleware"
	"github.com/adsconnect/adsconnect/internal/api/response"
	"github.com/adsconnect/adsconnect/pkg/models"
	"go.uber.org/zap"
)

// Connections reports and removes a user's Amazon connection.
type Connections interface {
	CheckConnectionStatus(ctx context.Context, userID string) (bool, error)
	Disconnect(ctx context.Context, userID string) error
	ListAdvertisers(ctx context.Context, userID string) ([]*models.AdvertiserProfile, error)
}

type connectionResponse struct {
	response.Body
	Connected bool `json:"connected"`
}

// queryUser resolves the acting user for requests without a body.
func queryUser(r *http.Request) (string, error) {
	return mw.ResolveUserID(r, r.URL.Query().Get("userId"))
}

// NewConnectionStatusHandler returns an http.HandlerFunc for GET /api/v1/connection.
func NewConnectionStatusHandler(svc Connections, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := queryUser(r)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		connected, err := svc.CheckConnectionStatus(r.Context(), userID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		response.JSON(w, connectionResponse{Body: response.OK(""), Connected: connected})
	}
}

// NewDisconnectHandler returns an http.HandlerFunc for DELETE /api/v1/connection.
func NewDisconnectHandler(svc Connections, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := queryUser(r)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		if err := svc.Disconnect(r.Context(), userID); err != nil {
			writeError(w, r, logger, err)
			return
		}

		response.JSON(w, response.OK("Amazon account disconnected"))
	}
}

type advertisersResponse struct {
	response.Body
	Advertisers []*models.AdvertiserProfile `json:"advertisers"`
}

// NewListAdvertisersHandler returns an http.HandlerFunc for GET /api/v1/advertisers.
func NewListAdvertisersHandler(svc Connections, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := queryUser(r)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		profiles, err := svc.ListAdvertisers(r.Context(), userID)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		if profiles == nil {
			profiles = []*models.AdvertiserProfile{}
		}

		response.JSON(w, advertisersResponse{Body: response.OK(""), Advertisers: profiles})
	}
}
