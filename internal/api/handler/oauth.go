package handler

import (
	"context"
	"net/http"

	mw "github.com/adsconnect/adsconnect/internal/api/middleware"
	"github.com/adsconnect/adsconnect/internal/api/response"
	"github.com/adsconnect/adsconnect/pkg/models"
	"go.uber.org/zap"
)

// AuthFlow is the authorization-code flow the OAuth handlers depend on.
type AuthFlow interface {
	AuthorizeURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code, state string) (*models.TokenRecord, error)
}

// NewExchangeHandler returns an http.HandlerFunc for POST /api/v1/amazon/exchange.
// The route is public: the state parameter identifies the user.
func NewExchangeHandler(flow AuthFlow, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code  string `json:"code"`
			State string `json:"state"`
		}
		if err := decodeBody(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
			return
		}
		if req.Code == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Authorization code is required")
			return
		}

		if _, err := flow.ExchangeCode(r.Context(), req.Code, req.State); err != nil {
			writeError(w, r, logger, err)
			return
		}

		response.JSON(w, response.OK("Amazon account connected successfully"))
	}
}

type authorizeURLResponse struct {
	response.Body
	URL string `json:"url"`
}

// NewAuthorizeURLHandler returns an http.HandlerFunc for GET /api/v1/amazon/authorize-url.
// Only session credentials may start the flow, since the session token becomes the state.
func NewAuthorizeURLHandler(flow AuthFlow, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := mw.GetSessionToken(r)
		if !ok {
			response.Error(w, http.StatusForbidden, "FORBIDDEN", "A user session is required to connect an Amazon account")
			return
		}

		url, err := flow.AuthorizeURL(session)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}

		response.JSON(w, authorizeURLResponse{Body: response.OK(""), URL: url})
	}
}
