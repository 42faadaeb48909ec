package api

import (
	"net/http"
	"time"

	mw "github.com/adsconnect/adsconnect/internal/api/middleware"
	"github.com/adsconnect/adsconnect/internal/api/response"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Logger    *zap.Logger
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	// InlineSyncTimeout bounds the synchronous sync routes. Zero means no bound.
	InlineSyncTimeout time.Duration

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	ExchangeHandler     http.HandlerFunc
	AuthorizeURLHandler http.HandlerFunc

	SyncProfilesHandler  http.HandlerFunc
	SyncCampaignsHandler http.HandlerFunc
	EnqueueTaskHandler   http.HandlerFunc
	TaskStatusHandler    http.HandlerFunc

	ConnectionStatusHandler http.HandlerFunc
	DisconnectHandler       http.HandlerFunc
	ListAdvertisersHandler  http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Post("/api/v1/amazon/exchange", orNotImplemented(deps.ExchangeHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/amazon/authorize-url", orNotImplemented(deps.AuthorizeURLHandler))

		r.With(mw.Deadline(deps.InlineSyncTimeout)).Post("/api/v1/sync/profiles", orNotImplemented(deps.SyncProfilesHandler))
		r.With(mw.Deadline(deps.InlineSyncTimeout)).Post("/api/v1/sync/campaigns", orNotImplemented(deps.SyncCampaignsHandler))
		r.Post("/api/v1/sync/tasks", orNotImplemented(deps.EnqueueTaskHandler))
		r.Get("/api/v1/sync/tasks/{taskID}", orNotImplemented(deps.TaskStatusHandler))

		r.Get("/api/v1/connection", orNotImplemented(deps.ConnectionStatusHandler))
		r.Delete("/api/v1/connection", orNotImplemented(deps.DisconnectHandler))
		r.Get("/api/v1/advertisers", orNotImplemented(deps.ListAdvertisersHandler))

		r.Post("/api/v1/keys", orNotImplemented(deps.CreateKeyHandler))
		r.Get("/api/v1/keys", orNotImplemented(deps.ListKeysHandler))
		r.Delete("/api/v1/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented")
	}
}
