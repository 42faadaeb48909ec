package handler

import (
	"context"
	"net/http"

	"github.com/adsconnect/adsconnect/internal/api/response"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	response.Body
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health that
// probes the database and the cache.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}
		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := cache.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Status(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Services: checks})
			return
		}

		response.JSON(w, healthResponse{Body: response.OK(""), Status: "ok", Services: checks})
	}
}
