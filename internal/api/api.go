package api

import (
	"net/http"

	"assistant-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Service interface {
	AddRoutes(r chi.Router)
}

// NewRouter mounts the health and metrics endpoints and, behind RequireUser,
// the routes of every service.
func NewRouter(media *MediaService, services ...Service) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", RestHandler(func(r *http.Request) (any, error) {
		return api.HealthResponse{Status: "ok"}, nil
	}))
	r.Handle("/metrics", promhttp.Handler())

	if media != nil {
		media.AddPublicRoutes(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		if media != nil {
			media.AddRoutes(r)
		}
		for _, s := range services {
			s.AddRoutes(r)
		}
	})

	return r
}
