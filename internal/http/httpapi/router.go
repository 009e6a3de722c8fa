package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"genie/internal/http/handlers"
	"genie/internal/middleware"
)

func NewRouter(app *handlers.App, logger zerolog.Logger, corsOrigins []string) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logger(logger), middleware.CORS(corsOrigins))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/config", app.ClientConfig)
		r.Post("/generate-and-store", app.GenerateAndStore)
		r.Post("/images/save", app.SaveImage)
		r.Post("/share", app.CreateShare)
		r.Get("/share/{id}", app.GetShare)
	})

	return r
}
