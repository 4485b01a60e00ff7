package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shotlate/internal/http/handlers"
	"shotlate/internal/infra"
	"shotlate/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	cfg := app.Config
	logger := *infra.LoggerOrDiscard(app.Logger)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP(cfg.TrustedProxies),
		middleware.Logger(logger, app.Countries),
		chimw.Recoverer,
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/providers", app.ListProviders)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)

		r.Route("/translations", func(r chi.Router) {
			r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/", app.CreateTranslation)
			r.Get("/", app.ListJobs)
			r.Get("/{job_id}", app.GetJob)
			r.Get("/{job_id}/archive", app.GetJobArchive)
		})
	})

	return r
}
