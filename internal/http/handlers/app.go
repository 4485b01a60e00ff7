package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"shotlate/internal/batch"
	"shotlate/internal/domain"
	"shotlate/internal/infra"
	"shotlate/internal/middleware"
	"shotlate/internal/providers"
)

// Runner executes translation jobs.
type Runner interface {
	Run(ctx context.Context, job domain.TranslationJob, progress batch.ProgressFunc) (*batch.Report, error)
}

type App struct {
	Config   *infra.Config
	Registry *providers.Registry
	Runner   Runner
	// History is nil when no database is configured.
	History domain.JobRepository
	Logger  *infra.Logger
	// Countries tags access logs; nil disables the lookup.
	Countries middleware.CountryResolver
}

func NewApp(cfg *infra.Config, registry *providers.Registry, runner Runner, history domain.JobRepository, logger *infra.Logger) *App {
	if cfg == nil {
		cfg = &infra.Config{}
	}
	return &App{
		Config:   cfg,
		Registry: registry,
		Runner:   runner,
		History:  history,
		Logger:   infra.LoggerOrDiscard(logger),
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errorDetail{Code: errCode, Message: message}})
}
