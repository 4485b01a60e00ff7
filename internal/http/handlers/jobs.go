package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shotlate/internal/domain"
	"shotlate/internal/export"
)

// ListJobs returns recent job history.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		a.error(w, http.StatusNotFound, "history_disabled", "job history is not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = v
	}
	records, err := a.History.ListRecent(r.Context(), limit)
	if err != nil {
		a.requestLogger(r).Error().Err(err).Msg("api: list jobs")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	if records == nil {
		records = []domain.JobRecord{}
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": records})
}

// GetJob returns one recorded job.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, rec)
}

// GetJobArchive streams a zip with the job manifest and one text file per image.
func (a *App) GetJobArchive(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	data, err := export.Archive(*rec)
	if err != nil {
		a.requestLogger(r).Error().Err(err).Str("job_id", rec.ID).Msg("api: archive job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="shotlate-%s.zip"`, rec.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) loadJob(w http.ResponseWriter, r *http.Request) (*domain.JobRecord, bool) {
	if a.History == nil {
		a.error(w, http.StatusNotFound, "history_disabled", "job history is not configured")
		return nil, false
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return nil, false
	}
	// ids are UUIDs; anything else cannot exist
	if _, err := uuid.Parse(jobID); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	rec, err := a.History.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return nil, false
		}
		a.requestLogger(r).Error().Err(err).Str("job_id", jobID).Msg("api: get job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return nil, false
	}
	return rec, true
}
