package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"shotlate/internal/batch"
	"shotlate/internal/domain"
	"shotlate/internal/infra"
	"shotlate/internal/middleware"
)

const (
	defaultProvider   = "gemini"
	multipartMemory   = 32 << 20
	defaultUploadSize = 64 << 20
	imagesField       = "images"
)

type resultView struct {
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Status   domain.Status    `json:"status"`
	State    domain.ItemState `json:"state"`
	Text     *string          `json:"text"`
	Detail   *string          `json:"detail"`
	StopCode string           `json:"stop_code,omitempty"`
}

type translationResponse struct {
	JobID     string          `json:"job_id"`
	State     domain.JobState `json:"state"`
	Provider  string          `json:"provider"`
	Model     string          `json:"model"`
	Truncated int             `json:"truncated"`
	Warnings  []string        `json:"warnings"`
	Results   []resultView    `json:"results"`
}

type progressView struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
}

// CreateTranslation runs one batch synchronously. With Accept:
// text/event-stream the progress is streamed as server-sent events.
func (a *App) CreateTranslation(w http.ResponseWriter, r *http.Request) {
	maxBytes := a.Config.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("upload exceeds %d MB", maxBytes>>20))
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "expected multipart/form-data")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	job, err := a.jobFromForm(r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	a.requestLogger(r).Info().
		Str("provider", job.Provider.Provider).
		Int("images", len(job.Items)).
		Bool("stream", wantsEventStream(r)).
		Msg("api: translation requested")

	if wantsEventStream(r) {
		a.streamTranslation(w, r, job)
		return
	}

	report, err := a.Runner.Run(r.Context(), job, nil)
	if err != nil {
		a.requestLogger(r).Warn().Err(err).Msg("api: translation aborted")
		a.error(w, http.StatusBadRequest, domain.ErrorKind(err), batch.AbortMessage(err))
		return
	}
	a.json(w, http.StatusOK, newTranslationResponse(report))
}

func (a *App) jobFromForm(r *http.Request) (domain.TranslationJob, error) {
	form := r.MultipartForm
	provider := strings.ToLower(strings.TrimSpace(formValue(form, "provider")))
	if provider == "" {
		provider = defaultProvider
	}

	credential := strings.TrimSpace(formValue(form, "api_key"))
	if credential == "" {
		if settings, ok := a.Config.Provider(provider); ok {
			credential = settings.APIKey
		}
	}

	override := false
	if adapter, err := a.Registry.Lookup(provider); err == nil {
		override = adapter.SupportsModerationOverride()
	}
	if raw := strings.TrimSpace(formValue(form, "moderation_override")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.TranslationJob{}, fmt.Errorf("moderation_override must be a boolean")
		}
		override = v
	}

	items, err := readImages(form.File[imagesField])
	if err != nil {
		return domain.TranslationJob{}, err
	}

	return domain.TranslationJob{
		Items: items,
		Provider: domain.ProviderConfig{
			Provider:           provider,
			Model:              strings.TrimSpace(formValue(form, "model")),
			Credential:         credential,
			ModerationOverride: override,
		},
		SourceLanguage: domain.ParseSourceLanguage(formValue(form, "source_language")),
		Context:        domain.ParseContextStyle(formValue(form, "context")),
	}, nil
}

func readImages(files []*multipart.FileHeader) ([]domain.ImageItem, error) {
	items := make([]domain.ImageItem, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("read image %d: %v", i, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read image %d: %v", i, err)
		}
		name := fh.Filename
		if name == "" {
			name = fmt.Sprintf("image-%d", i+1)
		}
		items = append(items, domain.ImageItem{Name: name, Data: data})
	}
	return items, nil
}

func (a *App) streamTranslation(w http.ResponseWriter, r *http.Request, job domain.TranslationJob) {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	report, err := a.Runner.Run(r.Context(), job, func(p domain.Progress) {
		a.writeEvent(w, rc, "progress", progressView{Completed: p.Completed, Total: p.Total, Fraction: p.Fraction()})
	})
	if err != nil {
		a.writeEvent(w, rc, "error", errorBody{Error: errorDetail{Code: domain.ErrorKind(err), Message: batch.AbortMessage(err)}})
		return
	}
	a.writeEvent(w, rc, "result", newTranslationResponse(report))
}

func (a *App) writeEvent(w io.Writer, rc *http.ResponseController, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		a.Logger.Error().Err(err).Str("event", event).Msg("api: encode event")
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return
	}
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		a.Logger.Debug().Err(err).Msg("api: flush event")
	}
}

func newTranslationResponse(report *batch.Report) translationResponse {
	resp := translationResponse{
		JobID:     report.JobID,
		State:     report.State,
		Provider:  report.Provider,
		Model:     report.Model,
		Truncated: report.Truncated,
		Warnings:  report.Warnings,
		Results:   make([]resultView, 0, len(report.Results)),
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	for _, res := range report.Results {
		view := resultView{Index: res.Index, Name: res.Name, Status: res.Status, State: res.State, StopCode: res.StopCode}
		if res.Status == domain.StatusSuccess || res.Text != "" {
			text := res.Text
			view.Text = &text
		}
		if res.Detail != "" {
			detail := res.Detail
			view.Detail = &detail
		}
		resp.Results = append(resp.Results, view)
	}
	return resp
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func formValue(form *multipart.Form, key string) string {
	if form == nil {
		return ""
	}
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// requestLogger returns the app logger tagged with the request id.
func (a *App) requestLogger(r *http.Request) *infra.Logger {
	l := a.Logger.With().Str("request_id", middleware.RequestIDFromContext(r.Context())).Logger()
	return &l
}
