package handlers

import (
	"net/http"

	"shotlate/internal/domain"
	"shotlate/internal/providers"
)

type providerEntry struct {
	providers.Info
	ServerCredential bool `json:"server_credential"`
}

type providersResponse struct {
	Providers       []providerEntry         `json:"providers"`
	SourceLanguages []domain.SourceLanguage `json:"source_languages"`
	ContextStyles   []domain.ContextStyle   `json:"context_styles"`
	MaxBatchSize    int                     `json:"max_batch_size"`
}

// ListProviders describes the registered backends and the job options.
func (a *App) ListProviders(w http.ResponseWriter, r *http.Request) {
	infos := a.Registry.Infos()
	entries := make([]providerEntry, 0, len(infos))
	for _, info := range infos {
		settings, _ := a.Config.Provider(info.ID)
		entries = append(entries, providerEntry{Info: info, ServerCredential: settings.APIKey != ""})
	}
	a.json(w, http.StatusOK, providersResponse{
		Providers:       entries,
		SourceLanguages: domain.SourceLanguages,
		ContextStyles:   domain.ContextStyles,
		MaxBatchSize:    domain.MaxBatchSize,
	})
}
