package domain

import (
	"context"
	"time"
)

// JobRecord is the persisted summary of a finished job. It never carries the
// credential or image bytes.
type JobRecord struct {
	ID             string              `json:"id"`
	Provider       string              `json:"provider"`
	Model          string              `json:"model"`
	SourceLanguage string              `json:"source_language"`
	Context        string              `json:"context"`
	State          JobState            `json:"state"`
	Submitted      int                 `json:"submitted"`
	Truncated      int                 `json:"truncated"`
	Succeeded      int                 `json:"succeeded"`
	Blocked        int                 `json:"blocked"`
	Failed         int                 `json:"failed"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	Results        []TranslationResult `json:"results"`
	CreatedAt      time.Time           `json:"created_at"`
	FinishedAt     time.Time           `json:"finished_at"`
}

// JobRepository persists finished job summaries.
type JobRepository interface {
	Save(ctx context.Context, rec *JobRecord) error
	GetByID(ctx context.Context, id string) (*JobRecord, error)
	ListRecent(ctx context.Context, limit int) ([]JobRecord, error)
}
