// Package history keeps an optional PostgreSQL log of finished jobs.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"shotlate/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store implements domain.JobRepository.
type Store struct {
	db DBTX
}

var _ domain.JobRepository = (*Store)(nil)

// New creates a job history store.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, qEnsureSchema); err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

// Save upserts a job record. Result texts are stored; credentials never reach
// this layer.
func (s *Store) Save(ctx context.Context, rec *domain.JobRecord) error {
	results := rec.Results
	if results == nil {
		results = []domain.TranslationResult{}
	}
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("history: marshal results: %w", err)
	}
	_, err = s.db.Exec(ctx, qSaveJob,
		rec.ID,
		rec.Provider,
		rec.Model,
		rec.SourceLanguage,
		rec.Context,
		string(rec.State),
		rec.Submitted,
		rec.Truncated,
		rec.Succeeded,
		rec.Blocked,
		rec.Failed,
		nullableString(rec.ErrorMessage),
		payload,
		rec.CreatedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("history: save job %s: %w", rec.ID, err)
	}
	return nil
}

// GetByID fetches one job.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	row := s.db.QueryRow(ctx, qGetJob, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("history: get job %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns the newest jobs first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.JobRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.db.Query(ctx, qListJobs, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.JobRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan job: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list jobs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.JobRecord, error) {
	var (
		rec     domain.JobRecord
		state   string
		results []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Provider,
		&rec.Model,
		&rec.SourceLanguage,
		&rec.Context,
		&state,
		&rec.Submitted,
		&rec.Truncated,
		&rec.Succeeded,
		&rec.Blocked,
		&rec.Failed,
		&rec.ErrorMessage,
		&results,
		&rec.CreatedAt,
		&rec.FinishedAt,
	); err != nil {
		return nil, err
	}
	rec.State = domain.JobState(state)
	if len(results) > 0 {
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
	}
	return &rec, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
