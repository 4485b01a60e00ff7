package history

// Every statement starts with a "--sql <name>" marker; see infra.SQLRunner.

const qEnsureSchema = `--sql history.ensure_schema
CREATE TABLE IF NOT EXISTS translation_jobs (
    id              UUID PRIMARY KEY,
    provider        TEXT NOT NULL DEFAULT '',
    model           TEXT NOT NULL DEFAULT '',
    source_language TEXT NOT NULL DEFAULT '',
    context_style   TEXT NOT NULL DEFAULT '',
    state           TEXT NOT NULL,
    submitted       INTEGER NOT NULL DEFAULT 0,
    truncated       INTEGER NOT NULL DEFAULT 0,
    succeeded       INTEGER NOT NULL DEFAULT 0,
    blocked         INTEGER NOT NULL DEFAULT 0,
    failed          INTEGER NOT NULL DEFAULT 0,
    error_message   TEXT,
    results         JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at      TIMESTAMPTZ NOT NULL,
    finished_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS translation_jobs_created_at_idx ON translation_jobs (created_at DESC);
`

const qGetJob = `--sql history.get
SELECT id::text, provider, model, source_language, context_style, state, submitted, truncated, succeeded, blocked, failed, COALESCE(error_message, ''), results, created_at, finished_at
FROM translation_jobs
WHERE id = $1;
`

const qListJobs = `--sql history.list_recent
SELECT id::text, provider, model, source_language, context_style, state, submitted, truncated, succeeded, blocked, failed, COALESCE(error_message, ''), results, created_at, finished_at
FROM translation_jobs
ORDER BY created_at DESC
LIMIT $1;
`

const qSaveJob = `--sql history.save
INSERT INTO translation_jobs (id, provider, model, source_language, context_style, state, submitted, truncated, succeeded, blocked, failed, error_message, results, created_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE
SET state = EXCLUDED.state,
    succeeded = EXCLUDED.succeeded,
    blocked = EXCLUDED.blocked,
    failed = EXCLUDED.failed,
    error_message = EXCLUDED.error_message,
    results = EXCLUDED.results,
    finished_at = EXCLUDED.finished_at;
`
