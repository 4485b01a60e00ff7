// Package batch drives one translation job end to end: pre-flight
// validation, prompt composition, the ordered per-item pipeline and progress
// reporting.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"shotlate/internal/classify"
	"shotlate/internal/domain"
	"shotlate/internal/imagecodec"
	"shotlate/internal/infra"
	"shotlate/internal/metrics"
	"shotlate/internal/prompt"
	"shotlate/internal/providers"
	"shotlate/internal/providers/httpx"
)

const canceledDetail = "job canceled"

// ProgressFunc receives one event per recorded item.
type ProgressFunc func(domain.Progress)

// Encoder turns raw upload bytes into the transport representation.
type Encoder interface {
	Encode(raw []byte) (imagecodec.TransportImage, error)
}

// Options configures an Orchestrator. Registry is required.
type Options struct {
	Registry         *providers.Registry
	Encoder          Encoder
	History          domain.JobRepository
	Logger           *infra.Logger
	TruncationPolicy string
	Concurrency      int
	ItemTimeout      time.Duration
	// RequestsPerSecond throttles adapter calls across all jobs. Zero disables it.
	RequestsPerSecond float64
	Now               func() time.Time
}

// Orchestrator runs translation jobs. It is safe for concurrent use; each Run
// owns its own state.
type Orchestrator struct {
	registry    *providers.Registry
	encoder     Encoder
	history     domain.JobRepository
	logger      *infra.Logger
	policy      string
	concurrency int
	itemTimeout time.Duration
	limiter     *rate.Limiter
	now         func() time.Time
}

// Report is the terminal outcome of one job.
type Report struct {
	JobID      string                     `json:"job_id"`
	State      domain.JobState            `json:"state"`
	Provider   string                     `json:"provider,omitempty"`
	Model      string                     `json:"model,omitempty"`
	Results    []domain.TranslationResult `json:"results"`
	Truncated  int                        `json:"truncated"`
	Warnings   []string                   `json:"warnings,omitempty"`
	Err        error                      `json:"-"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
}

// Counts tallies results by status.
func (r *Report) Counts() (succeeded, blocked, failed int) {
	for _, res := range r.Results {
		switch res.Status {
		case domain.StatusSuccess:
			succeeded++
		case domain.StatusSafetyBlocked:
			blocked++
		default:
			failed++
		}
	}
	return succeeded, blocked, failed
}

// New constructs an Orchestrator.
func New(opts Options) *Orchestrator {
	encoder := opts.Encoder
	if encoder == nil {
		encoder = imagecodec.New(imagecodec.Options{Logger: opts.Logger})
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	policy := strings.ToLower(strings.TrimSpace(opts.TruncationPolicy))
	if policy != infra.TruncateWarn {
		policy = infra.TruncateSilent
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		registry:    opts.Registry,
		encoder:     encoder,
		history:     opts.History,
		logger:      infra.LoggerOrDiscard(opts.Logger),
		policy:      policy,
		concurrency: concurrency,
		itemTimeout: opts.ItemTimeout,
		limiter:     limiter,
		now:         now,
	}
}

// run is the per-job state.
type run struct {
	o           *Orchestrator
	report      *Report
	adapter     providers.Adapter
	cfg         domain.ProviderConfig
	items       []domain.ImageItem
	instruction string
	progress    ProgressFunc

	mu   sync.Mutex
	done int
}

// Run executes job. The returned error is non-nil only when pre-flight
// validation aborted the job; per-item failures live in the report.
func (o *Orchestrator) Run(ctx context.Context, job domain.TranslationJob, progress ProgressFunc) (*Report, error) {
	r := &run{
		o:        o,
		report:   &Report{JobID: uuid.NewString(), State: domain.JobIdle, StartedAt: o.now()},
		progress: progress,
	}

	if err := r.validate(job); err != nil {
		r.abort(ctx, err, job)
		return r.report, err
	}

	r.report.State = domain.JobRunning
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	r.instruction = prompt.Compose(job.SourceLanguage, job.Context)
	o.logger.Info().
		Str("job_id", r.report.JobID).
		Object("provider", r.cfg).
		Int("items", len(r.items)).
		Int("truncated", r.report.Truncated).
		Msg("batch: job started")

	r.report.Results = make([]domain.TranslationResult, len(r.items))
	if o.concurrency > 1 {
		r.processConcurrent(ctx)
	} else {
		r.processSequential(ctx)
	}

	if ctx.Err() != nil {
		canceled := 0
		for _, res := range r.report.Results {
			if res.Detail == canceledDetail {
				canceled++
			}
		}
		if canceled > 0 {
			r.report.Warnings = append(r.report.Warnings, fmt.Sprintf("job canceled: %d of %d images were not processed", canceled, len(r.items)))
		}
	}

	r.report.State = domain.JobCompleted
	r.report.FinishedAt = o.now()
	metrics.JobsTotal.WithLabelValues(string(domain.JobCompleted)).Inc()

	succeeded, blocked, failed := r.report.Counts()
	o.logger.Info().
		Str("job_id", r.report.JobID).
		Int("succeeded", succeeded).
		Int("blocked", blocked).
		Int("failed", failed).
		Dur("elapsed", r.report.FinishedAt.Sub(r.report.StartedAt)).
		Msg("batch: job completed")

	o.persist(ctx, r.report, job)
	return r.report, nil
}

func (r *run) validate(job domain.TranslationJob) error {
	items := append([]domain.ImageItem(nil), job.Items...)
	if len(items) > domain.MaxBatchSize {
		dropped := len(items) - domain.MaxBatchSize
		items = items[:domain.MaxBatchSize]
		r.report.Truncated = dropped
		metrics.TruncatedItemsTotal.Add(float64(dropped))
		if r.o.policy == infra.TruncateWarn {
			msg := fmt.Sprintf("%d images submitted; only the first %d were processed", len(job.Items), domain.MaxBatchSize)
			r.report.Warnings = append(r.report.Warnings, msg)
			r.o.logger.Warn().
				Str("job_id", r.report.JobID).
				Int("submitted", len(job.Items)).
				Int("dropped", dropped).
				Msg("batch: truncated oversized job")
		}
	}
	r.items = items
	r.cfg = job.Provider
	r.report.Provider = job.Provider.Provider
	r.report.Model = job.Provider.Model

	if !job.Provider.HasCredential() {
		return domain.ErrMissingCredential
	}
	adapter, cfg, err := r.o.registry.Resolve(job.Provider)
	if err != nil {
		return err
	}
	r.adapter = adapter
	r.cfg = cfg
	r.report.Provider = cfg.Provider
	r.report.Model = cfg.Model

	if len(items) == 0 {
		return domain.ErrEmptyBatch
	}
	return nil
}

func (r *run) abort(ctx context.Context, err error, job domain.TranslationJob) {
	r.report.State = domain.JobAborted
	r.report.Err = err
	r.report.FinishedAt = r.o.now()
	r.report.Results = []domain.TranslationResult{}
	metrics.JobsTotal.WithLabelValues(string(domain.JobAborted)).Inc()
	r.o.logger.Warn().
		Str("job_id", r.report.JobID).
		Str("kind", domain.ErrorKind(err)).
		Err(err).
		Msg("batch: job aborted")
	r.o.persist(ctx, r.report, job)
}

func (r *run) processSequential(ctx context.Context) {
	for i, item := range r.items {
		if ctx.Err() != nil {
			r.record(canceledResult(i, item, r.cfg.Provider))
			continue
		}
		r.record(r.processItem(ctx, i, item))
	}
}

func (r *run) processConcurrent(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(r.o.concurrency)

	results := make([]domain.TranslationResult, len(r.items))
	ready := make([]bool, len(r.items))
	next := 0
	flush := func(idx int, res domain.TranslationResult) {
		r.mu.Lock()
		defer r.mu.Unlock()
		results[idx] = res
		ready[idx] = true
		for next < len(results) && ready[next] {
			r.recordLocked(results[next])
			next++
		}
	}

	for i, item := range r.items {
		if ctx.Err() != nil {
			flush(i, canceledResult(i, item, r.cfg.Provider))
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				flush(i, canceledResult(i, item, r.cfg.Provider))
				return nil
			}
			flush(i, r.processItem(ctx, i, item))
			return nil
		})
	}
	_ = g.Wait()
}

func (r *run) record(res domain.TranslationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordLocked(res)
}

// recordLocked stores res and emits progress. Callers hold r.mu so events are
// delivered in increasing order.
func (r *run) recordLocked(res domain.TranslationResult) {
	r.report.Results[res.Index] = res
	r.done++
	metrics.ItemsTotal.WithLabelValues(r.cfg.Provider, string(res.Status)).Inc()
	if r.progress != nil {
		r.progress(domain.Progress{Completed: r.done, Total: len(r.items)})
	}
}

// itemLifecycle logs each state change of one item.
type itemLifecycle struct {
	state domain.ItemState
	log   *infra.Logger
}

func (l *itemLifecycle) advance(next domain.ItemState) {
	if !l.state.CanTransition(next) {
		l.log.Error().Str("from", string(l.state)).Str("to", string(next)).Msg("batch: invalid item transition")
		return
	}
	l.log.Debug().Str("from", string(l.state)).Str("to", string(next)).Msg("batch: item state")
	l.state = next
}

func (r *run) processItem(ctx context.Context, idx int, item domain.ImageItem) (res domain.TranslationResult) {
	res = domain.TranslationResult{Index: idx, Name: item.Name, Provider: r.cfg.Provider}
	log := r.o.logger.With().Str("job_id", r.report.JobID).Int("index", idx).Str("name", item.Name).Logger()
	lc := &itemLifecycle{state: domain.ItemPending, log: &log}
	defer func() {
		lc.advance(res.ItemState())
		res.State = lc.state
	}()

	img, err := r.o.encoder.Encode(item.Data)
	if err != nil {
		res = r.failed(&log, res, err)
		return res
	}
	lc.advance(domain.ItemEncoded)

	if r.o.limiter != nil {
		if err := r.o.limiter.Wait(ctx); err != nil {
			res = r.failed(&log, res, fmt.Errorf("%w: rate limiter: %w", domain.ErrTransport, err))
			return res
		}
	}

	itemCtx := ctx
	if r.o.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, r.o.itemTimeout)
		defer cancel()
	}

	lc.advance(domain.ItemSubmitted)
	raw, err := r.adapter.Translate(itemCtx, img, r.instruction, r.cfg)
	if err != nil {
		res = r.failed(&log, res, err)
		return res
	}

	outcome := classify.Classify(raw, r.adapter.StopCodes())
	res.Status = outcome.Status
	res.Text = outcome.Text
	res.Detail = outcome.Detail
	res.StopCode = outcome.StopCode
	switch outcome.Status {
	case domain.StatusError:
		metrics.ItemErrorsTotal.WithLabelValues(r.cfg.Provider, "classification").Inc()
		log.Warn().Str("stop_code", outcome.StopCode).Str("detail", outcome.Detail).Msg("batch: item not translated")
	case domain.StatusSafetyBlocked:
		log.Info().Str("stop_code", outcome.StopCode).Msg("batch: item blocked by provider moderation")
	default:
		log.Debug().Str("stop_code", outcome.StopCode).Msg("batch: item translated")
	}
	return res
}

func (r *run) failed(log *infra.Logger, res domain.TranslationResult, err error) domain.TranslationResult {
	kind := domain.ErrorKind(err)
	res.Status = domain.StatusError
	res.Detail = httpx.Redact(err.Error(), r.cfg.Credential)
	metrics.ItemErrorsTotal.WithLabelValues(r.cfg.Provider, kind).Inc()
	log.Warn().Str("kind", kind).Str("detail", res.Detail).Msg("batch: item failed")
	return res
}

func canceledResult(idx int, item domain.ImageItem, provider string) domain.TranslationResult {
	return domain.TranslationResult{
		Index:    idx,
		Name:     item.Name,
		Status:   domain.StatusError,
		State:    domain.ItemFailed,
		Detail:   canceledDetail,
		Provider: provider,
	}
}

func (o *Orchestrator) persist(ctx context.Context, report *Report, job domain.TranslationJob) {
	if o.history == nil {
		return
	}
	rec := report.Record(job)
	// The caller's context may already be canceled; the record is still written.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.history.Save(saveCtx, &rec); err != nil {
		o.logger.Error().Err(err).Str("job_id", report.JobID).Msg("batch: save job history")
	}
}

// Record converts the report into a history row.
func (r *Report) Record(job domain.TranslationJob) domain.JobRecord {
	succeeded, blocked, failed := r.Counts()
	rec := domain.JobRecord{
		ID:             r.JobID,
		Provider:       r.Provider,
		Model:          r.Model,
		SourceLanguage: string(job.SourceLanguage),
		Context:        string(job.Context),
		State:          r.State,
		Submitted:      len(job.Items),
		Truncated:      r.Truncated,
		Succeeded:      succeeded,
		Blocked:        blocked,
		Failed:         failed,
		Results:        r.Results,
		CreatedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
	if r.Err != nil {
		rec.ErrorMessage = r.Err.Error()
	}
	return rec
}

// AbortMessage is the single user-facing message for an aborted job.
func AbortMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingCredential):
		return "an API key is required for the selected provider"
	case errors.Is(err, domain.ErrUnknownProvider):
		return err.Error()
	case errors.Is(err, domain.ErrEmptyBatch):
		return "upload at least one image"
	case err == nil:
		return ""
	default:
		return err.Error()
	}
}
