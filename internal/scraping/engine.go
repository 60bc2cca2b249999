// Package scraping runs jobs end to end: claim, per-unit scraping with
// progress persistence, then batch reconciliation into the business
// collection.
package scraping

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospectline/prospector/internal/adapter"
	"github.com/prospectline/prospector/internal/model"
	"github.com/prospectline/prospector/internal/reconcile"
	"github.com/prospectline/prospector/internal/store"
)

// ErrAlreadyRunning is returned when a run is requested for a job that
// is already in progress.
var ErrAlreadyRunning = eris.New("job already running")

const defaultPause = time.Second

// Option configures the engine.
type Option func(*Engine)

// WithPause overrides the delay between location searches. Tests use 0.
func WithPause(d time.Duration) Option {
	return func(e *Engine) {
		e.pause = d
	}
}

// Engine drives the scraping job state machine.
type Engine struct {
	store      store.Store
	registry   *adapter.Registry
	reconciler *reconcile.Reconciler
	pause      time.Duration
	log        *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(s store.Store, r *adapter.Registry, rec *reconcile.Reconciler, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		registry:   r,
		reconciler: rec,
		pause:      defaultPause,
		log:        zap.L().With(zap.String("component", "engine")),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes a job synchronously and returns when it reaches a
// terminal state.
func (e *Engine) Run(ctx context.Context, jobID string) error {
	job, src, err := e.begin(ctx, jobID)
	if err != nil {
		return err
	}
	return e.execute(ctx, job, src)
}

// Launch claims the job and resolves its adapter, then executes it in
// the background. Both happen synchronously so a conflict, unknown id
// or unsupported source surfaces to the caller; after that, completion
// is observable only by polling the store. The background run outlives
// the request context.
func (e *Engine) Launch(ctx context.Context, jobID string) error {
	job, src, err := e.begin(ctx, jobID)
	if err != nil {
		return err
	}
	go func() {
		bg := context.WithoutCancel(ctx)
		if err := e.execute(bg, job, src); err != nil {
			e.log.Error("background run failed",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
	}()
	return nil
}

// begin atomically claims the job, resets it for a fresh run and
// resolves its adapter. A lost claim means another run is active; the
// job's logs and results are left untouched in that case. An
// unsupported source fails the job immediately.
func (e *Engine) begin(ctx context.Context, jobID string) (*model.ScrapingJob, adapter.Adapter, error) {
	claimed, err := e.store.ClaimJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if !claimed {
		return nil, nil, eris.Wrapf(ErrAlreadyRunning, "engine: job %s", jobID)
	}

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	job.Status = model.JobStatusInProgress
	job.Progress = 0
	job.Logs = nil
	job.Results = nil
	job.StartedAt = &now
	job.CompletedAt = nil
	job.AppendLog(model.LogLevelInfo, "Started scraping job: %s", job.Name)

	if err := e.store.SaveJob(ctx, job); err != nil {
		return nil, nil, err
	}

	src, err := e.registry.Get(job.Source)
	if err != nil {
		return nil, nil, e.fail(ctx, job, err)
	}

	e.log.Info("job started",
		zap.String("job_id", job.ID),
		zap.String("source", string(job.Source)))
	return job, src, nil
}

// unit is one term/location pair. lastOfTerm suppresses the pacing pause
// after the final location of each term.
type unit struct {
	term       string
	location   string
	lastOfTerm bool
}

// buildUnits expands a job into its work units in row-major order. The
// registry source iterates locations only; its term filter is unused.
func buildUnits(job *model.ScrapingJob) []unit {
	terms := job.SearchTerms
	if job.Source == model.SourceInsee {
		terms = []string{""}
	}

	var units []unit
	for _, term := range terms {
		for i, loc := range job.Locations {
			units = append(units, unit{
				term:       term,
				location:   loc,
				lastOfTerm: i == len(job.Locations)-1,
			})
		}
	}
	return units
}

func (e *Engine) execute(ctx context.Context, job *model.ScrapingJob, src adapter.Adapter) error {
	units := buildUnits(job)
	for i, u := range units {
		job.AppendLog(model.LogLevelInfo, "Searching for %q in %q", u.term, u.location)

		records, err := src.Scrape(ctx, adapter.Query{
			Term:     u.term,
			Location: u.location,
			Filters:  job.Filters,
			Config:   job.Configuration,
		})
		if err != nil {
			return e.fail(ctx, job, err)
		}

		job.Results = append(job.Results, records...)
		job.AppendLog(model.LogLevelInfo, "Found %d results for %q in %q", len(records), u.term, u.location)
		job.Progress = (i + 1) * 100 / len(units)

		if err := e.store.SaveJob(ctx, job); err != nil {
			return e.fail(ctx, job, err)
		}

		if !u.lastOfTerm && e.pause > 0 {
			select {
			case <-ctx.Done():
				return e.fail(ctx, job, ctx.Err())
			case <-time.After(e.pause):
			}
		}
	}

	persisted, failures := e.reconciler.Reconcile(ctx, job.Results, job.Owner)
	for _, f := range failures {
		job.AppendLog(model.LogLevelError, "Error saving business %q: %v", f.Record.Name, f.Err)
	}

	now := time.Now().UTC()
	job.Status = model.JobStatusCompleted
	job.Progress = 100
	job.CompletedAt = &now
	job.AppendLog(model.LogLevelInfo, "Completed scraping job: %s. Found %d businesses.", job.Name, len(persisted))

	if err := e.store.SaveJob(ctx, job); err != nil {
		return e.fail(ctx, job, err)
	}

	e.log.Info("job completed",
		zap.String("job_id", job.ID),
		zap.Int("businesses", len(persisted)),
		zap.Int("failed_records", len(failures)))
	return nil
}

// fail moves the job to its failed state. Progress resets to zero; the
// accumulated results and logs stay in place for inspection.
func (e *Engine) fail(ctx context.Context, job *model.ScrapingJob, cause error) error {
	now := time.Now().UTC()
	job.Status = model.JobStatusFailed
	job.Progress = 0
	job.CompletedAt = &now
	job.AppendLog(model.LogLevelError, "Error in scraping job: %v", cause)

	if err := e.store.SaveJob(ctx, job); err != nil {
		e.log.Error("failed to persist job failure",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	e.log.Error("job failed",
		zap.String("job_id", job.ID),
		zap.Error(cause))
	return eris.Wrapf(cause, "engine: job %s", job.ID)
}

// Pause flips a running job's status label. The active run is not
// interrupted; the label is informational.
func (e *Engine) Pause(ctx context.Context, jobID string) error {
	return e.store.SetJobStatus(ctx, jobID, model.JobStatusPaused)
}

// Resume flips a paused job back to in_progress.
func (e *Engine) Resume(ctx context.Context, jobID string) error {
	return e.store.SetJobStatus(ctx, jobID, model.JobStatusInProgress)
}
