package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"calpadsrunner/internal/core/domain"
	"calpadsrunner/internal/core/ports"
)

// AllUnits in a job request expands to every unit in the registry.
const AllUnits = "*"

// Orchestrator runs batches of jobs on one Session, in order, isolating
// per-job failures. It owns the Session and closes it at the end of a run
// or on a fatal failure.
type Orchestrator struct {
	session  *Session
	drivers  map[domain.TaskType]Driver
	registry ports.OrgRegistry
	storage  ports.Storage
	store    ports.RunStore
	tags     domain.ExtractTags
	out      io.Writer
	logger   *zap.Logger
}

// NewOrchestrator creates a new Orchestrator. store and out may be nil.
func NewOrchestrator(
	session *Session,
	drivers map[domain.TaskType]Driver,
	registry ports.OrgRegistry,
	storage ports.Storage,
	store ports.RunStore,
	tags domain.ExtractTags,
	out io.Writer,
	logger *zap.Logger,
) *Orchestrator {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		session:  session,
		drivers:  drivers,
		registry: registry,
		storage:  storage,
		store:    store,
		tags:     tags,
		out:      out,
		logger:   logger,
	}
}

// entry is a batch slot: a job to run, or a result already decided while
// building the batch (an unknown unit).
type entry struct {
	job    domain.WorkflowJob
	result *domain.WorkflowResult
}

// buildEntries resolves requests into jobs. A unit of "*" expands to every
// registry unit. Requests that fail to resolve keep their position as
// Failed(NotFound) results.
func (o *Orchestrator) buildEntries(reqs []domain.JobRequest, runDate time.Time) []entry {
	var entries []entry
	add := func(req domain.JobRequest, unit domain.OrgUnit) {
		job := domain.NewJob(len(entries), req.Task, unit, req.Params, runDate, o.tags)
		entries = append(entries, entry{job: job})
	}
	for _, req := range reqs {
		if strings.TrimSpace(req.Unit) == AllUnits {
			for _, unit := range o.registry.All() {
				add(req, unit)
			}
			continue
		}
		unit, err := o.registry.Resolve(req.Unit)
		if err != nil {
			job := domain.WorkflowJob{Seq: len(entries), Task: req.Task, Unit: domain.OrgUnit{Short: req.Unit}, Params: req.Params, RunDate: runDate}
			now := time.Now().UTC()
			entries = append(entries, entry{job: job, result: &domain.WorkflowResult{
				Job:        job,
				Outcome:    domain.Failed,
				Kind:       domain.KindOf(err),
				Stage:      domain.StageIdle,
				Err:        err,
				StartedAt:  now,
				FinishedAt: now,
			}})
			continue
		}
		add(req, unit)
	}
	return entries
}

// RunRequests resolves reqs against the registry and runs them as one batch.
func (o *Orchestrator) RunRequests(ctx context.Context, runID string, runDate time.Time, reqs []domain.JobRequest) (*domain.BatchReport, error) {
	return o.run(ctx, runID, runDate, o.buildEntries(reqs, runDate))
}

// RunBatch runs jobs in order. A failed job is retried once after a hard
// reset and never stops the batch. The returned error is non-nil only when
// the run itself ended early: a LoginFailure or a cancelled context. The
// report then holds the results gathered so far.
func (o *Orchestrator) RunBatch(ctx context.Context, runID string, jobs []domain.WorkflowJob) (*domain.BatchReport, error) {
	entries := make([]entry, len(jobs))
	var runDate time.Time
	for i, job := range jobs {
		entries[i] = entry{job: job}
		runDate = job.RunDate
	}
	return o.run(ctx, runID, runDate, entries)
}

func (o *Orchestrator) run(ctx context.Context, runID string, runDate time.Time, entries []entry) (*domain.BatchReport, error) {
	report := &domain.BatchReport{
		RunID:     runID,
		RunDate:   runDate,
		StartedAt: time.Now().UTC(),
	}
	log := o.logger.With(zap.String("run", runID))
	log.Info("Starting batch", zap.Int("jobs", len(entries)))

	jobs := make([]domain.WorkflowJob, len(entries))
	for i, e := range entries {
		jobs[i] = e.job
	}
	if data, err := json.MarshalIndent(jobs, "", "  "); err == nil {
		if err := o.storage.SaveManifest(ctx, runID, data); err != nil {
			log.Warn("Failed to save manifest", zap.Error(err))
		}
	}

	var runErr error
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		tag := fmt.Sprintf("[JOB %d/%d]", i+1, len(entries))

		var res domain.WorkflowResult
		if e.result != nil {
			res = *e.result
		} else {
			log.Info(tag+" Starting", zap.String("task", string(e.job.Task)), zap.String("unit", e.job.Unit.Short))
			res = o.runJob(ctx, e.job, log)
		}
		report.Results = append(report.Results, res)
		o.reportLine(tag, res)

		if domain.Fatal(res.Err) {
			log.Error(tag+" Login failed, aborting run", zap.Error(res.Err))
			runErr = res.Err
			_ = o.Close()
			break
		}
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
	}

	o.finish(context.WithoutCancel(ctx), report, log)
	return report, runErr
}

// runJob runs one job with at most one retry. Before the retry the session
// re-authenticates if the portal expired it, then returns to the portal
// root. The retry runs the driver from Idle.
func (o *Orchestrator) runJob(ctx context.Context, job domain.WorkflowJob, log *zap.Logger) domain.WorkflowResult {
	res := domain.WorkflowResult{Job: job, StartedAt: time.Now().UTC()}
	done := func(stage domain.Stage, err error) domain.WorkflowResult {
		res.FinishedAt = time.Now().UTC()
		res.Stage = stage
		res.Err = err
		if err == nil {
			res.Outcome = domain.Succeeded
			return res
		}
		res.Outcome = domain.Failed
		res.Kind = domain.KindOf(err)
		return res
	}

	if err := job.Validate(); err != nil {
		return done(domain.StageIdle, domain.NewError(domain.KindInternal, "validate", err))
	}
	driver, ok := o.drivers[job.Task]
	if !ok {
		return done(domain.StageIdle, domain.NewError(domain.KindInternal, "no driver for "+string(job.Task), nil))
	}

	jlog := log.With(zap.Int("seq", job.Seq), zap.String("unit", job.Unit.Short), zap.String("task", string(job.Task)))
	for {
		res.Attempts++
		stage, err := Execute(ctx, o.session, driver, job)
		if err == nil {
			return done(stage, nil)
		}
		jlog.Warn("Attempt failed",
			zap.Int("attempt", res.Attempts),
			zap.String("stage", string(stage)),
			zap.String("kind", string(domain.KindOf(err))),
			zap.Error(err))

		if res.Attempts > 1 || ctx.Err() != nil || !domain.Retryable(err) {
			return done(stage, err)
		}

		if domain.IsKind(err, domain.KindSessionExpired) {
			if rerr := o.session.Reauthenticate(ctx); rerr != nil {
				return done(stage, rerr)
			}
		}
		if rerr := o.reset(ctx, jlog); rerr != nil {
			return done(stage, rerr)
		}
		jlog.Info("Retrying from idle")
	}
}

// reset returns the session to the portal root before a retry. An expiry
// that only shows up here is handled by logging in again and resetting once
// more. Only a login failure is returned.
func (o *Orchestrator) reset(ctx context.Context, jlog *zap.Logger) error {
	err := o.session.Reset(ctx)
	if err == nil {
		return nil
	}
	if !domain.IsKind(err, domain.KindSessionExpired) {
		jlog.Warn("Reset before retry failed", zap.Error(err))
		return nil
	}
	if err := o.session.Reauthenticate(ctx); err != nil {
		return err
	}
	if err := o.session.Reset(ctx); err != nil {
		jlog.Warn("Reset before retry failed", zap.Error(err))
	}
	return nil
}

func (o *Orchestrator) reportLine(tag string, res domain.WorkflowResult) {
	name := res.Job.ArtifactName
	if name == "" {
		name = res.Job.Params.ReportType + res.Job.Params.ReportURL
	}
	if res.Succeeded() {
		fmt.Fprintf(o.out, "%s %s %s %s: succeeded (attempts %d)\n", tag, res.Job.Unit.Short, res.Job.Task, name, res.Attempts)
		return
	}
	fmt.Fprintf(o.out, "%s %s %s %s: failed %s (attempts %d): %s\n", tag, res.Job.Unit.Short, res.Job.Task, name, res.Kind, res.Attempts, res.ErrorMessage())
}

// finish records artifacts, persists the report and prints the summary.
func (o *Orchestrator) finish(ctx context.Context, report *domain.BatchReport, log *zap.Logger) {
	report.CompletedAt = time.Now().UTC()

	artifacts, err := o.storage.ListArtifacts(ctx, report.RunID, report.StartedAt)
	if err != nil {
		log.Warn("Failed to list artifacts", zap.Error(err))
	}
	report.Artifacts = artifacts

	if o.store != nil {
		if err := o.store.SaveReport(ctx, report); err != nil {
			log.Warn("Failed to record run", zap.Error(err))
		}
	}

	ok, failed := report.Counts()
	log.Info("Batch complete",
		zap.Int("succeeded", ok),
		zap.Int("failed", failed),
		zap.Int("artifacts", len(artifacts)),
		zap.String("path", o.storage.GetRunPath(report.RunID)))
	WriteSummary(o.out, report)
}

// Close ends the session.
func (o *Orchestrator) Close() error {
	if o.session == nil {
		return nil
	}
	return o.session.Close()
}
