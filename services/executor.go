package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ytmusicdl/types"

	"github.com/charmbracelet/log"
)

// phaseRange maps a pipeline phase onto the overall 0-100 scale
type phaseRange struct {
	status types.JobStatus
	lo, hi float64
}

var phaseRanges = map[Phase]phaseRange{
	PhaseFetchingInfo: {types.JobStatusFetchingInfo, 0, 10},
	PhaseDownloading:  {types.JobStatusDownloading, 10, 80},
	PhaseImporting:    {types.JobStatusImporting, 80, 100},
}

// OverallProgress converts a phase-local event into the job's percentage
func OverallProgress(ev ProgressEvent) float64 {
	r, ok := phaseRanges[ev.Phase]
	if !ok {
		return 0
	}
	return r.lo + (r.hi-r.lo)*ev.Fraction()
}

// run is the executor's bookkeeping for the in-flight job
type run struct {
	jobID    string
	token    *CancelToken
	timedOut atomic.Bool
}

// Executor drives one job at a time through a Pipeline
type Executor struct {
	store    *JobStore
	pipeline Pipeline
	logger   *log.Logger
	timeout  time.Duration
	baseCtx  context.Context

	mu      sync.Mutex
	running *run
	wg      sync.WaitGroup
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithTimeout fails a run that is still going after d
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithBaseContext sets the parent context of every run
func WithBaseContext(ctx context.Context) ExecutorOption {
	return func(e *Executor) { e.baseCtx = ctx }
}

// NewExecutor creates an executor writing to store
func NewExecutor(store *JobStore, pipeline Pipeline, logger *log.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:    store,
		pipeline: pipeline,
		logger:   logger,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit admits a job for url and starts it
func (e *Executor) Submit(url, audioFormat string) (types.Job, error) {
	job, err := e.store.Create(url, audioFormat)
	if err != nil {
		return types.Job{}, err
	}
	if err := e.Start(job.ID); err != nil {
		return job, err
	}
	return job, nil
}

// Start launches the background run for a pending job and returns immediately
func (e *Executor) Start(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running != nil {
		return &types.AdmissionError{ActiveJobID: e.running.jobID}
	}
	job, err := e.store.Get(jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		// cancelled before it ever started
		return nil
	}
	if job.Status != types.JobStatusPending {
		return types.ErrInvalidState
	}

	r := &run{jobID: jobID, token: NewCancelToken()}
	e.running = r
	e.wg.Add(1)
	go e.drive(r, job)
	return nil
}

// Cancel requests cancellation of a job. Terminal jobs are left untouched.
func (e *Executor) Cancel(jobID string) error {
	job, err := e.store.Get(jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	e.mu.Lock()
	if r := e.running; r != nil && r.jobID == jobID {
		r.token.Cancel()
		e.mu.Unlock()
		if err := e.store.AppendLog(jobID, "cancel", "Cancellation requested"); err != nil && !errors.Is(err, types.ErrInvalidTransition) {
			return err
		}
		e.logger.Info("cancellation requested", "job", jobID)
		return nil
	}
	// admitted but never started
	_, err = e.store.Transition(jobID, types.JobStatusCancelled, Patch{
		Message: "Cancelled",
		Log:     &types.LogEntry{Step: "cancel", Message: "Cancelled before start"},
	})
	e.mu.Unlock()
	if err != nil && !errors.Is(err, types.ErrInvalidTransition) {
		return err
	}
	e.logger.Info("job cancelled before start", "job", jobID)
	return nil
}

// CancelAll cancels the in-flight run and any admitted job that has not started
func (e *Executor) CancelAll() {
	if job, ok := e.store.Active(); ok {
		if err := e.Cancel(job.ID); err != nil {
			e.logger.Warn("failed to cancel job", "job", job.ID, "err", err)
		}
	}
}

// Wait blocks until the in-flight run has finished or ctx ends
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running returns the id of the job currently executing
func (e *Executor) Running() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running == nil {
		return "", false
	}
	return e.running.jobID, true
}

// outcome is the single terminal transition a run ends with
type outcome struct {
	status types.JobStatus
	patch  Patch
}

func (e *Executor) drive(r *run, job types.Job) {
	defer e.wg.Done()

	ctx, cancel := r.token.Context(e.baseCtx)
	defer cancel()

	if e.timeout > 0 {
		timer := time.AfterFunc(e.timeout, func() {
			r.timedOut.Store(true)
			r.token.Cancel()
		})
		defer timer.Stop()
	}

	e.logger.Info("job started", "job", r.jobID, "url", job.URL)
	out := e.execute(ctx, r, job)
	e.finish(r, out)
}

func (e *Executor) execute(ctx context.Context, r *run, job types.Job) (out outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("pipeline panicked", "job", r.jobID, "panic", rec)
			out = failedOutcome("Sync failed")
		}
	}()

	if r.token.Cancelled() {
		return e.cancelledOutcome(r)
	}

	stream := e.pipeline.Run(ctx, Request{JobID: job.ID, URL: job.URL, AudioFormat: job.AudioFormat}, r.token)
	defer stream.Close()

	current := types.JobStatusPending
	var phase Phase
	for stream.Next() {
		ev := stream.Event()
		pr, ok := phaseRanges[ev.Phase]
		if !ok {
			e.logger.Warn("ignoring event with unknown phase", "job", r.jobID, "phase", ev.Phase)
			continue
		}
		if ev.Phase != phase {
			if r.token.Cancelled() {
				return e.cancelledOutcome(r)
			}
			phase = ev.Phase
		}

		status := pr.status
		if !current.CanTransitionTo(status) {
			status = current
		}
		progress := OverallProgress(ev)
		patch := Patch{
			Progress:     &progress,
			Message:      ev.Message,
			AlbumInfo:    ev.Album,
			CurrentTrack: ev.Track,
			TotalTracks:  ev.Tracks,
		}
		if ev.Message != "" {
			patch.Log = &types.LogEntry{Step: string(ev.Phase), Message: ev.Message, Progress: &progress}
		}
		if _, err := e.store.Transition(r.jobID, status, patch); err != nil {
			e.logger.Error("progress transition rejected", "job", r.jobID, "status", status, "err", err)
			continue
		}
		current = status
	}

	result, err := stream.Result()
	switch {
	case err == nil && !stream.Cancelled():
		// the pipeline finished; a deadline that fired afterwards does not undo it
	case r.timedOut.Load():
		return failedOutcome(fmt.Sprintf("Job timed out after %s", e.timeout))
	case stream.Cancelled():
		return e.cancelledOutcome(r)
	case err != nil && r.token.Cancelled() && errors.Is(err, context.Canceled):
		return e.cancelledOutcome(r)
	case err != nil:
		e.logger.Error("job failed", "job", r.jobID, "err", err)
		return failedOutcome(types.PublicMessage(err))
	}

	if result == nil {
		result = &types.JobResult{}
	}
	return outcome{
		status: types.JobStatusCompleted,
		patch: Patch{
			Message: "Completed",
			Result:  result,
			Log:     &types.LogEntry{Step: "complete", Message: completionMessage(result)},
		},
	}
}

func (e *Executor) cancelledOutcome(r *run) outcome {
	if r.timedOut.Load() {
		return failedOutcome(fmt.Sprintf("Job timed out after %s", e.timeout))
	}
	return outcome{
		status: types.JobStatusCancelled,
		patch: Patch{
			Message: "Cancelled",
			Log:     &types.LogEntry{Step: "cancel", Message: "Job cancelled"},
		},
	}
}

func failedOutcome(msg string) outcome {
	return outcome{
		status: types.JobStatusFailed,
		patch: Patch{
			Message: msg,
			Error:   msg,
			Log:     &types.LogEntry{Step: "failed", Message: msg},
		},
	}
}

func completionMessage(result *types.JobResult) string {
	if result.Album != nil && result.Album.Title != "" {
		return fmt.Sprintf("Imported %d tracks from %s", result.TrackCount, result.Album.Title)
	}
	return fmt.Sprintf("Imported %d tracks", result.TrackCount)
}

// finish applies the terminal transition and releases the run slot together,
// so a Start that observes no active job also observes a free executor.
func (e *Executor) finish(r *run, out outcome) {
	e.mu.Lock()
	_, err := e.store.Transition(r.jobID, out.status, out.patch)
	e.running = nil
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("terminal transition rejected", "job", r.jobID, "status", out.status, "err", err)
		return
	}
	e.logger.Info("job finished", "job", r.jobID, "status", out.status)
}
