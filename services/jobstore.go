package services

import (
	"sync"
	"sync/atomic"
	"time"

	"ytmusicdl/types"

	"github.com/google/uuid"
)

const (
	defaultMaxJobs = 50
	defaultMaxLogs = 100
)

// Notifier receives every store mutation. Publish must not block.
type Notifier interface {
	Publish(event types.Event)
}

// Patch carries optional field updates applied together with a status change
type Patch struct {
	Progress     *float64
	Message      string
	AlbumInfo    *types.AlbumInfo
	CurrentTrack int
	TotalTracks  int
	Result       *types.JobResult
	Error        string
	Log          *types.LogEntry
}

// storeSnapshot is an immutable view of the collection published after every mutation
type storeSnapshot struct {
	jobs     []types.Job
	index    map[string]int
	activeID string
}

// JobStore holds jobs in insertion order and admits at most one active job
type JobStore struct {
	mu       sync.Mutex
	jobs     map[string]*types.Job
	order    []string
	activeID string

	snap     atomic.Pointer[storeSnapshot]
	notifier Notifier

	maxJobs int
	maxLogs int
	now     func() time.Time
	newID   func() string
}

// StoreOption configures a JobStore
type StoreOption func(*JobStore)

// WithNotifier sets where mutations are published
func WithNotifier(n Notifier) StoreOption {
	return func(s *JobStore) { s.notifier = n }
}

// WithMaxJobs caps how many jobs are retained
func WithMaxJobs(n int) StoreOption {
	return func(s *JobStore) {
		if n > 0 {
			s.maxJobs = n
		}
	}
}

// WithMaxLogs caps the per-job log
func WithMaxLogs(n int) StoreOption {
	return func(s *JobStore) {
		if n > 0 {
			s.maxLogs = n
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) StoreOption {
	return func(s *JobStore) { s.now = now }
}

// WithIDGenerator overrides the uuid generator
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *JobStore) { s.newID = gen }
}

// NewJobStore creates an empty job store
func NewJobStore(opts ...StoreOption) *JobStore {
	s := &JobStore{
		jobs:    make(map[string]*types.Job),
		maxJobs: defaultMaxJobs,
		maxLogs: defaultMaxLogs,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(&storeSnapshot{index: map[string]int{}})
	return s
}

// Create admits a new pending job, or returns *types.AdmissionError when one is active
func (s *JobStore) Create(url, audioFormat string) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != "" {
		return types.Job{}, &types.AdmissionError{ActiveJobID: s.activeID}
	}

	pruned := s.pruneLocked()

	now := s.now()
	job := &types.Job{
		ID:          s.newID(),
		URL:         url,
		AudioFormat: audioFormat,
		Status:      types.JobStatusPending,
		Message:     "Queued",
		Logs:        []types.LogEntry{},
		CreatedAt:   now,
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.activeID = job.ID

	s.commitLocked()
	for _, id := range pruned {
		s.publish(types.Event{Type: types.EventDeleted, JobID: id})
	}
	snapshot := job.Clone()
	s.publish(types.Event{Type: types.EventCreated, Job: &snapshot, JobID: job.ID})
	return job.Clone(), nil
}

// pruneLocked drops the oldest terminal jobs until there is room for one more
// and returns the removed ids.
func (s *JobStore) pruneLocked() []string {
	var pruned []string
	for len(s.order) >= s.maxJobs {
		victim := -1
		for i, id := range s.order {
			if s.jobs[id].Status.IsTerminal() {
				victim = i
				break
			}
		}
		if victim < 0 {
			break
		}
		id := s.order[victim]
		delete(s.jobs, id)
		s.order = append(s.order[:victim], s.order[victim+1:]...)
		pruned = append(pruned, id)
	}
	return pruned
}

// Get returns a copy of the job
func (s *JobStore) Get(id string) (types.Job, error) {
	snap := s.snap.Load()
	i, ok := snap.index[id]
	if !ok {
		return types.Job{}, types.ErrNotFound
	}
	return snap.jobs[i].Clone(), nil
}

// List returns copies of every job, oldest first
func (s *JobStore) List() []types.Job {
	snap := s.snap.Load()
	jobs := make([]types.Job, len(snap.jobs))
	for i := range snap.jobs {
		jobs[i] = snap.jobs[i].Clone()
	}
	return jobs
}

// ActiveID returns the id of the non-terminal job, or ""
func (s *JobStore) ActiveID() string {
	return s.snap.Load().activeID
}

// Active returns the non-terminal job if there is one
func (s *JobStore) Active() (types.Job, bool) {
	id := s.ActiveID()
	if id == "" {
		return types.Job{}, false
	}
	job, err := s.Get(id)
	return job, err == nil
}

// Transition moves a job to status and applies patch atomically
func (s *JobStore) Transition(id string, status types.JobStatus, patch Patch) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return types.Job{}, types.ErrNotFound
	}
	if !job.Status.CanTransitionTo(status) {
		return types.Job{}, types.ErrInvalidTransition
	}
	if patch.Result != nil && status != types.JobStatusCompleted {
		return types.Job{}, types.ErrInvalidTransition
	}
	if patch.Error != "" && status != types.JobStatusFailed {
		return types.Job{}, types.ErrInvalidTransition
	}

	now := s.now()
	if job.Status == types.JobStatusPending && status != types.JobStatusPending && status.IsActive() && job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.Status = status

	if patch.Progress != nil {
		p := clampProgress(*patch.Progress)
		if p > job.Progress {
			job.Progress = p
		}
	}
	if patch.Message != "" {
		job.Message = patch.Message
	}
	if patch.AlbumInfo != nil {
		info := *patch.AlbumInfo
		job.AlbumInfo = &info
	}
	if patch.CurrentTrack > 0 {
		job.CurrentTrack = patch.CurrentTrack
	}
	if patch.TotalTracks > 0 {
		job.TotalTracks = patch.TotalTracks
	}
	if patch.Log != nil {
		s.appendLogLocked(job, *patch.Log)
	}

	if status.IsTerminal() {
		job.CompletedAt = &now
		switch status {
		case types.JobStatusCompleted:
			job.Progress = 100
			job.Result = patch.Result
		case types.JobStatusFailed:
			job.Error = patch.Error
			if job.Error == "" {
				job.Error = "Sync failed"
			}
		}
		if s.activeID == id {
			s.activeID = ""
		}
	}

	s.commitLocked()
	snapshot := job.Clone()
	s.publish(types.Event{Type: types.EventUpdated, Job: &snapshot, JobID: id})
	return job.Clone(), nil
}

// AppendLog adds a log entry to an active job without changing its status
func (s *JobStore) AppendLog(id, step, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return types.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return types.ErrInvalidTransition
	}
	s.appendLogLocked(job, types.LogEntry{Step: step, Message: message})

	s.commitLocked()
	snapshot := job.Clone()
	s.publish(types.Event{Type: types.EventUpdated, Job: &snapshot, JobID: id})
	return nil
}

func (s *JobStore) appendLogLocked(job *types.Job, entry types.LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	job.Logs = append(job.Logs, entry)
	if over := len(job.Logs) - s.maxLogs; over > 0 {
		job.Logs = append([]types.LogEntry(nil), job.Logs[over:]...)
	}
}

// Delete removes a terminal job
func (s *JobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return types.ErrNotFound
	}
	if !job.Status.IsTerminal() {
		return types.ErrInvalidState
	}
	delete(s.jobs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.commitLocked()
	s.publish(types.Event{Type: types.EventDeleted, JobID: id})
	return nil
}

// ClearTerminal removes every terminal job and returns how many were removed
func (s *JobStore) ClearTerminal() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.jobs[id].Status.IsTerminal() {
			delete(s.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	s.commitLocked()
	s.publish(types.Event{Type: types.EventCleared, Count: removed})
	return removed
}

// commitLocked rebuilds the read snapshot. Caller holds s.mu.
func (s *JobStore) commitLocked() {
	next := &storeSnapshot{
		jobs:     make([]types.Job, len(s.order)),
		index:    make(map[string]int, len(s.order)),
		activeID: s.activeID,
	}
	for i, id := range s.order {
		next.jobs[i] = s.jobs[id].Clone()
		next.index[id] = i
	}
	s.snap.Store(next)
}

func (s *JobStore) publish(event types.Event) {
	if s.notifier == nil {
		return
	}
	event.Timestamp = s.now()
	s.notifier.Publish(event)
}

// SnapshotEvent builds the priming event for a new subscriber
func (s *JobStore) SnapshotEvent() types.Event {
	snap := s.snap.Load()
	jobs := make([]types.Job, len(snap.jobs))
	for i := range snap.jobs {
		jobs[i] = snap.jobs[i].Clone()
	}
	return types.Event{
		Type:        types.EventSnapshot,
		Jobs:        jobs,
		ActiveJobID: snap.activeID,
		Count:       len(jobs),
		Timestamp:   s.now(),
	}
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
