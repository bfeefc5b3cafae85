package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"ytmusicdl/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recordingNotifier) Publish(event types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) Types() []types.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("J%d", n)
	}
}

func newTestStore(t *testing.T, opts ...StoreOption) (*JobStore, *recordingNotifier) {
	t.Helper()
	rec := &recordingNotifier{}
	opts = append([]StoreOption{WithNotifier(rec), WithIDGenerator(sequentialIDs())}, opts...)
	return NewJobStore(opts...), rec
}

func pct(v float64) *float64 { return &v }

func finish(t *testing.T, s *JobStore, id string, status types.JobStatus) {
	t.Helper()
	patch := Patch{}
	switch status {
	case types.JobStatusCompleted:
		patch.Result = &types.JobResult{TrackCount: 1}
	case types.JobStatusFailed:
		patch.Error = "boom"
	}
	_, err := s.Transition(id, status, patch)
	require.NoError(t, err)
}

func TestJobStoreCreate(t *testing.T) {
	s, rec := newTestStore(t)

	job, err := s.Create("https://example/album/1", "mp3")
	require.NoError(t, err)
	assert.Equal(t, "J1", job.ID)
	assert.Equal(t, types.JobStatusPending, job.Status)
	assert.Equal(t, "https://example/album/1", job.URL)
	assert.Zero(t, job.Progress)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, "J1", s.ActiveID())

	_, err = s.Create("https://example/album/2", "mp3")
	require.Error(t, err)
	var admission *types.AdmissionError
	require.ErrorAs(t, err, &admission)
	assert.Equal(t, "J1", admission.ActiveJobID)
	assert.ErrorIs(t, err, types.ErrAlreadyRunning)

	assert.Len(t, s.List(), 1)
	assert.Equal(t, []types.EventType{types.EventCreated}, rec.Types())
}

func TestJobStoreAdmitsAfterTerminal(t *testing.T) {
	for _, status := range []types.JobStatus{types.JobStatusCompleted, types.JobStatusFailed, types.JobStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			s, _ := newTestStore(t)
			first, err := s.Create("a", "mp3")
			require.NoError(t, err)

			finish(t, s, first.ID, status)
			assert.Empty(t, s.ActiveID())

			second, err := s.Create("b", "mp3")
			require.NoError(t, err)
			assert.Equal(t, second.ID, s.ActiveID())
		})
	}
}

func TestJobStoreConcurrentCreateAdmitsOne(t *testing.T) {
	s := NewJobStore()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Create(fmt.Sprintf("url-%d", i), "mp3"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Len(t, s.List(), 1)
}

func TestJobStoreListOrder(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 3; i++ {
		job, err := s.Create(fmt.Sprintf("url-%d", i), "mp3")
		require.NoError(t, err)
		finish(t, s, job.ID, types.JobStatusCompleted)
	}

	jobs := s.List()
	require.Len(t, jobs, 3)
	assert.Equal(t, "J1", jobs[0].ID)
	assert.Equal(t, "J3", jobs[2].ID)
}

func TestJobStoreGet(t *testing.T) {
	s, _ := newTestStore(t)
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestJobStoreGetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)
	require.NoError(t, s.AppendLog(job.ID, "test", "hello"))

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	got.Logs[0].Message = "mutated"
	got.Status = types.JobStatusCompleted

	again, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Logs[0].Message)
	assert.Equal(t, types.JobStatusPending, again.Status)
}

func TestJobStoreTransition(t *testing.T) {
	s, rec := newTestStore(t)
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)

	updated, err := s.Transition(job.ID, types.JobStatusFetchingInfo, Patch{
		Progress: pct(5),
		Message:  "Fetching album info",
		Log:      &types.LogEntry{Step: "fetching_info", Message: "Fetching album info"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFetchingInfo, updated.Status)
	assert.Equal(t, 5.0, updated.Progress)
	assert.NotNil(t, updated.StartedAt)
	require.Len(t, updated.Logs, 1)
	assert.False(t, updated.Logs[0].Timestamp.IsZero())

	_, err = s.Transition("missing", types.JobStatusDownloading, Patch{})
	assert.ErrorIs(t, err, types.ErrNotFound)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, types.EventUpdated, last.Type)
	require.NotNil(t, last.Job)
	assert.Equal(t, types.JobStatusFetchingInfo, last.Job.Status)
}

func TestJobStoreTransitionRules(t *testing.T) {
	tests := []struct {
		name  string
		path  []types.JobStatus
		next  types.JobStatus
		valid bool
	}{
		{"pending to fetching", nil, types.JobStatusFetchingInfo, true},
		{"pending straight to importing", nil, types.JobStatusImporting, true},
		{"stay downloading", []types.JobStatus{types.JobStatusDownloading}, types.JobStatusDownloading, true},
		{"downloading back to fetching", []types.JobStatus{types.JobStatusDownloading}, types.JobStatusFetchingInfo, false},
		{"importing back to pending", []types.JobStatus{types.JobStatusImporting}, types.JobStatusPending, false},
		{"fail from pending", nil, types.JobStatusFailed, true},
		{"cancel from importing", []types.JobStatus{types.JobStatusImporting}, types.JobStatusCancelled, true},
		{"completed is a sink", []types.JobStatus{types.JobStatusCompleted}, types.JobStatusFailed, false},
		{"cancelled is a sink", []types.JobStatus{types.JobStatusCancelled}, types.JobStatusCancelled, false},
		{"failed is a sink", []types.JobStatus{types.JobStatusFailed}, types.JobStatusDownloading, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			job, err := s.Create("a", "mp3")
			require.NoError(t, err)
			for _, st := range tt.path {
				finishOrMove(t, s, job.ID, st)
			}

			patch := Patch{}
			if tt.next == types.JobStatusFailed {
				patch.Error = "boom"
			}
			_, err = s.Transition(job.ID, tt.next, patch)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, types.ErrInvalidTransition)
			}
		})
	}
}

func finishOrMove(t *testing.T, s *JobStore, id string, status types.JobStatus) {
	t.Helper()
	if status.IsTerminal() {
		finish(t, s, id, status)
		return
	}
	_, err := s.Transition(id, status, Patch{})
	require.NoError(t, err)
}

func TestJobStoreTerminalRejectsEveryTransition(t *testing.T) {
	s, _ := newTestStore(t)
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)
	finish(t, s, job.ID, types.JobStatusCompleted)

	for _, st := range []types.JobStatus{
		types.JobStatusPending, types.JobStatusFetchingInfo, types.JobStatusDownloading,
		types.JobStatusImporting, types.JobStatusCompleted, types.JobStatusFailed, types.JobStatusCancelled,
	} {
		_, err := s.Transition(job.ID, st, Patch{Progress: pct(10)})
		assert.ErrorIs(t, err, types.ErrInvalidTransition, st)
	}
	assert.ErrorIs(t, s.AppendLog(job.ID, "x", "y"), types.ErrInvalidTransition)

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.Progress)
}

func TestJobStoreResultAndErrorExclusive(t *testing.T) {
	s, _ := newTestStore(t)
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)

	_, err = s.Transition(job.ID, types.JobStatusDownloading, Patch{Result: &types.JobResult{}})
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = s.Transition(job.ID, types.JobStatusCompleted, Patch{Error: "nope"})
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	failed, err := s.Transition(job.ID, types.JobStatusFailed, Patch{Error: "Download failed"})
	require.NoError(t, err)
	assert.Equal(t, "Download failed", failed.Error)
	assert.Nil(t, failed.Result)
	assert.NotNil(t, failed.CompletedAt)
}

func TestJobStoreProgressNeverDecreases(t *testing.T) {
	s, _ := newTestStore(t)
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)

	steps := []float64{10, 40, 25, 140, -5}
	expected := []float64{10, 40, 40, 100, 100}
	for i, p := range steps {
		got, err := s.Transition(job.ID, types.JobStatusDownloading, Patch{Progress: pct(p)})
		require.NoError(t, err)
		assert.Equal(t, expected[i], got.Progress)
	}
}

func TestJobStoreProgressFrozenOnCancel(t *testing.T) {
	s, _ := newTestStore(t)
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)

	_, err = s.Transition(job.ID, types.JobStatusDownloading, Patch{Progress: pct(42)})
	require.NoError(t, err)
	cancelled, err := s.Transition(job.ID, types.JobStatusCancelled, Patch{})
	require.NoError(t, err)

	assert.Equal(t, 42.0, cancelled.Progress)
	assert.Nil(t, cancelled.Result)
	assert.Empty(t, cancelled.Error)
}

func TestJobStoreLogCap(t *testing.T) {
	s, _ := newTestStore(t, WithMaxLogs(3))
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendLog(job.ID, "step", fmt.Sprintf("msg %d", i)))
	}

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	require.Len(t, got.Logs, 3)
	assert.Equal(t, "msg 2", got.Logs[0].Message)
	assert.Equal(t, "msg 4", got.Logs[2].Message)
}

func TestJobStoreDelete(t *testing.T) {
	s, rec := newTestStore(t)
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(job.ID), types.ErrInvalidState)
	assert.Len(t, s.List(), 1)

	finish(t, s, job.ID, types.JobStatusCancelled)
	require.NoError(t, s.Delete(job.ID))
	assert.Empty(t, s.List())

	_, err = s.Get(job.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, s.Delete(job.ID), types.ErrNotFound)
	assert.ErrorIs(t, s.Delete("unknown"), types.ErrNotFound)

	assert.Equal(t, types.EventDeleted, rec.events[len(rec.events)-1].Type)
}

func TestJobStoreClearTerminal(t *testing.T) {
	s, rec := newTestStore(t)

	assert.Equal(t, 0, s.ClearTerminal())

	for i, status := range []types.JobStatus{types.JobStatusCompleted, types.JobStatusFailed, types.JobStatusCancelled} {
		job, err := s.Create(fmt.Sprintf("url-%d", i), "mp3")
		require.NoError(t, err)
		finish(t, s, job.ID, status)
	}
	active, err := s.Create("active", "mp3")
	require.NoError(t, err)

	assert.Equal(t, 3, s.ClearTerminal())

	jobs := s.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, active.ID, jobs[0].ID)
	assert.Equal(t, active.ID, s.ActiveID())

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, types.EventCleared, last.Type)
	assert.Equal(t, 3, last.Count)

	assert.Equal(t, 0, s.ClearTerminal())
}

func TestJobStorePrunesOldestTerminal(t *testing.T) {
	s, rec := newTestStore(t, WithMaxJobs(2))

	for i := 0; i < 2; i++ {
		job, err := s.Create(fmt.Sprintf("url-%d", i), "mp3")
		require.NoError(t, err)
		finish(t, s, job.ID, types.JobStatusCompleted)
	}

	third, err := s.Create("url-2", "mp3")
	require.NoError(t, err)

	jobs := s.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, "J2", jobs[0].ID)
	assert.Equal(t, third.ID, jobs[1].ID)

	evs := rec.Types()
	assert.Equal(t, []types.EventType{types.EventDeleted, types.EventCreated}, evs[len(evs)-2:])
}

func TestJobStoreSnapshotEvent(t *testing.T) {
	s, _ := newTestStore(t)
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)

	ev := s.SnapshotEvent()
	assert.Equal(t, types.EventSnapshot, ev.Type)
	assert.Equal(t, job.ID, ev.ActiveJobID)
	require.Len(t, ev.Jobs, 1)
	assert.Equal(t, job.ID, ev.Jobs[0].ID)
}

func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

func TestJobStoreTimestamps(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, WithClock(steppingClock(base)))

	job, err := s.Create("a", "mp3")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), job.CreatedAt)
	assert.Nil(t, job.StartedAt)

	job, err = s.Transition(job.ID, types.JobStatusFetchingInfo, Patch{})
	require.NoError(t, err)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, base.Add(2*time.Minute), *job.StartedAt)

	job, err = s.Transition(job.ID, types.JobStatusDownloading, Patch{})
	require.NoError(t, err)
	assert.Equal(t, base.Add(2*time.Minute), *job.StartedAt, "start time is set once")

	finish(t, s, job.ID, types.JobStatusCompleted)
	got, err := s.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, base.Add(4*time.Minute), *got.CompletedAt)
}

func TestJobStoreCancelledBeforeStartHasNoStartTime(t *testing.T) {
	s, _ := newTestStore(t, WithClock(steppingClock(time.Now())))
	job, err := s.Create("a", "mp3")
	require.NoError(t, err)

	got, err := s.Transition(job.ID, types.JobStatusCancelled, Patch{Message: "Cancelled"})
	require.NoError(t, err)
	assert.Nil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
}
