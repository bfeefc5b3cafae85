package services

import (
	"io"
	"sync"
	"time"

	"ytmusicdl/types"
)

const defaultSubscriberBuffer = 256

// SnapshotSource produces the event that primes a new subscriber
type SnapshotSource interface {
	SnapshotEvent() types.Event
}

// Subscription is one observer's view of the event feed.
// The channel is closed when the subscriber unsubscribes or falls too far behind.
type Subscription struct {
	events chan types.Event
	b      *Broadcaster
}

// Events returns the receive side of the subscription
func (s *Subscription) Events() <-chan types.Event {
	return s.events
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.b.remove(s)
}

// Broadcaster fans store mutations and log lines out to subscribers.
// Publishing never blocks: a subscriber whose buffer is full is dropped.
type Broadcaster struct {
	mu         sync.Mutex
	subs       map[*Subscription]struct{}
	source     SnapshotSource
	logs       *LogBuffer
	bufferSize int
	now        func() time.Time
	closed     bool
}

// NewBroadcaster creates a broadcaster that remembers logLines recent log lines
func NewBroadcaster(logLines int) *Broadcaster {
	return &Broadcaster{
		subs:       make(map[*Subscription]struct{}),
		logs:       NewLogBuffer(logLines),
		bufferSize: defaultSubscriberBuffer,
		now:        time.Now,
	}
}

// SetSnapshotSource sets where the priming snapshot comes from
func (b *Broadcaster) SetSnapshotSource(src SnapshotSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.source = src
}

// SetBufferSize changes the per-subscriber buffer for future subscriptions
func (b *Broadcaster) SetBufferSize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > 0 {
		b.bufferSize = n
	}
}

// Subscribe registers a new observer. The first event is always a snapshot
// carrying the current jobs and the recent log history.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		events: make(chan types.Event, b.bufferSize+1),
		b:      b,
	}
	snapshot := types.Event{Type: types.EventSnapshot, Timestamp: b.now()}
	if b.source != nil {
		snapshot = b.source.SnapshotEvent()
	}
	snapshot.Lines = b.logs.Lines()
	sub.events <- snapshot

	if b.closed {
		close(sub.events)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers event to every subscriber
func (b *Broadcaster) Publish(event types.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fanOutLocked(event)
}

// PublishLog records line in the history and delivers it to every subscriber
func (b *Broadcaster) PublishLog(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logs.Add(line)
	b.fanOutLocked(types.Event{Type: types.EventLog, Line: line, Timestamp: b.now()})
}

func (b *Broadcaster) fanOutLocked(event types.Event) {
	for sub := range b.subs {
		select {
		case sub.events <- event:
		default:
			close(sub.events)
			delete(b.subs, sub)
		}
	}
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.events)
	}
}

// Count returns the number of live subscribers
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// LogHistory returns the buffered log lines, oldest first
func (b *Broadcaster) LogHistory() []string {
	return b.logs.Lines()
}

// LogWriter returns an io.Writer that publishes every complete line written to it.
// Tee the application logger into it to stream server logs to clients.
func (b *Broadcaster) LogWriter() io.Writer {
	return &lineWriter{emit: b.PublishLog}
}

// CloseAll drops every subscriber, closing their channels. Later
// subscriptions receive their snapshot and are closed straight away.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for sub := range b.subs {
		close(sub.events)
		delete(b.subs, sub)
	}
}

// FilterJobEvent narrows an event to a single job. Snapshots keep only that
// job and drop log lines; log events are not part of a job feed.
// An empty jobID passes everything through.
func FilterJobEvent(ev types.Event, jobID string) (types.Event, bool) {
	if jobID == "" {
		return ev, true
	}
	switch ev.Type {
	case types.EventSnapshot:
		jobs := make([]types.Job, 0, 1)
		for _, j := range ev.Jobs {
			if j.ID == jobID {
				jobs = append(jobs, j)
			}
		}
		ev.Jobs = jobs
		ev.Lines = nil
		return ev, true
	case types.EventCreated, types.EventUpdated:
		return ev, ev.Job != nil && ev.Job.ID == jobID
	case types.EventDeleted:
		return ev, ev.JobID == jobID
	case types.EventCleared:
		return ev, true
	}
	return ev, false
}
