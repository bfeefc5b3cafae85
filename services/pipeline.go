package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ytmusicdl/types"
)

// Phase names reported by a pipeline run
type Phase string

const (
	PhaseFetchingInfo Phase = "fetching_info"
	PhaseDownloading  Phase = "downloading"
	PhaseImporting    Phase = "importing"
)

// ErrCancelled is returned by a producer that stopped because its token fired
var ErrCancelled = errors.New("cancelled")

// ProgressEvent is one step reported by a pipeline.
// Current/Total give the completed fraction of Phase. Track and Tracks are
// display counters. An empty Message updates progress without adding a log entry.
type ProgressEvent struct {
	Phase   Phase
	Current int
	Total   int
	Track   int
	Tracks  int
	Message string
	Album   *types.AlbumInfo
}

// Fraction returns Current/Total clamped to [0,1]
func (e ProgressEvent) Fraction() float64 {
	if e.Total <= 0 {
		return 0
	}
	f := float64(e.Current) / float64(e.Total)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Request is what the executor hands to a pipeline
type Request struct {
	JobID       string
	URL         string
	AudioFormat string
}

// Pipeline produces a lazy sequence of progress events for one request
type Pipeline interface {
	Run(ctx context.Context, req Request, token *CancelToken) Stream
}

// Stream is a pull-based sequence of progress events ending in a result,
// an error, or cancellation.
type Stream interface {
	// Next blocks until another event is available. It returns false once the run ended.
	Next() bool
	Event() ProgressEvent
	// Result is valid after Next returned false.
	Result() (*types.JobResult, error)
	Cancelled() bool
	// Close abandons the stream and waits for the producer to exit.
	Close()
}

// Producer does the work of one run, calling emit for every progress event.
// emit returns false once the consumer has abandoned the stream.
// Returning ErrCancelled ends the stream as cancelled.
type Producer func(ctx context.Context, emit func(ProgressEvent) bool) (*types.JobResult, error)

// PipelineFunc adapts a Producer to the Pipeline interface
type PipelineFunc func(ctx context.Context, req Request, token *CancelToken, emit func(ProgressEvent) bool) (*types.JobResult, error)

// Run implements Pipeline
func (f PipelineFunc) Run(ctx context.Context, req Request, token *CancelToken) Stream {
	return NewStream(ctx, func(ctx context.Context, emit func(ProgressEvent) bool) (*types.JobResult, error) {
		return f(ctx, req, token, emit)
	})
}

// chanStream runs a Producer on its own goroutine and hands events over an unbuffered channel
type chanStream struct {
	events chan ProgressEvent
	cancel context.CancelFunc
	once   sync.Once

	current   ProgressEvent
	result    *types.JobResult
	err       error
	cancelled bool
}

// NewStream starts produce on a new goroutine
func NewStream(ctx context.Context, produce Producer) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &chanStream{
		events: make(chan ProgressEvent),
		cancel: cancel,
	}
	go s.run(ctx, produce)
	return s
}

func (s *chanStream) run(ctx context.Context, produce Producer) {
	defer close(s.events)

	emit := func(ev ProgressEvent) bool {
		select {
		case s.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.err = &panicError{value: r}
			}
		}()
		s.result, s.err = produce(ctx, emit)
	}()

	if errors.Is(s.err, ErrCancelled) {
		s.cancelled = true
		s.err = nil
		s.result = nil
	}
}

func (s *chanStream) Next() bool {
	ev, ok := <-s.events
	if !ok {
		return false
	}
	s.current = ev
	return true
}

func (s *chanStream) Event() ProgressEvent {
	return s.current
}

func (s *chanStream) Result() (*types.JobResult, error) {
	return s.result, s.err
}

func (s *chanStream) Cancelled() bool {
	return s.cancelled
}

func (s *chanStream) Close() {
	s.once.Do(func() {
		s.cancel()
		for range s.events {
		}
	})
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("pipeline panicked: %v", p.value)
}
