package services

import (
	"context"
	"sync"
	"sync/atomic"
)

// CancelToken is a one-shot cooperative cancellation flag.
//
// Long-running work polls Cancelled at its own checkpoints; nothing is
// interrupted preemptively.
type CancelToken struct {
	requested atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewCancelToken returns a token in the not-cancelled state
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel sets the flag. Calling it more than once is a no-op.
func (t *CancelToken) Cancel() {
	t.once.Do(func() {
		t.requested.Store(true)
		close(t.done)
	})
}

// Cancelled reports whether Cancel has been called
func (t *CancelToken) Cancelled() bool {
	return t.requested.Load()
}

// Done is closed once Cancel has been called
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// Context derives a context that is cancelled when either parent ends or
// the token fires. The returned stop func releases the watcher goroutine.
func (t *CancelToken) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
