package engine

import "sync"

// CancelSignal is an explicit cancellation handle: an atomic flag for
// a non-blocking check plus a close-once channel for goroutines that
// want to select on cancellation. This is used instead of a propagated
// context.Context so a request's cancellation can be triggered from
// one place (the scheduler or chat session) and observed cheaply from
// the hot decode loop without per-token context value lookups.
type CancelSignal struct {
	mu        sync.Mutex
	cancelled bool
	ch        chan struct{}
	reason    error
}

// NewCancelSignal returns a signal in the not-cancelled state.
func NewCancelSignal() *CancelSignal {
	return &CancelSignal{ch: make(chan struct{})}
}

// Cancel marks the signal cancelled with the given reason (typically
// qerr.ErrCancelledByCaller or qerr.ErrCancelledByTimeout) and closes
// Done(). Safe to call more than once; only the first call has effect.
func (c *CancelSignal) Cancel(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	c.reason = reason
	close(c.ch)
}

// Cancelled reports whether Cancel has been called.
func (c *CancelSignal) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Reason returns the error passed to Cancel, or nil if not cancelled.
func (c *CancelSignal) Reason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Done returns a channel closed when Cancel is first called.
func (c *CancelSignal) Done() <-chan struct{} {
	return c.ch
}
