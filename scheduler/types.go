// Package scheduler implements the batch-forming scheduler loop
// (spec.md §4.10): a bounded FIFO of pending requests, a single
// dedicated goroutine that skims cancellations and folds
// batch-compatible requests together, and a dispatch callback handed
// each formed batch. Producers submit from any goroutine; only the
// loop goroutine ever mutates the in-progress batch buffer, per
// spec.md §5's "no shared mutation of the pending queue from anywhere
// else".
//
// Grounded on runner/ollamarunner/runner_batch.go's run/forwardBatch/
// flushPending/removeSequence shape (resumable scan, skim-cancelled-
// from-head, single background loop) and server/sched_types.go's
// channel/goroutine shape, rewritten here for token-batch scheduling
// of already-tokenized requests rather than model-load scheduling.
package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/nanoforge/qmfrt/constraint"
	"github.com/nanoforge/qmfrt/engine"
	"github.com/nanoforge/qmfrt/sample"
)

// ModelHandle identifies which loaded model a request targets. The
// scheduler only ever compares handles for equality; it never
// dereferences one.
type ModelHandle string

// StopReason is the single terminal outcome every request ends with
// (spec.md §7's user-visible behavior: exactly one of these per
// request).
type StopReason int

const (
	Completed StopReason = iota
	MaxTokens
	CancelledByCaller
	CancelledByTimeout
	Error
)

func (r StopReason) String() string {
	switch r {
	case Completed:
		return "completed"
	case MaxTokens:
		return "max_tokens"
	case CancelledByCaller:
		return "cancelled_by_caller"
	case CancelledByTimeout:
		return "cancelled_by_timeout"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the completion promise's resolved value.
type Result struct {
	Reason StopReason
	Err    error // non-nil iff Reason == Error
}

// TokenEvent is one generated token delivered to a request's event
// sink, strictly in generation order (spec.md §5 ordering guarantee).
type TokenEvent struct {
	TokenID int
	Text    string
}

// Request is one InferenceRequest (spec.md §3): prompt tokens,
// generation options, a cancellation signal, an event sink, and a
// completion promise. The submitter and the scheduler share it for
// its full lifetime (submitter produces Cancel and consumes Events;
// the scheduler consumes the request and resolves Done exactly once).
type Request struct {
	ID           uuid.UUID
	Model        ModelHandle
	PromptTokens []int
	MaxNewTokens int
	Options      sample.Options
	Enforcer     constraint.Enforcer

	Cancel *engine.CancelSignal
	Events chan TokenEvent

	submittedAt time.Time
	done        chan Result
	resolved    bool
}

// NewRequest allocates a Request ready for Submit. eventBuffer sizes
// the Events channel (0 is a valid unbuffered sink if the caller
// drains synchronously).
func NewRequest(model ModelHandle, promptTokens []int, maxNewTokens int, opts sample.Options, enforcer constraint.Enforcer, eventBuffer int) *Request {
	if enforcer == nil {
		enforcer = constraint.Unconstrained{}
	}
	return &Request{
		ID:           uuid.New(),
		Model:        model,
		PromptTokens: promptTokens,
		MaxNewTokens: maxNewTokens,
		Options:      opts,
		Enforcer:     enforcer,
		Cancel:       engine.NewCancelSignal(),
		Events:       make(chan TokenEvent, eventBuffer),
		done:         make(chan Result, 1),
	}
}

// Done returns the channel the request's single Result is delivered
// on, exactly once.
func (r *Request) Done() <-chan Result { return r.done }

// resolve delivers res on Done exactly once; later calls are no-ops,
// matching spec.md §7's "exactly one of {...}" per request.
func (r *Request) resolve(res Result) {
	if r.resolved {
		return
	}
	r.resolved = true
	r.done <- res
	close(r.Events)
}

// compatible implements spec.md §4.10's batch-compatibility predicate:
// requests share a model handle, the same decode mode, and the same
// constraint-enforcer kind.
//
// Open question (spec.md §9, preserved as-is, not fixed): this
// predicate ignores MaxNewTokens, so two requests with wildly
// different max-new-tokens can still share a batch; whether that is
// intentional or a latent bug in the source this spec was distilled
// from is unresolved, and this implementation does not change it.
func compatible(a, b *Request) bool {
	return a.Model == b.Model &&
		a.Options.Mode == b.Options.Mode &&
		constraint.KindOf(a.Enforcer) == constraint.KindOf(b.Enforcer)
}
