package scheduler

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"golang.org/x/sync/semaphore"

	"github.com/nanoforge/qmfrt/config"
	"github.com/nanoforge/qmfrt/qerr"
)

// BatchHandler is invoked by the scheduler loop with each non-empty
// formed batch. It runs on the scheduler goroutine (spec.md §5: the
// scheduler may itself execute kernels, or dispatch to worker
// goroutines — that choice belongs to the handler, not this package).
type BatchHandler func(batch []*Request)

// Options configures a Scheduler. Zero values fall back to the
// config package's defaults.
type Options struct {
	MaxBatchSize    int
	MaxTotalQueued  int
	MaxBatchWait    time.Duration
	ShutdownWait    time.Duration
	Deterministic   bool
}

func (o *Options) applyDefaults() {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = int(config.MaxBatchSize())
	}
	if o.MaxTotalQueued <= 0 {
		o.MaxTotalQueued = int(config.MaxTotalQueued())
	}
	if o.MaxBatchWait <= 0 {
		o.MaxBatchWait = config.MaxBatchWait()
	}
	if o.ShutdownWait <= 0 {
		o.ShutdownWait = config.SchedulerShutdownWait()
	}
}

// Scheduler owns the pending FIFO and the single background loop that
// forms and dispatches batches. The pending deque is touched only
// from Submit's short critical section or from the loop goroutine
// itself, never from both concurrently without the mutex held.
type Scheduler struct {
	opts    Options
	handler BatchHandler

	mu      sync.Mutex
	pending *deque.Deque[*Request]

	// admission bounds how many requests may sit in pending at once;
	// TryAcquire gives the non-blocking "is there room" check Submit
	// needs, and Release is called once a request leaves pending
	// (dispatched into a batch, or dropped as cancelled), giving that
	// slot back to new submissions.
	admission *semaphore.Weighted

	// wake is a buffered signal (conceptually a counting semaphore of
	// depth 1: "there may be new pending work") the loop selects on
	// alongside a max_batch_wait_ms timeout.
	wake chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

// New starts the scheduler's background loop immediately and returns
// the handle producers submit to.
func New(opts Options, handler BatchHandler) *Scheduler {
	opts.applyDefaults()
	s := &Scheduler{
		opts:      opts,
		handler:   handler,
		pending:   deque.New[*Request](),
		admission: semaphore.NewWeighted(int64(opts.MaxTotalQueued)),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	go s.loop()
	return s
}

// Submit enqueues req, failing with qerr.ErrResourceExhausted (wrapped
// in a *qerr.QueueError) if the pending queue is already at
// MaxTotalQueued.
func (s *Scheduler) Submit(req *Request) error {
	if !s.admission.TryAcquire(1) {
		s.mu.Lock()
		current := s.pending.Len()
		s.mu.Unlock()
		return fmt.Errorf("scheduler: %w", &qerr.QueueError{MaxQueued: s.opts.MaxTotalQueued, Current: current})
	}
	req.submittedAt = time.Now()

	s.mu.Lock()
	s.pending.PushBack(req)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending reports the current pending queue depth, for tests and
// diagnostics.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// loop is the single scheduler goroutine: it waits for a wake signal
// or the max_batch_wait timeout, skims cancelled requests from the
// pending head, forms a batch of compatible requests up to
// MaxBatchSize, and dispatches it.
func (s *Scheduler) loop() {
	defer close(s.loopDone)
	timer := time.NewTimer(s.opts.MaxBatchWait)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			s.drain()
			return
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.opts.MaxBatchWait)
		case <-timer.C:
			timer.Reset(s.opts.MaxBatchWait)
		}

		batch := s.formBatch()
		if len(batch) > 0 {
			if s.opts.Deterministic {
				batch = deterministicOrder(batch)
			}
			s.handler(batch)
		}
	}
}

// formBatch drops cancelled requests from the pending head, then
// pulls requests while under MaxBatchSize and compatible with the
// batch's first request (spec.md §4.10 step (b)).
func (s *Scheduler) formBatch() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.skimCancelledLocked()

	if s.pending.Len() == 0 {
		return nil
	}

	var batch []*Request
	var i int
	for i < s.pending.Len() && len(batch) < s.opts.MaxBatchSize {
		cand := s.pending.At(i)
		if cand.Cancel.Cancelled() {
			s.removeAtLocked(i)
			cand.resolve(Result{Reason: CancelledByCaller, Err: qerr.ErrCancelledByCaller})
			s.admission.Release(1)
			continue
		}
		if len(batch) == 0 || compatible(batch[0], cand) {
			batch = append(batch, cand)
			s.removeAtLocked(i)
			s.admission.Release(1)
			continue
		}
		i++
	}
	return batch
}

// skimCancelledLocked drops cancelled requests sitting at the pending
// head, matching spec.md §4.10 step (a) ("drops cancelled requests
// from the head"). Requires s.mu held.
func (s *Scheduler) skimCancelledLocked() {
	for s.pending.Len() > 0 && s.pending.Front().Cancel.Cancelled() {
		req := s.pending.PopFront()
		req.resolve(Result{Reason: CancelledByCaller, Err: qerr.ErrCancelledByCaller})
		s.admission.Release(1)
	}
}

// removeAtLocked removes the element at index i from the pending
// deque. gammazero/deque has no arbitrary-index remove, so this
// rebuilds the deque around the removed element; batches are bounded
// by MaxBatchSize so this stays cheap in practice.
func (s *Scheduler) removeAtLocked(i int) {
	rebuilt := deque.New[*Request](s.pending.Len())
	for j := 0; j < s.pending.Len(); j++ {
		if j == i {
			continue
		}
		rebuilt.PushBack(s.pending.At(j))
	}
	s.pending = rebuilt
}

// drain resolves every request still in the pending queue with a
// scheduler-shutdown error, called once Shutdown signals stop.
func (s *Scheduler) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending.Len() > 0 {
		req := s.pending.PopFront()
		req.resolve(Result{Reason: Error, Err: fmt.Errorf("%w: scheduler shutdown", qerr.ErrInternal)})
		s.admission.Release(1)
	}
}

// Shutdown cancels the loop, drains the pending queue (each request
// resolves with StopReason Error / "scheduler shutdown"), and waits up
// to opts.ShutdownWait for the loop goroutine to exit.
func (s *Scheduler) Shutdown() error {
	s.stopOnce.Do(func() { close(s.stop) })
	select {
	case <-s.loopDone:
		return nil
	case <-time.After(s.opts.ShutdownWait):
		return fmt.Errorf("%w: scheduler loop did not exit within %s", qerr.ErrInternal, s.opts.ShutdownWait)
	}
}

// deterministicOrder computes a reproducible ordering for batch when
// Options.Deterministic is set, keyed on the first request's prompt
// tokens, MaxNewTokens, and seed.
//
// Open question (spec.md §9, preserved as-is): the source this was
// distilled from takes only the *first* request's prompt tokens as
// representative of the whole batch when computing the deterministic
// schedule. What this means for a batch of otherwise-compatible but
// textually dissimilar requests is unclear from the spec; here the
// batch key still comes from the first request alone, and each request
// is ranked by a hash of that key combined with its own scheduleKey so
// the batch gets a reproducible order.
func deterministicOrder(batch []*Request) []*Request {
	if len(batch) <= 1 {
		return batch
	}
	key := scheduleKey(batch[0])
	ordered := append([]*Request(nil), batch...)
	// A stable, key-derived permutation: sort by a per-request hash of
	// (key, that request's own prompt_tokens/max_new_tokens/seed), so
	// the order is a pure function of the batch's deterministic inputs
	// and reproduces identically across runs. Scoring by the request's
	// random ID (uuid.New()) would make the permutation itself
	// non-reproducible even for an identical logical batch, which
	// spec.md §5 forbids ("the scheduler's request ordering within a
	// batch ... must be reproducible").
	type scored struct {
		req   *Request
		score uint64
	}
	scoredSlice := make([]scored, len(ordered))
	for i, r := range ordered {
		scoredSlice[i] = scored{req: r, score: hashOf(key, scheduleKey(r))}
	}
	for i := 1; i < len(scoredSlice); i++ {
		for j := i; j > 0 && scoredSlice[j].score < scoredSlice[j-1].score; j-- {
			scoredSlice[j], scoredSlice[j-1] = scoredSlice[j-1], scoredSlice[j]
		}
	}
	for i, sc := range scoredSlice {
		ordered[i] = sc.req
	}
	return ordered
}

// scheduleKey derives the representative key string from
// (prompt_tokens, max_new_tokens, policy, seed) per spec.md §4.10.
func scheduleKey(rep *Request) string {
	h := sha256.New()
	for _, t := range rep.PromptTokens {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(t))
		h.Write(buf[:])
	}
	fmt.Fprintf(h, "|%d|%d|%d", rep.MaxNewTokens, rep.Options.Mode, rep.Options.Seed)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func hashOf(key, suffix string) uint64 {
	h := sha256.Sum256([]byte(key + "|" + suffix))
	return binary.LittleEndian.Uint64(h[:8])
}
