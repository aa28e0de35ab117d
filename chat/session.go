// Package chat implements the session layer (spec.md §4.11): an
// append-only ordered turn log driving streaming generation against
// one persistent execution context, with per-turn cancellation that
// truncates the in-progress assistant turn to whatever has already
// been emitted rather than discarding it.
//
// Grounded on runner/ollamarunner/runner_sequence.go's
// truncate-on-cancel style (a cancelled sequence keeps its
// already-flushed pendingResponses rather than being thrown away); the
// turn log itself is new, since the teacher's chat history lives in
// its HTTP layer, which is out of scope here (spec.md §1, §6).
package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nanoforge/qmfrt/constraint"
	"github.com/nanoforge/qmfrt/engine"
	"github.com/nanoforge/qmfrt/qerr"
	"github.com/nanoforge/qmfrt/sample"
	"github.com/nanoforge/qmfrt/scheduler"
	"github.com/nanoforge/qmfrt/telemetry"
)

// Role identifies who spoke a Turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a Session's append-only log.
type Turn struct {
	Role       Role
	Content    string
	TokenStart int
	TokenEnd   int
}

// Generator bridges a Session's ExecutionContext to whatever composes
// kernels and weight tensors into a next-token distribution; full
// transformer layer composition is a caller concern (spec.md §2), so
// this package only defines the seam a model-forward implementation
// plugs into. onToken is called once per generated token, in order;
// Generate must stop promptly (at the next token boundary, never
// mid-kernel, per spec.md §5) once cancel.Cancelled() is true.
type Generator interface {
	Generate(ectx *engine.ExecutionContext, cancel *engine.CancelSignal, promptTokens []int, opts sample.Options, enforcer constraint.Enforcer, onToken func(tokenID int, text string)) (scheduler.StopReason, error)
}

// Session owns one ExecutionContext (and therefore one KV cache
// handle) exclusively for its lifetime, plus the ordered turn log and
// telemetry aggregates spec.md §3 assigns it.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	ctx *engine.ExecutionContext
	gen Generator

	mu         sync.Mutex
	turns      []Turn
	tokenCount int

	DecodeLatency *telemetry.PercentileAggregator
}

// New returns a Session bound to ctx and gen. ctx's KV cache persists
// across turns until ResetContext is called explicitly.
func New(ctx *engine.ExecutionContext, gen Generator) *Session {
	return &Session{
		ID:            uuid.New(),
		CreatedAt:     time.Now(),
		ctx:           ctx,
		gen:           gen,
		DecodeLatency: telemetry.NewPercentileAggregator(0),
	}
}

// Turns returns a copy of the turn log, oldest first.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// AppendSystem and AppendUser record a non-generated turn (a system
// prompt, or a user message with no immediate reply requested)
// directly into the log without running generation.
func (s *Session) AppendSystem(content string) { s.append(RoleSystem, content) }
func (s *Session) AppendUser(content string)    { s.append(RoleUser, content) }

func (s *Session) append(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Content: content, TokenStart: s.tokenCount, TokenEnd: s.tokenCount})
}

// Send appends userMsg as a user turn, then runs generation against
// the session's execution context, streaming tokens through onToken
// (may be nil) as they arrive and appending the assistant's output as
// a new turn once generation stops. If cancel is cancelled mid-
// generation, the assistant turn is truncated to exactly what had
// been emitted before the cancellation took effect — nothing is
// discarded, nothing is fabricated to "complete" the turn.
func (s *Session) Send(userMsg string, promptTokens []int, opts sample.Options, enforcer constraint.Enforcer, cancel *engine.CancelSignal, onToken func(tokenID int, text string)) (string, scheduler.StopReason, error) {
	if s.gen == nil {
		return "", scheduler.Error, qerr.ErrInvalidInput
	}
	if cancel == nil {
		cancel = engine.NewCancelSignal()
	}

	s.AppendUser(userMsg)

	s.mu.Lock()
	start := s.tokenCount
	s.mu.Unlock()

	var sb strings.Builder
	sink := func(tokenID int, text string) {
		sb.WriteString(text)
		s.mu.Lock()
		s.tokenCount++
		s.mu.Unlock()
		if onToken != nil {
			onToken(tokenID, text)
		}
	}

	reason, err := s.gen.Generate(s.ctx, cancel, promptTokens, opts, enforcer, sink)

	s.mu.Lock()
	end := s.tokenCount
	s.turns = append(s.turns, Turn{Role: RoleAssistant, Content: sb.String(), TokenStart: start, TokenEnd: end})
	s.mu.Unlock()

	return sb.String(), reason, err
}

// ResetContext resets the session's KV cache and position while
// preserving the turn log and telemetry aggregates.
func (s *Session) ResetContext() {
	s.ctx.Cache.Reset()
}

// Context exposes the session's ExecutionContext for callers that need
// direct access (e.g. to inspect Position/Mode before building the next
// prompt's tokens).
func (s *Session) Context() *engine.ExecutionContext { return s.ctx }
