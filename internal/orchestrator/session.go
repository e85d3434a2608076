package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/planfold/planfold/internal/domain"
	"github.com/planfold/planfold/internal/memory"
)

// Session is one conversation with its own state, memory, and plan slot.
// Sessions share nothing with each other beyond the registry that owns them.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.Mutex
	state       domain.State
	requirement string
	plan        *domain.ImplementationPlan
	memory      *memory.Memory
	busy        bool
	cancel      context.CancelFunc
}

func newSession(id string, mem *memory.Memory) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		state:     domain.StateInitial,
		memory:    mem,
	}
}

// State returns the current conversation state.
func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Plan returns the latest normalized plan, or nil when none exists yet.
func (s *Session) Plan() *domain.ImplementationPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return nil
	}
	cp := *s.plan
	return &cp
}

// Requirement returns the validated requirement, empty until clarification
// confirms one.
func (s *Session) Requirement() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requirement
}

// acquire marks the session busy for one submission. It fails when a prior
// submission is still being handled: input is rejected, never queued behind
// an in-flight transition.
func (s *Session) acquire(ctx context.Context) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, false
	}
	s.busy = true
	ctx, s.cancel = context.WithCancel(ctx)
	return ctx, true
}

// release clears the busy flag at the end of a submission.
func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// abort cancels any in-flight submission. Used by session teardown; the
// processing goroutine observes the cancellation and exits without emitting
// a plan.
func (s *Session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) setRequirement(req string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requirement = req
}

func (s *Session) setPlan(plan domain.ImplementationPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = &plan
}

func (s *Session) clearCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requirement = ""
	s.plan = nil
}
