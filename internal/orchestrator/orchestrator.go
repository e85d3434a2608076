package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planfold/planfold/internal/analysis"
	"github.com/planfold/planfold/internal/domain"
	"github.com/planfold/planfold/internal/memory"
	"github.com/planfold/planfold/internal/reasoning"
	"github.com/planfold/planfold/internal/store"
)

var (
	// ErrSessionNotFound is returned for operations on unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy is returned when a submission arrives while a prior one
	// is still being handled.
	ErrSessionBusy = errors.New("session is busy")
	// ErrEmptyMessage is returned for blank submissions.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInvalidTransition indicates a state machine invariant violation. It
	// should be unreachable; reaching it is a bug, not a user error.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// userFacingFailure is the only failure text users ever see. Raw internal
// error detail goes to logs, not to the event stream.
const userFacingFailure = "The analysis could not complete. Please retry or rephrase your requirement."

// historyLimit bounds how much conversation is rendered into prompts.
const historyLimit = 20

// MessagePayload is the body of a message event.
type MessagePayload struct {
	Role    domain.Role        `json:"role"`
	Content string             `json:"content"`
	Kind    domain.MessageKind `json:"kind"`
}

// StatusPayload is the body of a status event: either a state transition or
// strategy/stage progress.
type StatusPayload struct {
	State    domain.State `json:"state,omitempty"`
	Strategy string       `json:"strategy,omitempty"`
	Stage    string       `json:"stage,omitempty"`
	Phase    string       `json:"phase,omitempty"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Config carries the orchestrator's tunables.
type Config struct {
	MaxMessages int
	MaxBytes    int
	// Hint pins the execution strategy; empty or "auto" enables failover.
	Hint analysis.Hint
}

// Orchestrator owns the session registry and drives each session's state
// machine. All session mutation flows through Submit; reads are lock-free
// snapshots.
type Orchestrator struct {
	cfg      Config
	selector *analysis.Selector
	invoker  reasoning.Invoker
	prompts  *analysis.Prompts
	hub      *Hub
	repo     store.Repository
	archiver memory.Archiver
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func New(cfg Config, selector *analysis.Selector, invoker reasoning.Invoker, prompts *analysis.Prompts, hub *Hub, repo store.Repository, archiver memory.Archiver, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		selector: selector,
		invoker:  invoker,
		prompts:  prompts,
		hub:      hub,
		repo:     repo,
		archiver: archiver,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Hub exposes the event hub for stream transports.
func (o *Orchestrator) Hub() *Hub {
	return o.hub
}

// NewSession creates and registers a session.
func (o *Orchestrator) NewSession(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	mem := memory.New(id, o.cfg.MaxMessages, o.cfg.MaxBytes, o.archiver)
	sess := newSession(id, mem)

	o.mu.Lock()
	o.sessions[id] = sess
	o.mu.Unlock()

	o.persistSnapshot(ctx, sess)
	o.logger.Info("session created", "session_id", id)
	return sess, nil
}

// Get returns a registered session.
func (o *Orchestrator) Get(sessionID string) (*Session, error) {
	o.mu.RLock()
	sess, ok := o.sessions[sessionID]
	o.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Remove tears a session down: cancels in-flight processing, archives the
// remaining conversation, and drops the session's event queue.
func (o *Orchestrator) Remove(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	sess, ok := o.sessions[sessionID]
	if ok {
		delete(o.sessions, sessionID)
	}
	o.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.abort()
	sess.memory.Clear()
	o.hub.Drop(sessionID)
	if err := o.repo.DeleteSession(ctx, sessionID); err != nil {
		o.logger.Warn("failed to delete session snapshot", "session_id", sessionID, "error", err)
	}
	o.logger.Info("session removed", "session_id", sessionID)
	return nil
}

// History returns the most recent limit messages of a session.
func (o *Orchestrator) History(sessionID string, limit int) ([]domain.Message, error) {
	sess, err := o.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.memory.History(limit), nil
}

// Submit ingests one user message. It returns once the submission is
// accepted; the outcome arrives asynchronously on the event stream. Exactly
// one submission per session is in flight at a time: a second one is
// rejected with ErrSessionBusy, never queued or interleaved.
func (o *Orchestrator) Submit(ctx context.Context, sessionID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	sess, err := o.Get(sessionID)
	if err != nil {
		return err
	}

	// The submission outlives the HTTP request, so the work context derives
	// from the process, not from ctx. Teardown cancels it via the session.
	workCtx, ok := sess.acquire(context.Background())
	if !ok {
		return ErrSessionBusy
	}

	go func() {
		defer sess.release()
		o.handle(workCtx, sess, text)
	}()
	return nil
}

// handle runs one full submission cycle while the session's busy flag is
// held.
func (o *Orchestrator) handle(ctx context.Context, sess *Session, text string) {
	o.appendMessage(sess, domain.Message{
		Role:      domain.RoleUser,
		Content:   text,
		Kind:      domain.KindInput,
		Timestamp: time.Now().UTC(),
	})

	state := sess.State()
	switch state {
	case domain.StateInitial:
		if err := o.transition(ctx, sess, domain.StateClarifying); err != nil {
			return
		}
		o.clarify(ctx, sess, text)
	case domain.StateClarifying:
		o.clarify(ctx, sess, text)
	case domain.StatePlanReview:
		o.review(ctx, sess, text)
	case domain.StatePlanRefinement:
		o.refine(ctx, sess, text)
	case domain.StateCompleted:
		// A new message on a completed session starts a fresh cycle.
		sess.clearCycle()
		if err := o.transition(ctx, sess, domain.StateInitial); err != nil {
			return
		}
		if err := o.transition(ctx, sess, domain.StateClarifying); err != nil {
			return
		}
		o.clarify(ctx, sess, text)
	default:
		// Processing and RequirementsValidated are unreachable here: both
		// exist only while the busy flag is held.
		o.logger.Error("submission in unexpected state",
			"session_id", sess.ID, "state", state)
	}
}

// clarify runs one clarification round: ask the reasoning backend whether the
// requirement is sufficient, and either keep asking or move on to analysis.
func (o *Orchestrator) clarify(ctx context.Context, sess *Session, text string) {
	prompt := o.prompts.RenderClarifier(text, o.conversation(sess))
	reply, err := o.invoker.Invoke(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.logger.Error("clarifier invocation failed", "session_id", sess.ID, "error", err)
		o.emitError(sess)
		return
	}

	verdict := parseClarifierReply(reply)
	if !verdict.sufficient {
		if err := o.transition(ctx, sess, domain.StateClarifying); err != nil {
			return
		}
		o.emitAgentMessage(sess, verdict.question, domain.KindClarification)
		return
	}

	sess.setRequirement(verdict.requirement)
	if err := o.transition(ctx, sess, domain.StateRequirementsValidated); err != nil {
		return
	}
	o.process(ctx, sess)
}

// process runs the execution selector. It is the machine's only suspension
// point; everything else transitions synchronously.
func (o *Orchestrator) process(ctx context.Context, sess *Session) {
	if err := o.transition(ctx, sess, domain.StateProcessing); err != nil {
		return
	}

	req := analysis.Request{
		SessionID:   sess.ID,
		Requirement: sess.Requirement(),
		Context:     o.conversation(sess),
		Status: func(e analysis.StatusEvent) {
			o.hub.Publish(sess.ID, EventStatus, StatusPayload{
				Strategy: e.Strategy,
				Stage:    e.Stage,
				Phase:    string(e.Phase),
			})
		},
	}

	plan, err := o.selector.Execute(ctx, o.cfg.Hint, req)
	if err != nil {
		if ctx.Err() != nil {
			o.logger.Info("processing cancelled", "session_id", sess.ID)
			return
		}
		o.logger.Error("all execution strategies failed", "session_id", sess.ID, "error", err)
		if terr := o.transition(ctx, sess, domain.StateClarifying); terr != nil {
			return
		}
		o.emitError(sess)
		return
	}

	sess.setPlan(plan)
	if err := o.repo.SavePlan(ctx, sess.ID, &plan); err != nil {
		o.logger.Warn("failed to persist plan", "session_id", sess.ID, "error", err)
	}
	if err := o.transition(ctx, sess, domain.StatePlanReview); err != nil {
		return
	}
	o.hub.Publish(sess.ID, EventPlan, plan)
	o.emitAgentMessage(sess,
		"Your implementation plan is ready. Reply \"approve\" to accept it, describe what to change, or ask for details.",
		domain.KindStatus)
}

// review interprets the user's verdict on a presented plan.
func (o *Orchestrator) review(ctx context.Context, sess *Session, text string) {
	switch classifyReview(text) {
	case intentApprove:
		if err := o.transition(ctx, sess, domain.StateCompleted); err != nil {
			return
		}
		o.emitAgentMessage(sess, "Plan approved. Send a new requirement to start another plan.", domain.KindStatus)
	case intentModify:
		if err := o.transition(ctx, sess, domain.StatePlanRefinement); err != nil {
			return
		}
		o.emitAgentMessage(sess, "What would you like to change about the plan?", domain.KindClarification)
	case intentDetails:
		if err := o.transition(ctx, sess, domain.StatePlanReview); err != nil {
			return
		}
		if plan := sess.Plan(); plan != nil {
			o.hub.Publish(sess.ID, EventPlan, *plan)
		}
		o.emitAgentMessage(sess, planDetails(sess.Plan()), domain.KindStatus)
	default:
		if err := o.transition(ctx, sess, domain.StatePlanReview); err != nil {
			return
		}
		o.emitAgentMessage(sess,
			"I didn't catch that. Reply \"approve\" to accept the plan, describe a change, or ask for details.",
			domain.KindClarification)
	}
}

// refine merges the user's change request into the requirement and re-runs
// analysis.
func (o *Orchestrator) refine(ctx context.Context, sess *Session, text string) {
	merged := sess.Requirement() + "\n\nRequested changes: " + text
	sess.setRequirement(merged)
	if err := o.transition(ctx, sess, domain.StateRequirementsValidated); err != nil {
		return
	}
	o.process(ctx, sess)
}

// transition moves the session to next, publishes the status event, and
// persists a snapshot. An illegal edge is a programming error: it is logged
// and the session is left untouched.
func (o *Orchestrator) transition(ctx context.Context, sess *Session, next domain.State) error {
	sess.mu.Lock()
	current := sess.state
	if !current.CanTransition(next) {
		sess.mu.Unlock()
		o.logger.Error("invalid state transition",
			"session_id", sess.ID, "from", current, "to", next)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	sess.state = next
	sess.mu.Unlock()

	o.hub.Publish(sess.ID, EventStatus, StatusPayload{State: next})
	o.persistSnapshot(ctx, sess)
	o.logger.Debug("state transition", "session_id", sess.ID, "from", current, "to", next)
	return nil
}

// conversation renders recent history as prompt context.
func (o *Orchestrator) conversation(sess *Session) string {
	msgs := sess.memory.History(historyLimit)
	if len(msgs) == 0 {
		return "(no prior conversation)"
	}
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *Orchestrator) appendMessage(sess *Session, msg domain.Message) {
	sess.memory.Append(msg)
}

// emitAgentMessage records an agent message and publishes it as a message
// event.
func (o *Orchestrator) emitAgentMessage(sess *Session, content string, kind domain.MessageKind) {
	msg := domain.Message{
		Role:      domain.RoleAgent,
		Content:   content,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
	sess.memory.Append(msg)
	o.hub.Publish(sess.ID, EventMessage, MessagePayload{
		Role:    msg.Role,
		Content: msg.Content,
		Kind:    msg.Kind,
	})
}

// emitError surfaces a failure with the fixed user-facing phrasing.
func (o *Orchestrator) emitError(sess *Session) {
	msg := domain.Message{
		Role:      domain.RoleAgent,
		Content:   userFacingFailure,
		Kind:      domain.KindError,
		Timestamp: time.Now().UTC(),
	}
	sess.memory.Append(msg)
	o.hub.Publish(sess.ID, EventError, ErrorPayload{Message: userFacingFailure})
}

// persistSnapshot writes the session's state for diagnostics. Persistence is
// best-effort: the in-memory registry is authoritative.
func (o *Orchestrator) persistSnapshot(ctx context.Context, sess *Session) {
	snap := &store.SessionSnapshot{
		SessionID:   sess.ID,
		State:       sess.State(),
		Requirement: sess.Requirement(),
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := o.repo.SaveSession(ctx, snap); err != nil {
		o.logger.Warn("failed to persist session snapshot", "session_id", sess.ID, "error", err)
	}
}

// planDetails renders a plan as review text.
func planDetails(plan *domain.ImplementationPlan) string {
	if plan == nil {
		return "No plan is available yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Effort: %s, team size: %s, duration: %s.\n",
		plan.Summary.Effort, plan.Summary.TeamSize, plan.Summary.Duration)
	for _, t := range plan.Tasks {
		fmt.Fprintf(&b, "%s: %s (%s", t.ID, t.Title, t.Effort)
		if t.Role != "" {
			fmt.Fprintf(&b, ", %s", t.Role)
		}
		b.WriteString(")\n")
	}
	if len(plan.Risks) > 0 {
		fmt.Fprintf(&b, "Risks: %s\n", strings.Join(plan.Risks, "; "))
	}
	return strings.TrimRight(b.String(), "\n")
}
