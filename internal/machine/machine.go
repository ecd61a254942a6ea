package machine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/futig/interview-client/internal/entity"
	pkgRetry "github.com/futig/interview-client/internal/pkg/retry"
	"github.com/futig/interview-client/internal/pkg/validator"
	"github.com/futig/interview-client/internal/progress"
	"github.com/futig/interview-client/internal/store"
	"go.uber.org/zap"
)

// Gateway is the machine's view of the conversation engine. Implementations
// must not retry internally; the machine owns retry policy because only it
// knows whether repeating a call would duplicate a side effect.
type Gateway interface {
	CreateSession(ctx context.Context, project string) (*entity.Session, error)
	GetSession(ctx context.Context, sessionID string) (*entity.Session, error)
	Continue(ctx context.Context, sessionID string) (*entity.Turn, error)
	SubmitAnswer(ctx context.Context, sessionID, questionID, text string, skipped bool) (*entity.SubmitResult, error)
	GetStatus(ctx context.Context, sessionID string) (entity.ProgressDTO, error)
	GetRequirements(ctx context.Context, sessionID string) ([]entity.Requirement, error)
}

// Machine owns the interview session state: conversation status, current
// question, completion, requirement list and failure state. Exactly one
// network call is owned by a transition at a time; commands issued while a
// transition is in flight are rejected with ErrTransitionInFlight. A canceled
// call's resolution is discarded, never applied as state.
type Machine struct {
	gateway   Gateway
	drafts    *store.DraftStore
	identity  *store.SessionIdentityStore
	logger    *zap.Logger
	retryOpts []retry.Option
	onChange  func(Snapshot)

	mu            sync.Mutex
	busy          bool
	phase         Phase
	sessionID     string
	project       string
	status        entity.ConversationStatus
	question      *entity.Question
	draftText     string
	answered      map[string]struct{}
	questionEpoch uint64
	progress      entity.Progress
	requirements  []entity.Requirement
	failure       *Failure
	gen           uint64
	cancelOp      context.CancelFunc
}

func New(
	gateway Gateway,
	drafts *store.DraftStore,
	identity *store.SessionIdentityStore,
	retryCfg *pkgRetry.RetryConfig,
	logger *zap.Logger,
) *Machine {
	if retryCfg == nil {
		retryCfg = pkgRetry.DefaultRetryConfig()
	}

	return &Machine{
		gateway:   gateway,
		drafts:    drafts,
		identity:  identity,
		logger:    logger,
		retryOpts: retryCfg.ToRetryOptions(),
		phase:     PhaseEmpty,
		answered:  make(map[string]struct{}),
	}
}

// OnChange registers a single observer invoked with a snapshot copy after
// every applied transition. Must be set before the machine is driven.
func (m *Machine) OnChange(fn func(Snapshot)) {
	m.onChange = fn
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:     m.phase,
		SessionID: m.sessionID,
		Project:   m.project,
		Status:    m.status,
		DraftText: m.draftText,
		Progress:  m.progress,
		Failure:   m.failure,
	}

	if m.question != nil {
		q := *m.question
		snap.Question = &q
	}

	if len(m.requirements) > 0 {
		snap.Requirements = append([]entity.Requirement(nil), m.requirements...)
	}

	return snap
}

func (m *Machine) notify() {
	fn := m.onChange
	if fn == nil {
		return
	}
	fn(m.Snapshot())
}

// op is a claimed in-flight transition. gen stamps the session era so a
// resolution arriving after Reset is discarded; prev is the phase to revert
// to when the call is canceled.
type op struct {
	ctx    context.Context
	cancel context.CancelFunc
	gen    uint64
	prev   Phase
}

// begin validates the command against the current phase, claims the single
// in-flight slot and optionally enters a transitional phase.
func (m *Machine) begin(ctx context.Context, next Phase, allowed ...Phase) (*op, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return nil, entity.ErrTransitionInFlight
	}

	ok := false
	for _, p := range allowed {
		if m.phase == p {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: phase %s", entity.ErrInvalidTransition, m.phase)
	}

	opCtx, cancel := context.WithCancel(ctx)
	o := &op{ctx: opCtx, cancel: cancel, gen: m.gen, prev: m.phase}

	m.busy = true
	m.cancelOp = cancel
	if next != "" {
		m.phase = next
	}

	return o, nil
}

// settle re-acquires the state after a network call and reports whether the
// resolution may be applied. A reset while the call was in flight (stale
// generation) or a cancellation means it may not: the resolution is
// discarded, not treated as an error. On true the lock is held; the caller
// applies and releases via applied().
func (m *Machine) settle(o *op) bool {
	m.mu.Lock()

	if m.gen != o.gen {
		// Reset won the race; state was already rebuilt.
		m.mu.Unlock()
		return false
	}

	m.busy = false
	m.cancelOp = nil

	if o.ctx.Err() != nil {
		m.phase = o.prev
		m.mu.Unlock()
		return false
	}

	return true
}

func (m *Machine) applied() {
	m.mu.Unlock()
	m.notify()
}

// Start creates a new engine session. Valid only from the empty phase; on
// failure the machine stays empty with the failure recorded, so calling
// Start again retries.
func (m *Machine) Start(ctx context.Context, projectName string) error {
	projectName = strings.TrimSpace(projectName)
	if err := validator.ValidateProjectName(projectName); err != nil {
		m.recordFailure(ActionStart, err)
		return err
	}

	o, err := m.begin(ctx, PhaseCreating, PhaseEmpty)
	if err != nil {
		return err
	}
	defer o.cancel()
	m.notify()

	session, callErr := m.gateway.CreateSession(o.ctx, projectName)

	if !m.settle(o) {
		return o.ctx.Err()
	}

	if callErr != nil {
		m.phase = PhaseEmpty
		m.failure = &Failure{Action: ActionStart, Err: callErr}
		m.applied()
		return callErr
	}

	m.sessionID = session.ID
	m.project = session.Project
	m.status = session.Status
	m.phase = PhaseAwaitingQuestion
	m.failure = nil

	if !m.identity.Save(session.ID) {
		// Reloads won't resume, but the interview itself continues.
		m.logger.Warn("failed to persist session id", zap.String("session_id", session.ID))
	}

	m.applied()

	m.logger.Info("interview session started",
		zap.String("session_id", session.ID),
		zap.String("project", session.Project),
	)

	return nil
}

// Restore resumes a previously persisted session at startup. A missing or
// stale local id falls back to the empty phase silently: session loss on the
// engine side must read as "start fresh", not as a fatal error. That
// swallowing is deliberate and logged, since it can also mask an outage.
func (m *Machine) Restore(ctx context.Context) error {
	sessionID, ok := m.identity.Load()
	if !ok {
		return nil
	}

	o, err := m.begin(ctx, "", PhaseEmpty, PhaseComplete, PhaseFailed)
	if err != nil {
		return err
	}
	defer o.cancel()

	session, callErr := retry.DoWithData(func() (*entity.Session, error) {
		return m.gateway.GetSession(o.ctx, sessionID)
	}, m.readRetryOpts(o.ctx)...)

	if !m.settle(o) {
		return o.ctx.Err()
	}

	if callErr != nil {
		m.logger.Warn("session restore failed, falling back to fresh setup",
			zap.String("session_id", sessionID),
			zap.Error(callErr),
		)
		m.phase = PhaseEmpty
		m.failure = nil
		m.applied()
		m.identity.Clear()
		return nil
	}

	m.sessionID = session.ID
	m.project = session.Project
	m.status = session.Status
	m.failure = nil

	switch {
	case session.Status.IsComplete():
		if len(session.Requirements) > 0 {
			m.phase = PhaseComplete
			m.requirements = session.Requirements
			m.applied()
			return nil
		}
		// Conversation done but requirements missing: generation failed
		// server-side after completion. Enter completing and fetch them.
		return m.finishConversation(ctx, session.Status)
	case session.Status == entity.StatusFailed:
		m.phase = PhaseFailed
		m.applied()
		return nil
	default:
		m.phase = PhaseAwaitingQuestion
		m.applied()
		m.RefreshProgress(ctx)
		return nil
	}
}

// Advance asks the engine for the next question. The engine may report
// completion directly, in which case the machine moves to completing without
// ever presenting another question.
func (m *Machine) Advance(ctx context.Context) error {
	o, err := m.begin(ctx, "", PhaseAwaitingQuestion)
	if err != nil {
		return err
	}
	defer o.cancel()

	turn, callErr := m.gateway.Continue(o.ctx, m.currentSessionID())

	if !m.settle(o) {
		return o.ctx.Err()
	}

	if callErr != nil {
		m.phase = PhaseAwaitingQuestion
		m.failure = &Failure{Action: ActionAdvance, Err: callErr}
		m.applied()
		return callErr
	}

	m.status = turn.Status

	if turn.Complete {
		return m.finishConversation(ctx, turn.Status)
	}

	if _, dup := m.answered[turn.Question.ID]; dup {
		// The engine re-issued a question this client already answered.
		// Presenting it again would double-collect the answer; treat it as
		// a retryable engine fault instead.
		dupErr := fmt.Errorf("%w: engine re-issued answered question %s", entity.ErrNetwork, turn.Question.ID)
		m.phase = PhaseAwaitingQuestion
		m.failure = &Failure{Action: ActionAdvance, Err: dupErr}
		m.applied()
		return dupErr
	}

	m.question = turn.Question
	m.questionEpoch++
	m.phase = PhasePresentingQuestion
	m.failure = nil
	m.draftText = ""
	if draft, ok := m.drafts.Load(turn.Question.ID); ok {
		m.draftText = draft
	}
	m.applied()
	return nil
}

// SubmitAnswer forwards trimmed answer text for the current question. The
// transition to submittingAnswer is optimistic; on failure the machine
// returns to presentingQuestion with the typed text preserved so the user
// retries without retyping.
func (m *Machine) SubmitAnswer(ctx context.Context, text string) error {
	return m.submit(ctx, ActionSubmit, text, false)
}

// Skip submits a skip marker for the current question. Only permitted when
// the question is not required; otherwise it is rejected without any state
// change.
func (m *Machine) Skip(ctx context.Context) error {
	m.mu.Lock()
	if m.phase == PhasePresentingQuestion && m.question != nil && m.question.Required {
		m.mu.Unlock()
		return entity.ErrQuestionRequired
	}
	m.mu.Unlock()

	return m.submit(ctx, ActionSkip, "", true)
}

func (m *Machine) submit(ctx context.Context, action Action, text string, skipped bool) error {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	question := m.question
	m.mu.Unlock()

	if !skipped && question != nil {
		if err := validator.ValidateAnswer(text, question.Required); err != nil {
			m.recordFailure(action, err)
			return err
		}
	}

	o, err := m.begin(ctx, PhaseSubmittingAnswer, PhasePresentingQuestion)
	if err != nil {
		return err
	}
	defer o.cancel()
	m.notify()

	result, callErr := m.gateway.SubmitAnswer(o.ctx, m.currentSessionID(), question.ID, text, skipped)

	if !m.settle(o) {
		return o.ctx.Err()
	}

	if callErr != nil {
		// Back to the question with the typed text intact, both in memory
		// and in the draft store, so even a crash right now loses nothing.
		m.phase = PhasePresentingQuestion
		m.failure = &Failure{Action: action, Err: callErr}
		if !skipped {
			m.draftText = text
			m.drafts.Save(question.ID, text)
		}
		m.applied()
		return callErr
	}

	m.answered[question.ID] = struct{}{}
	m.drafts.Clear(question.ID)
	m.draftText = ""
	m.question = nil
	m.questionEpoch++
	m.status = result.Status
	m.failure = nil

	if result.Complete {
		return m.finishConversation(ctx, result.Status)
	}

	m.phase = PhaseAwaitingQuestion
	m.applied()
	m.RefreshProgress(ctx)
	return nil
}

// finishConversation is the completing phase: the conversation itself is
// over, only the requirement list remains to be fetched. Entered with the
// state lock held; releases it.
func (m *Machine) finishConversation(ctx context.Context, status entity.ConversationStatus) error {
	if status == entity.StatusFailed {
		m.phase = PhaseFailed
		m.question = nil
		m.applied()
		return nil
	}

	m.phase = PhaseCompleting
	m.question = nil
	sessionID := m.sessionID
	opCtx, cancel := context.WithCancel(ctx)
	o := &op{ctx: opCtx, cancel: cancel, gen: m.gen, prev: PhaseCompleting}
	m.busy = true
	m.cancelOp = cancel
	m.mu.Unlock()
	m.notify()
	defer o.cancel()

	reqs, callErr := retry.DoWithData(func() ([]entity.Requirement, error) {
		return m.gateway.GetRequirements(o.ctx, sessionID)
	}, m.readRetryOpts(o.ctx)...)

	if !m.settle(o) {
		return o.ctx.Err()
	}

	m.phase = PhaseComplete
	m.status = entity.StatusComplete

	if callErr != nil {
		// Complete with an empty list: RetryRequirements re-fetches without
		// re-running the conversation.
		m.requirements = nil
		m.failure = &Failure{Action: ActionRequirements, Err: callErr}
		m.applied()
		return callErr
	}

	m.requirements = reqs
	m.failure = nil
	m.applied()
	return nil
}

// RetryRequirements re-invokes the requirements fetch after a generation
// failure. Valid only in the complete phase; with requirements already
// present it is a no-op guarding against a duplicate fetch.
func (m *Machine) RetryRequirements(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != PhaseComplete {
		m.mu.Unlock()
		return fmt.Errorf("%w: phase %s", entity.ErrInvalidTransition, m.phase)
	}
	if len(m.requirements) > 0 {
		m.mu.Unlock()
		return nil
	}
	if m.busy {
		m.mu.Unlock()
		return entity.ErrTransitionInFlight
	}

	sessionID := m.sessionID
	opCtx, cancel := context.WithCancel(ctx)
	o := &op{ctx: opCtx, cancel: cancel, gen: m.gen, prev: PhaseComplete}
	m.busy = true
	m.cancelOp = cancel
	m.mu.Unlock()
	defer o.cancel()

	reqs, callErr := retry.DoWithData(func() ([]entity.Requirement, error) {
		return m.gateway.GetRequirements(o.ctx, sessionID)
	}, m.readRetryOpts(o.ctx)...)

	if !m.settle(o) {
		return o.ctx.Err()
	}

	if callErr != nil {
		m.failure = &Failure{Action: ActionRequirements, Err: callErr}
		m.applied()
		return callErr
	}

	m.requirements = reqs
	m.failure = nil
	m.applied()
	return nil
}

// RefreshProgress recomputes the progress snapshot from the engine. It is a
// plain read and may overlap a question-producing transition; if the current
// question changed while the status call was in flight the stale snapshot is
// discarded, because the question call's result always supersedes it.
func (m *Machine) RefreshProgress(ctx context.Context) {
	m.mu.Lock()
	if m.sessionID == "" {
		m.mu.Unlock()
		return
	}
	sessionID := m.sessionID
	epoch := m.questionEpoch
	gen := m.gen
	m.mu.Unlock()

	dto, err := m.gateway.GetStatus(ctx, sessionID)
	if err != nil {
		m.logger.Debug("progress refresh failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	if m.gen != gen || m.questionEpoch != epoch {
		m.mu.Unlock()
		return
	}
	m.progress = progress.FromDTO(dto)
	m.mu.Unlock()
	m.notify()
}

// SaveDraft persists in-progress answer text for the current question. Called
// on debounced keystrokes by the UI layer; losing the write degrades to
// retyping after a crash, nothing more.
func (m *Machine) SaveDraft(text string) {
	m.mu.Lock()
	if m.phase != PhasePresentingQuestion || m.question == nil {
		m.mu.Unlock()
		return
	}
	questionID := m.question.ID
	m.draftText = text
	m.mu.Unlock()

	m.drafts.Save(questionID, text)
}

// Reset abandons the session unconditionally: cancels any in-flight call,
// clears the persisted session id and all drafts, and returns to empty.
func (m *Machine) Reset() {
	m.mu.Lock()
	if m.cancelOp != nil {
		m.cancelOp()
		m.cancelOp = nil
	}
	m.gen++
	m.busy = false
	m.phase = PhaseEmpty
	m.sessionID = ""
	m.project = ""
	m.status = ""
	m.question = nil
	m.questionEpoch++
	m.draftText = ""
	m.answered = make(map[string]struct{})
	m.progress = entity.Progress{}
	m.requirements = nil
	m.failure = nil
	m.mu.Unlock()

	m.identity.Clear()
	m.drafts.ClearAll()
	m.notify()
}

func (m *Machine) recordFailure(action Action, err error) {
	m.mu.Lock()
	m.failure = &Failure{Action: action, Err: err}
	m.mu.Unlock()
	m.notify()
}

func (m *Machine) currentSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *Machine) readRetryOpts(ctx context.Context) []retry.Option {
	opts := append([]retry.Option(nil), m.retryOpts...)
	return append(opts,
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && entity.IsRetryable(err)
		}),
	)
}
