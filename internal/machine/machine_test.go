package machine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/futig/interview-client/internal/entity"
	pkgRetry "github.com/futig/interview-client/internal/pkg/retry"
	"github.com/futig/interview-client/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	createFunc   func(ctx context.Context, project string) (*entity.Session, error)
	getFunc      func(ctx context.Context, id string) (*entity.Session, error)
	continueFunc func(ctx context.Context, id string) (*entity.Turn, error)
	submitFunc   func(ctx context.Context, id, qid, text string, skipped bool) (*entity.SubmitResult, error)
	statusFunc   func(ctx context.Context, id string) (entity.ProgressDTO, error)
	reqsFunc     func(ctx context.Context, id string) ([]entity.Requirement, error)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: make(map[string]int)}
}

func (f *fakeGateway) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeGateway) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeGateway) CreateSession(ctx context.Context, project string) (*entity.Session, error) {
	f.record("create")
	if f.createFunc != nil {
		return f.createFunc(ctx, project)
	}
	return &entity.Session{ID: "s-1", Project: project, Status: entity.StatusCollecting}, nil
}

func (f *fakeGateway) GetSession(ctx context.Context, id string) (*entity.Session, error) {
	f.record("get")
	if f.getFunc != nil {
		return f.getFunc(ctx, id)
	}
	return &entity.Session{ID: id, Project: "p", Status: entity.StatusCollecting}, nil
}

func (f *fakeGateway) Continue(ctx context.Context, id string) (*entity.Turn, error) {
	f.record("continue")
	if f.continueFunc != nil {
		return f.continueFunc(ctx, id)
	}
	return &entity.Turn{
		Question: &entity.Question{ID: "q-1", Category: entity.CategoryFunctional, Text: "?", Required: true},
		Status:   entity.StatusCollecting,
	}, nil
}

func (f *fakeGateway) SubmitAnswer(ctx context.Context, id, qid, text string, skipped bool) (*entity.SubmitResult, error) {
	f.record("submit")
	if f.submitFunc != nil {
		return f.submitFunc(ctx, id, qid, text, skipped)
	}
	return &entity.SubmitResult{Status: entity.StatusGeneratingQuestions}, nil
}

func (f *fakeGateway) GetStatus(ctx context.Context, id string) (entity.ProgressDTO, error) {
	f.record("status")
	if f.statusFunc != nil {
		return f.statusFunc(ctx, id)
	}
	return entity.ProgressDTO{TotalQuestions: 5, AnsweredQuestions: 1}, nil
}

func (f *fakeGateway) GetRequirements(ctx context.Context, id string) ([]entity.Requirement, error) {
	f.record("requirements")
	if f.reqsFunc != nil {
		return f.reqsFunc(ctx, id)
	}
	return []entity.Requirement{{Title: "t", Rationale: "r", Priority: entity.PriorityMust}}, nil
}

type fixture struct {
	machine  *Machine
	gw       *fakeGateway
	drafts   *store.DraftStore
	identity *store.SessionIdentityStore
}

func newFixture(t *testing.T, gw *fakeGateway) *fixture {
	t.Helper()

	storage, err := store.NewFileStorage(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	drafts := store.NewDraftStore(storage)
	identity := store.NewSessionIdentityStore(storage)

	retryCfg := &pkgRetry.RetryConfig{Attempts: 1, Delay: time.Millisecond, MaxDelay: time.Millisecond}
	m := New(gw, drafts, identity, retryCfg, zap.NewNop())

	return &fixture{machine: m, gw: gw, drafts: drafts, identity: identity}
}

func netErr(msg string) error {
	return fmt.Errorf("%w: %s", entity.ErrNetwork, msg)
}

func TestStart_SuccessPersistsIdentity(t *testing.T) {
	fx := newFixture(t, newFakeGateway())

	require.NoError(t, fx.machine.Start(context.Background(), "Checkout API"))

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseAwaitingQuestion, snap.Phase)
	assert.Equal(t, "s-1", snap.SessionID)
	assert.Nil(t, snap.Failure)

	id, ok := fx.identity.Load()
	require.True(t, ok)
	assert.Equal(t, "s-1", id)
}

func TestStart_FailureStaysEmptyAndRetryable(t *testing.T) {
	gw := newFakeGateway()
	fail := true
	gw.createFunc = func(ctx context.Context, project string) (*entity.Session, error) {
		if fail {
			return nil, netErr("connection refused")
		}
		return &entity.Session{ID: "s-1", Project: project, Status: entity.StatusCollecting}, nil
	}
	fx := newFixture(t, gw)

	err := fx.machine.Start(context.Background(), "Checkout API")
	require.Error(t, err)

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseEmpty, snap.Phase)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, ActionStart, snap.Failure.Action)

	fail = false
	require.NoError(t, fx.machine.Start(context.Background(), "Checkout API"))
	assert.Equal(t, PhaseAwaitingQuestion, fx.machine.Snapshot().Phase)
}

func TestStart_RejectedOutsideEmptyPhase(t *testing.T) {
	fx := newFixture(t, newFakeGateway())
	require.NoError(t, fx.machine.Start(context.Background(), "p"))

	err := fx.machine.Start(context.Background(), "p")
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)
}

func TestStart_QuotaFailureIsDistinct(t *testing.T) {
	gw := newFakeGateway()
	gw.createFunc = func(ctx context.Context, project string) (*entity.Session, error) {
		return nil, fmt.Errorf("%w: HTTP 429", entity.ErrQuotaExceeded)
	}
	fx := newFixture(t, gw)

	err := fx.machine.Start(context.Background(), "p")
	assert.ErrorIs(t, err, entity.ErrQuotaExceeded)
	assert.Equal(t, PhaseEmpty, fx.machine.Snapshot().Phase)
}

func TestAdvance_PresentsQuestionWithRecoveredDraft(t *testing.T) {
	fx := newFixture(t, newFakeGateway())
	fx.drafts.Save("q-1", "half-typed before the crash")

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhasePresentingQuestion, snap.Phase)
	require.NotNil(t, snap.Question)
	assert.Equal(t, "q-1", snap.Question.ID)
	assert.Equal(t, "half-typed before the crash", snap.DraftText)
}

func TestAdvance_DirectCompletionSkipsQuestionPhase(t *testing.T) {
	gw := newFakeGateway()
	gw.continueFunc = func(ctx context.Context, id string) (*entity.Turn, error) {
		return &entity.Turn{Complete: true, Status: entity.StatusComplete}, nil
	}
	gw.reqsFunc = func(ctx context.Context, id string) ([]entity.Requirement, error) {
		return nil, nil
	}
	fx := newFixture(t, gw)

	var phases []Phase
	fx.machine.OnChange(func(s Snapshot) {
		phases = append(phases, s.Phase)
	})

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseComplete, snap.Phase)
	assert.Nil(t, snap.Question)
	assert.Empty(t, snap.Requirements)
	assert.Nil(t, snap.Failure)

	assert.NotContains(t, phases, PhasePresentingQuestion,
		"zero-question interviews must never present a question")
	assert.Contains(t, phases, PhaseCompleting)
}

func TestSubmit_SuccessClearsDraftAndAdvances(t *testing.T) {
	fx := newFixture(t, newFakeGateway())

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))

	fx.machine.SaveDraft("We need Stripe and PayPal support")
	require.NoError(t, fx.machine.SubmitAnswer(context.Background(), "We need Stripe and PayPal support"))

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseAwaitingQuestion, snap.Phase)
	assert.Nil(t, snap.Question)
	assert.Empty(t, snap.DraftText)
	assert.Nil(t, snap.Failure)

	_, ok := fx.drafts.Load("q-1")
	assert.False(t, ok, "draft must be cleared once the answer is acknowledged")

	// Progress was recomputed from the status fetch after the submit.
	assert.Equal(t, 5, snap.Progress.Total)
	assert.Equal(t, 1, snap.Progress.Answered)
	assert.Equal(t, 4, snap.Progress.Remaining)
	assert.Equal(t, 20, snap.Progress.Percent)
}

func TestSubmit_FailurePreservesTypedText(t *testing.T) {
	gw := newFakeGateway()
	gw.submitFunc = func(ctx context.Context, id, qid, text string, skipped bool) (*entity.SubmitResult, error) {
		return nil, netErr("connection reset")
	}
	fx := newFixture(t, gw)

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))

	err := fx.machine.SubmitAnswer(context.Background(), "long, carefully typed answer")
	require.Error(t, err)

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhasePresentingQuestion, snap.Phase)
	require.NotNil(t, snap.Question, "the question must still be presented for retry")
	assert.Equal(t, "long, carefully typed answer", snap.DraftText, "typed text must survive the failure")
	require.NotNil(t, snap.Failure)
	assert.Equal(t, ActionSubmit, snap.Failure.Action)

	draft, ok := fx.drafts.Load("q-1")
	require.True(t, ok)
	assert.Equal(t, "long, carefully typed answer", draft)
}

func TestSubmit_EmptyRequiredAnswerRejectedLocally(t *testing.T) {
	fx := newFixture(t, newFakeGateway())

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))

	err := fx.machine.SubmitAnswer(context.Background(), "   ")
	assert.ErrorIs(t, err, entity.ErrValidation)
	assert.Equal(t, 0, fx.gw.count("submit"), "invalid input must not reach the network")
	assert.Equal(t, PhasePresentingQuestion, fx.machine.Snapshot().Phase)
}

func TestSkip_RequiredQuestionIsRejectedNoOp(t *testing.T) {
	fx := newFixture(t, newFakeGateway())

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))

	err := fx.machine.Skip(context.Background())
	assert.ErrorIs(t, err, entity.ErrQuestionRequired)
	assert.Equal(t, 0, fx.gw.count("submit"))

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhasePresentingQuestion, snap.Phase)
	assert.Nil(t, snap.Failure, "a rejected skip is a no-op, not a failure")
}

func TestSkip_OptionalQuestionFollowsSubmitPath(t *testing.T) {
	gw := newFakeGateway()
	gw.continueFunc = func(ctx context.Context, id string) (*entity.Turn, error) {
		return &entity.Turn{
			Question: &entity.Question{ID: "q-2", Category: entity.CategoryConstraints, Text: "?", Required: false},
			Status:   entity.StatusCollecting,
		}, nil
	}
	var gotSkipped bool
	gw.submitFunc = func(ctx context.Context, id, qid, text string, skipped bool) (*entity.SubmitResult, error) {
		gotSkipped = skipped
		return &entity.SubmitResult{Status: entity.StatusGeneratingQuestions}, nil
	}
	fx := newFixture(t, gw)

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))
	require.NoError(t, fx.machine.Skip(context.Background()))

	assert.True(t, gotSkipped, "skip is a wire-level flag, not a sentinel answer")
	assert.Equal(t, PhaseAwaitingQuestion, fx.machine.Snapshot().Phase)
}

func TestAdvance_RejectsReissuedAnsweredQuestion(t *testing.T) {
	gw := newFakeGateway()
	fx := newFixture(t, gw)

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))
	require.NoError(t, fx.machine.SubmitAnswer(context.Background(), "answer"))

	// The default continueFunc re-issues q-1, which was just answered.
	err := fx.machine.Advance(context.Background())
	require.Error(t, err)

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseAwaitingQuestion, snap.Phase)
	assert.Nil(t, snap.Question, "an already-answered question must never be re-presented")
}

func TestRestore_WithoutStoredIDIsNoOp(t *testing.T) {
	fx := newFixture(t, newFakeGateway())

	require.NoError(t, fx.machine.Restore(context.Background()))
	assert.Equal(t, PhaseEmpty, fx.machine.Snapshot().Phase)
	assert.Equal(t, 0, fx.gw.count("get"))
}

func TestRestore_CompletedSessionIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	gw.getFunc = func(ctx context.Context, id string) (*entity.Session, error) {
		return &entity.Session{
			ID: id, Project: "p", Status: entity.StatusComplete,
			Requirements: []entity.Requirement{{Title: "t", Priority: entity.PriorityMust}},
		}, nil
	}
	fx := newFixture(t, gw)
	fx.identity.Save("s-9")

	require.NoError(t, fx.machine.Restore(context.Background()))
	first := fx.machine.Snapshot()
	assert.Equal(t, PhaseComplete, first.Phase)
	require.Len(t, first.Requirements, 1)

	require.NoError(t, fx.machine.Restore(context.Background()))
	second := fx.machine.Snapshot()

	assert.Equal(t, first.Phase, second.Phase)
	assert.Equal(t, first.Requirements, second.Requirements)
	assert.Equal(t, 2, fx.gw.count("get"), "exactly one fetch per restore")
	assert.Equal(t, 0, fx.gw.count("requirements"), "embedded requirements need no extra fetch")
}

func TestRestore_StaleSessionFallsBackSilently(t *testing.T) {
	gw := newFakeGateway()
	gw.getFunc = func(ctx context.Context, id string) (*entity.Session, error) {
		return nil, fmt.Errorf("%w: HTTP 404", entity.ErrSessionNotFound)
	}
	fx := newFixture(t, gw)
	fx.identity.Save("s-gone")

	err := fx.machine.Restore(context.Background())
	require.NoError(t, err, "a failed restore is a silent fallback, not an error")

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseEmpty, snap.Phase)
	assert.Nil(t, snap.Failure)

	_, ok := fx.identity.Load()
	assert.False(t, ok, "the stale id must be cleared")
}

func TestRestore_ActiveSessionResumesQuestionFlow(t *testing.T) {
	fx := newFixture(t, newFakeGateway())
	fx.identity.Save("s-1")

	require.NoError(t, fx.machine.Restore(context.Background()))

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseAwaitingQuestion, snap.Phase)
	assert.Equal(t, "s-1", snap.SessionID)
	assert.Equal(t, 5, snap.Progress.Total, "progress is refreshed on resume")
}

func TestRestore_RetriesRecoverableReads(t *testing.T) {
	gw := newFakeGateway()
	attempt := 0
	gw.getFunc = func(ctx context.Context, id string) (*entity.Session, error) {
		attempt++
		if attempt == 1 {
			return nil, netErr("transient")
		}
		return &entity.Session{ID: id, Project: "p", Status: entity.StatusCollecting}, nil
	}
	fx := newFixture(t, gw)
	fx.identity.Save("s-1")

	retryCfg := &pkgRetry.RetryConfig{Attempts: 2, Delay: time.Millisecond, MaxDelay: time.Millisecond}
	fx.machine.retryOpts = retryCfg.ToRetryOptions()

	require.NoError(t, fx.machine.Restore(context.Background()))
	assert.Equal(t, PhaseAwaitingQuestion, fx.machine.Snapshot().Phase)
	assert.Equal(t, 2, fx.gw.count("get"))

	id, ok := fx.identity.Load()
	require.True(t, ok, "identity survives a restore that succeeded on retry")
	assert.Equal(t, "s-1", id)
}

func TestCompletion_RequirementsFailureIsRetryable(t *testing.T) {
	gw := newFakeGateway()
	gw.continueFunc = func(ctx context.Context, id string) (*entity.Turn, error) {
		return &entity.Turn{Complete: true, Status: entity.StatusComplete}, nil
	}
	reqsFail := true
	gw.reqsFunc = func(ctx context.Context, id string) ([]entity.Requirement, error) {
		if reqsFail {
			return nil, fmt.Errorf("%w: HTTP 500", entity.ErrRequirementsGeneration)
		}
		return []entity.Requirement{{Title: "t", Priority: entity.PriorityShould}}, nil
	}
	fx := newFixture(t, gw)

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	err := fx.machine.Advance(context.Background())
	require.Error(t, err)

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseComplete, snap.Phase)
	assert.Empty(t, snap.Requirements)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, ActionRequirements, snap.Failure.Action)

	// Dedicated re-generation call: the conversation is not re-run.
	reqsFail = false
	require.NoError(t, fx.machine.RetryRequirements(context.Background()))

	snap = fx.machine.Snapshot()
	require.Len(t, snap.Requirements, 1)
	assert.Nil(t, snap.Failure)
	assert.Equal(t, 1, fx.gw.count("continue"), "the conversation must not be re-run")
}

func TestRetryRequirements_NoOpWhenListPresent(t *testing.T) {
	gw := newFakeGateway()
	gw.continueFunc = func(ctx context.Context, id string) (*entity.Turn, error) {
		return &entity.Turn{Complete: true, Status: entity.StatusComplete}, nil
	}
	fx := newFixture(t, gw)

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))
	require.Equal(t, 1, fx.gw.count("requirements"))

	require.NoError(t, fx.machine.RetryRequirements(context.Background()))
	assert.Equal(t, 1, fx.gw.count("requirements"), "a present list guards against duplicate fetches")
}

func TestReentrantCommandRejectedWhileInFlight(t *testing.T) {
	gw := newFakeGateway()
	release := make(chan struct{})
	started := make(chan struct{})
	gw.continueFunc = func(ctx context.Context, id string) (*entity.Turn, error) {
		close(started)
		<-release
		return &entity.Turn{
			Question: &entity.Question{ID: "q-1", Category: entity.CategoryFunctional, Text: "?", Required: true},
			Status:   entity.StatusCollecting,
		}, nil
	}
	fx := newFixture(t, gw)
	require.NoError(t, fx.machine.Start(context.Background(), "p"))

	done := make(chan error, 1)
	go func() { done <- fx.machine.Advance(context.Background()) }()
	<-started

	err := fx.machine.Advance(context.Background())
	assert.ErrorIs(t, err, entity.ErrTransitionInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, fx.gw.count("continue"), "the re-entrant call must not reach the network")
}

func TestCanceledCallDoesNotMutateState(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	gw.continueFunc = func(ctx context.Context, id string) (*entity.Turn, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	fx := newFixture(t, gw)
	require.NoError(t, fx.machine.Start(context.Background(), "p"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.machine.Advance(ctx) }()
	<-started
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseAwaitingQuestion, snap.Phase)
	assert.Nil(t, snap.Question)
	assert.Nil(t, snap.Failure, "a canceled resolution is discarded, not recorded as a failure")
}

func TestReset_DiscardsInFlightResolutionAndClearsLocalState(t *testing.T) {
	gw := newFakeGateway()
	started := make(chan struct{})
	release := make(chan struct{})
	gw.continueFunc = func(ctx context.Context, id string) (*entity.Turn, error) {
		close(started)
		<-release
		return &entity.Turn{
			Question: &entity.Question{ID: "q-9", Category: entity.CategoryUsers, Text: "?", Required: false},
			Status:   entity.StatusCollecting,
		}, nil
	}
	fx := newFixture(t, gw)
	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	fx.drafts.Save("q-0", "old draft")

	done := make(chan error, 1)
	go func() { done <- fx.machine.Advance(context.Background()) }()
	<-started

	fx.machine.Reset()
	close(release)
	<-done

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseEmpty, snap.Phase)
	assert.Nil(t, snap.Question, "the late resolution must not resurrect the session")
	assert.Empty(t, snap.SessionID)

	_, ok := fx.identity.Load()
	assert.False(t, ok)
	_, ok = fx.drafts.Load("q-0")
	assert.False(t, ok)
}

func TestRefreshProgress_StaleSnapshotSupersededByQuestionChange(t *testing.T) {
	gw := newFakeGateway()
	statusStarted := make(chan struct{})
	statusRelease := make(chan struct{})
	var once sync.Once
	gw.statusFunc = func(ctx context.Context, id string) (entity.ProgressDTO, error) {
		blocked := false
		once.Do(func() {
			blocked = true
			close(statusStarted)
		})
		if blocked {
			<-statusRelease
			// Snapshot taken before the question changed: one answered.
			return entity.ProgressDTO{TotalQuestions: 5, AnsweredQuestions: 1}, nil
		}
		return entity.ProgressDTO{TotalQuestions: 5, AnsweredQuestions: 2}, nil
	}
	fx := newFixture(t, gw)
	require.NoError(t, fx.machine.Start(context.Background(), "p"))

	// Slow refresh starts against the pre-advance question epoch.
	go fx.machine.RefreshProgress(context.Background())
	<-statusStarted

	require.NoError(t, fx.machine.Advance(context.Background()))
	require.NoError(t, fx.machine.SubmitAnswer(context.Background(), "answer"))

	close(statusRelease)
	assert.Eventually(t, func() bool {
		return fx.machine.Snapshot().Progress.Answered == 2
	}, time.Second, 5*time.Millisecond)

	// Give the stale refresh a chance to (wrongly) land, then re-check.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, fx.machine.Snapshot().Progress.Answered,
		"a stale progress snapshot must never overwrite a newer one")
}

func TestConversationFailedStatusEntersFailedPhase(t *testing.T) {
	gw := newFakeGateway()
	gw.continueFunc = func(ctx context.Context, id string) (*entity.Turn, error) {
		return &entity.Turn{Complete: true, Status: entity.StatusFailed}, nil
	}
	fx := newFixture(t, gw)

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))

	snap := fx.machine.Snapshot()
	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.Nil(t, snap.Question)
	assert.Equal(t, 0, fx.gw.count("requirements"), "a failed conversation has no requirements to fetch")
}

func TestFullInterviewNeverRepresentsAnsweredQuestions(t *testing.T) {
	gw := newFakeGateway()
	questions := []string{"q-1", "q-2", "q-3"}
	issued := 0
	gw.continueFunc = func(ctx context.Context, id string) (*entity.Turn, error) {
		if issued >= len(questions) {
			return &entity.Turn{Complete: true, Status: entity.StatusComplete}, nil
		}
		q := &entity.Question{
			ID: questions[issued], Category: entity.CategoryFunctional, Text: "?", Required: true,
		}
		issued++
		return &entity.Turn{Question: q, Status: entity.StatusCollecting}, nil
	}
	fx := newFixture(t, gw)

	var presented []string
	fx.machine.OnChange(func(s Snapshot) {
		if s.Phase == PhasePresentingQuestion && s.Question != nil {
			presented = append(presented, s.Question.ID)
		}
	})

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	for {
		snap := fx.machine.Snapshot()
		if snap.Phase == PhaseComplete {
			break
		}
		switch snap.Phase {
		case PhaseAwaitingQuestion:
			require.NoError(t, fx.machine.Advance(context.Background()))
		case PhasePresentingQuestion:
			require.NoError(t, fx.machine.SubmitAnswer(context.Background(), "answer for "+snap.Question.ID))
		default:
			t.Fatalf("unexpected phase %s", snap.Phase)
		}
	}

	seen := make(map[string]bool)
	for _, id := range presented {
		assert.False(t, seen[id], "question %s presented twice", id)
		seen[id] = true
	}
	assert.Len(t, presented, len(questions))
}

func TestSnapshotInvariant_ExactlyOneOutcome(t *testing.T) {
	gw := newFakeGateway()
	fx := newFixture(t, gw)

	check := func(s Snapshot) {
		if s.Phase == PhaseComplete {
			assert.Nil(t, s.Question, "no stale question after completion")
		}
		if s.Question != nil {
			assert.NotEqual(t, PhaseComplete, s.Phase)
			assert.NotEqual(t, PhaseFailed, s.Phase)
		}
	}
	fx.machine.OnChange(check)

	require.NoError(t, fx.machine.Start(context.Background(), "p"))
	require.NoError(t, fx.machine.Advance(context.Background()))
	require.NoError(t, fx.machine.SubmitAnswer(context.Background(), "a"))
	fx.machine.Reset()
	check(fx.machine.Snapshot())
}

var _ Gateway = (*fakeGateway)(nil)

func TestValidatorErrorsAreNotRetryable(t *testing.T) {
	assert.False(t, entity.IsRetryable(entity.ErrValidation))
	assert.False(t, entity.IsRetryable(entity.ErrQuotaExceeded))
	assert.False(t, entity.IsRetryable(errors.New("opaque")))
	assert.True(t, entity.IsRetryable(netErr("x")))
}
