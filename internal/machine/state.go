package machine

import "github.com/futig/interview-client/internal/entity"

type Phase string

// Machine phases. Transitions:
//
//	empty → creating → awaitingQuestion → presentingQuestion →
//	submittingAnswer → (awaitingQuestion | completing);
//	completing → complete | failed
//
// A failure sub-state can be entered from any in-flight transition; it is
// explicit on the snapshot, never thrown away.
const (
	PhaseEmpty              Phase = "EMPTY"
	PhaseCreating           Phase = "CREATING"
	PhaseAwaitingQuestion   Phase = "AWAITING_QUESTION"
	PhasePresentingQuestion Phase = "PRESENTING_QUESTION"
	PhaseSubmittingAnswer   Phase = "SUBMITTING_ANSWER"
	PhaseCompleting         Phase = "COMPLETING"
	PhaseComplete           Phase = "COMPLETE"
	PhaseFailed             Phase = "FAILED"
)

// InFlight reports whether a network transition owns this phase.
func (p Phase) InFlight() bool {
	switch p {
	case PhaseCreating, PhaseSubmittingAnswer, PhaseCompleting:
		return true
	default:
		return false
	}
}

// Action names the command that caused a failure.
type Action string

const (
	ActionStart        Action = "start"
	ActionRestore      Action = "restore"
	ActionAdvance      Action = "advance"
	ActionSubmit       Action = "submit_answer"
	ActionSkip         Action = "skip"
	ActionRequirements Action = "fetch_requirements"
)

// Failure carries the failed action and its error so the UI can offer the
// right retry affordance instead of a generic message.
type Failure struct {
	Action Action
	Err    error
}

func (f *Failure) Error() string {
	if f == nil || f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// Snapshot is the single state view exposed to observers. Fields outside the
// current phase are zero: Question is nil unless a question is presented or
// being answered, Requirements is nil unless the interview completed.
type Snapshot struct {
	Phase        Phase
	SessionID    string
	Project      string
	Status       entity.ConversationStatus
	Question     *entity.Question
	DraftText    string
	Progress     entity.Progress
	Requirements []entity.Requirement
	Failure      *Failure
}

// HasQuestion reports whether a question is currently presented.
func (s Snapshot) HasQuestion() bool {
	return s.Question != nil
}

// IsComplete reports whether the interview finished and requirements are
// available (possibly empty when generation failed and awaits retry).
func (s Snapshot) IsComplete() bool {
	return s.Phase == PhaseComplete
}
