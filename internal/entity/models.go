package entity

import "fmt"

type ConversationStatus string

// Conversation status is reported by the engine on every turn. The client
// treats it as opaque except for the terminal markers.
const (
	StatusCollecting          ConversationStatus = "collecting"
	StatusProcessingAnswer    ConversationStatus = "processing_answer"
	StatusGeneratingQuestions ConversationStatus = "generating_questions"
	StatusComplete            ConversationStatus = "complete"
	StatusFailed              ConversationStatus = "failed"
)

// IsTerminal reports whether the conversation reached a final state.
func (s ConversationStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

func (s ConversationStatus) IsComplete() bool {
	return s == StatusComplete
}

type QuestionCategory string

const (
	CategoryFunctional    QuestionCategory = "functional"
	CategoryNonFunctional QuestionCategory = "non_functional"
	CategoryConstraints   QuestionCategory = "constraints"
	CategoryUsers         QuestionCategory = "users"
	CategoryIntegrations  QuestionCategory = "integrations"
)

func (c QuestionCategory) Validate() error {
	switch c {
	case CategoryFunctional, CategoryNonFunctional, CategoryConstraints, CategoryUsers, CategoryIntegrations:
		return nil
	default:
		return fmt.Errorf("unknown question category: %s", c)
	}
}

type Priority string

const (
	PriorityMust   Priority = "MUST"
	PriorityShould Priority = "SHOULD"
	PriorityCould  Priority = "COULD"
)

// Session is the client-side view of an engine conversation. The engine copy
// is authoritative; this one only mirrors the last response.
type Session struct {
	ID           string
	Project      string
	Status       ConversationStatus
	Requirements []Requirement
}

// Question is issued by the engine and owns the current turn only. It is
// immutable once issued and superseded on every advance.
type Question struct {
	ID       string
	Category QuestionCategory
	Text     string
	Required bool
}

// Requirement is a prioritized output item produced after completion.
type Requirement struct {
	Title     string
	Rationale string
	Priority  Priority
}

// Progress is a derived, non-authoritative snapshot. Never persisted.
type Progress struct {
	Total     int
	Answered  int
	Remaining int
	Percent   int
}

// Turn is the outcome of a continue call: either the next question or a
// direct completion report, never both.
type Turn struct {
	Question *Question
	Complete bool
	Status   ConversationStatus
}

// SubmitResult acknowledges an answer submission.
type SubmitResult struct {
	Complete bool
	Status   ConversationStatus
}
